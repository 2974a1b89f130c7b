package point

import "errors"

var (
	// ErrValidation is returned for malformed requests (missing reason, non-positive amount, unknown category/type)
	ErrValidation = errors.New("validation error")

	// ErrInvalidTransition is returned when a transaction is not in a state that allows the operation
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInsufficientBalance is returned when a delta would make a balance negative
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransactionNotFound is returned when a transaction doesn't exist
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrCustomerNotFound is returned when a customer doesn't exist
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrDuplicateReference is returned when an issued transaction reuses a reference id
	ErrDuplicateReference = errors.New("duplicate reference")

	ErrInternal = errors.New("internal error")
)
