package betting

import (
	"errors"
	"net/http"

	"github.com/pointline/pointline-api/internal/domain/odds"
	"github.com/pointline/pointline-api/internal/domain/point"
	"github.com/pointline/pointline-api/internal/pkg/errorhandler"
)

var (
	// ErrValidation is returned for malformed betting requests
	ErrValidation = errors.New("validation error")

	// ErrMatchNotFound is returned when a match doesn't exist
	ErrMatchNotFound = errors.New("match not found")

	// ErrMatchNotReady is returned when settlement runs before the match is finished and scored
	ErrMatchNotReady = errors.New("match not ready")

	// ErrAlreadySettled guards a match against a second settlement
	ErrAlreadySettled = errors.New("already settled")

	// ErrBettingClosed is returned when a bet targets a finished or settled match
	ErrBettingClosed = errors.New("betting closed")

	// ErrCreditFailure marks a single winner's payout that could not be committed
	ErrCreditFailure = errors.New("credit failure")

	ErrInternal = errors.New("internal error")
)

var errorMappings = []errorhandler.Mapping{
	{Err: ErrValidation, Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR"},
	{Err: odds.ErrInvalidOdds, Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR"},
	{Err: point.ErrValidation, Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR"},
	{Err: ErrMatchNotReady, Status: http.StatusConflict, Code: "MATCH_NOT_READY"},
	{Err: ErrAlreadySettled, Status: http.StatusConflict, Code: "ALREADY_SETTLED"},
	{Err: ErrBettingClosed, Status: http.StatusConflict, Code: "BETTING_CLOSED"},
	{Err: point.ErrInsufficientBalance, Status: http.StatusConflict, Code: "INSUFFICIENT_BALANCE"},
	{Err: point.ErrDuplicateReference, Status: http.StatusConflict, Code: "DUPLICATE_REFERENCE"},
	{Err: ErrMatchNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND"},
	{Err: point.ErrCustomerNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND"},
	{Err: ErrCreditFailure, Status: http.StatusInternalServerError, Code: "CREDIT_FAILURE"},
}

// ErrorCode returns the machine-readable kind of a betting error.
func ErrorCode(err error) string {
	return errorhandler.Kind(err, errorMappings).Code
}
