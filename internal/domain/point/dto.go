package point

import "github.com/google/uuid"

// CreateTransactionRequest is the body of a transaction request or an admin issue.
type CreateTransactionRequest struct {
	CustomerID  string `json:"customer_id" validate:"required,uuid"`
	Category    string `json:"category" validate:"required,point_category"`
	Type        string `json:"type" validate:"required,point_type"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Reason      string `json:"reason" validate:"max=500"`
	ReferenceID string `json:"reference_id,omitempty" validate:"max=120"`
}

// ToInput converts the body into a workflow input for the acting operator.
func (r CreateTransactionRequest) ToInput(operatorID string) RequestInput {
	return RequestInput{
		CustomerID:  uuid.MustParse(r.CustomerID),
		Category:    Category(r.Category),
		Type:        TxType(r.Type),
		Amount:      r.Amount,
		Reason:      r.Reason,
		RequestedBy: operatorID,
		ReferenceID: r.ReferenceID,
	}
}

// DecisionRequest carries the optional rejection reason.
type DecisionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ReverseRequest carries the mandatory reversal reason.
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// TransactionsResponse wraps the legs created by one request.
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}
