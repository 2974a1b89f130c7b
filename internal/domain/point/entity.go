package point

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is one of the two point balances a customer holds.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryBetting Category = "betting"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryGeneral || c == CategoryBetting
}

// Other returns the opposite category. Exchanges always move points between the two.
func (c Category) Other() Category {
	if c == CategoryGeneral {
		return CategoryBetting
	}
	return CategoryGeneral
}

// TxType defines supported point transaction types.
type TxType string

const (
	TxTypeCharge   TxType = "charge"
	TxTypeUse      TxType = "use"
	TxTypeRefund   TxType = "refund"
	TxTypeExchange TxType = "exchange"
	TxTypeWin      TxType = "win"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	switch t {
	case TxTypeCharge, TxTypeUse, TxTypeRefund, TxTypeExchange, TxTypeWin:
		return true
	}
	return false
}

// RequiresReason reports whether requests of this type must carry a reason.
func (t TxType) RequiresReason() bool {
	return t == TxTypeUse || t == TxTypeExchange
}

// Status is the decision outcome of a transaction.
// Reversal is tracked separately by Transaction.IsReversed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Reference namespaces owned by the betting flow. Operators cannot issue
// transactions under them.
const (
	WinReferencePrefix   = "win:"
	StakeReferencePrefix = "bet:"
)

// IsSystemReference reports whether ref lives in a namespace reserved for
// settlement wins and bet stakes.
func IsSystemReference(ref string) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(ref, WinReferencePrefix) || strings.HasPrefix(ref, StakeReferencePrefix)
}

// Balance is a customer's point balance pair.
type Balance struct {
	CustomerID    uuid.UUID `db:"id" json:"customer_id"`
	GeneralPoints int64     `db:"general_points" json:"general_points"`
	BettingPoints int64     `db:"betting_points" json:"betting_points"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Of returns the balance of one category.
func (b Balance) Of(c Category) int64 {
	if c == CategoryBetting {
		return b.BettingPoints
	}
	return b.GeneralPoints
}

// Transaction is a ledger row. Amount is signed: positive credits, negative debits.
type Transaction struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	CustomerID     uuid.UUID  `db:"customer_id" json:"customer_id"`
	Amount         int64      `db:"amount" json:"amount"`
	Category       Category   `db:"category" json:"category"`
	Type           TxType     `db:"tx_type" json:"type"`
	Status         Status     `db:"status" json:"status"`
	Reason         string     `db:"reason" json:"reason"`
	RequestedBy    string     `db:"requested_by" json:"requested_by"`
	ApprovedBy     *string    `db:"approved_by" json:"approved_by,omitempty"`
	DecidedAt      *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CorrelationID  *uuid.UUID `db:"correlation_id" json:"correlation_id,omitempty"`
	ReferenceID    *string    `db:"reference_id" json:"reference_id,omitempty"`
	IsReversed     bool       `db:"is_reversed" json:"is_reversed"`
	ReversedAt     *time.Time `db:"reversed_at" json:"reversed_at,omitempty"`
	ReversedBy     *string    `db:"reversed_by" json:"reversed_by,omitempty"`
	ReversalReason *string    `db:"reversal_reason" json:"reversal_reason,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Effective reports whether the row currently counts towards the balance.
func (t *Transaction) Effective() bool {
	return t.Status == StatusApproved && !t.IsReversed
}

// RequestInput is an inbound transaction request. Amount is the magnitude;
// the sign is derived from Type.
type RequestInput struct {
	CustomerID  uuid.UUID
	Category    Category
	Type        TxType
	Amount      int64
	Reason      string
	RequestedBy string

	// ReferenceID makes system-issued transactions idempotent.
	ReferenceID string
}

// HistoryFilter narrows the audit read.
type HistoryFilter struct {
	Category *Category
	Status   *Status
	Limit    int
	Offset   int
}

// Reconciliation compares stored balances to the ledger replay.
type Reconciliation struct {
	CustomerID     uuid.UUID `json:"customer_id"`
	StoredGeneral  int64     `json:"stored_general"`
	StoredBetting  int64     `json:"stored_betting"`
	DerivedGeneral int64     `json:"derived_general"`
	DerivedBetting int64     `json:"derived_betting"`
	Drift          bool      `json:"drift"`
}
