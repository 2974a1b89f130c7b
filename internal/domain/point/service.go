package point

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the transaction workflow. It is the only caller of Tx.ApplyDelta.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new point workflow service
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Request records a pending transaction. Exchanges produce two linked legs.
// Balances are not touched until approval.
func (s *Service) Request(ctx context.Context, in RequestInput) ([]Transaction, error) {
	if err := validateOperatorRequest(in); err != nil {
		return nil, err
	}

	legs := s.buildLegs(in)
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		for i := range legs {
			if err := tx.InsertTransaction(ctx, &legs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("transaction_id", legs[0].ID.String()).
		Str("customer_id", in.CustomerID.String()).
		Str("type", string(in.Type)).
		Str("category", string(in.Category)).
		Int64("amount", in.Amount).
		Str("requested_by", in.RequestedBy).
		Msg("point transaction requested")
	return legs, nil
}

// Issue records a pre-approved operator transaction and applies it in the same
// unit of work. Wins and the reserved reference namespaces are refused.
func (s *Service) Issue(ctx context.Context, in RequestInput) ([]Transaction, error) {
	if err := validateOperatorRequest(in); err != nil {
		return nil, err
	}
	return s.issue(ctx, in)
}

// IssueSystem is Issue for the betting flow: bet stakes and settlement wins.
// The reference id must live in a reserved namespace so no operator entry can
// occupy it.
func (s *Service) IssueSystem(ctx context.Context, in RequestInput) ([]Transaction, error) {
	if err := validateRequest(in); err != nil {
		return nil, err
	}
	if !IsSystemReference(in.ReferenceID) {
		return nil, fmt.Errorf("%w: system transactions need a %s or %s reference", ErrValidation, WinReferencePrefix, StakeReferencePrefix)
	}
	return s.issue(ctx, in)
}

// FindByReference returns the entry holding a reference id.
func (s *Service) FindByReference(ctx context.Context, txType TxType, category Category, referenceID string) (*Transaction, error) {
	return s.repo.GetByReference(ctx, txType, category, strings.TrimSpace(referenceID))
}

func (s *Service) issue(ctx context.Context, in RequestInput) ([]Transaction, error) {
	legs := s.buildLegs(in)
	now := s.now()
	for i := range legs {
		legs[i].Status = StatusApproved
		legs[i].ApprovedBy = strPtr(in.RequestedBy)
		legs[i].DecidedAt = &now
	}

	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		for i := range legs {
			if err := tx.InsertTransaction(ctx, &legs[i]); err != nil {
				return err
			}
		}
		return applyLegs(ctx, tx, legs, 1)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("transaction_id", legs[0].ID.String()).
		Str("customer_id", in.CustomerID.String()).
		Str("type", string(in.Type)).
		Str("category", string(in.Category)).
		Int64("amount", in.Amount).
		Str("issued_by", in.RequestedBy).
		Msg("point transaction issued")
	return legs, nil
}

// Approve applies a pending transaction (both legs of an exchange) and marks it approved.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approvedBy string) (*Transaction, error) {
	approvedBy = strings.TrimSpace(approvedBy)
	if approvedBy == "" {
		return nil, fmt.Errorf("%w: approver is required", ErrValidation)
	}

	var result *Transaction
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		legs, err := tx.LockGroup(ctx, id)
		if err != nil {
			return err
		}
		for _, leg := range legs {
			if leg.Status != StatusPending {
				return fmt.Errorf("%w: transaction %s is %s, not pending", ErrInvalidTransition, leg.ID, leg.Status)
			}
		}

		if err := applyLegs(ctx, tx, legs, 1); err != nil {
			return err
		}

		now := s.now()
		for i := range legs {
			legs[i].Status = StatusApproved
			legs[i].ApprovedBy = strPtr(approvedBy)
			legs[i].DecidedAt = &now
			if err := tx.UpdateTransaction(ctx, &legs[i]); err != nil {
				return err
			}
		}
		result = pick(legs, id)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", id.String()).Str("approved_by", approvedBy).Msg("point transaction approval failed")
		return nil, err
	}

	log.Info().
		Str("transaction_id", id.String()).
		Str("customer_id", result.CustomerID.String()).
		Int64("amount", result.Amount).
		Str("approved_by", approvedBy).
		Msg("point transaction approved")
	return result, nil
}

// Reject closes a pending transaction without any balance effect.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, rejectedBy, reason string) (*Transaction, error) {
	rejectedBy = strings.TrimSpace(rejectedBy)
	if rejectedBy == "" {
		return nil, fmt.Errorf("%w: approver is required", ErrValidation)
	}
	reason = strings.TrimSpace(reason)

	var result *Transaction
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		legs, err := tx.LockGroup(ctx, id)
		if err != nil {
			return err
		}
		for _, leg := range legs {
			if leg.Status != StatusPending {
				return fmt.Errorf("%w: transaction %s is %s, not pending", ErrInvalidTransition, leg.ID, leg.Status)
			}
		}

		now := s.now()
		for i := range legs {
			legs[i].Status = StatusRejected
			legs[i].ApprovedBy = strPtr(rejectedBy)
			legs[i].DecidedAt = &now
			if reason != "" {
				legs[i].Reason = appendReason(legs[i].Reason, "rejected: "+reason)
			}
			if err := tx.UpdateTransaction(ctx, &legs[i]); err != nil {
				return err
			}
		}
		result = pick(legs, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("transaction_id", id.String()).
		Str("rejected_by", rejectedBy).
		Str("reason", reason).
		Msg("point transaction rejected")
	return result, nil
}

// Reverse undoes an approved transaction by applying the inverse of every leg.
// If the customer already spent the credited points the reversal fails with
// ErrInsufficientBalance and the entry stays un-reversed.
func (s *Service) Reverse(ctx context.Context, id uuid.UUID, reversedBy, reason string) (*Transaction, error) {
	reversedBy = strings.TrimSpace(reversedBy)
	reason = strings.TrimSpace(reason)
	if reversedBy == "" {
		return nil, fmt.Errorf("%w: reverser is required", ErrValidation)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: reversal reason is required", ErrValidation)
	}

	var result *Transaction
	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		legs, err := tx.LockGroup(ctx, id)
		if err != nil {
			return err
		}
		for _, leg := range legs {
			if leg.Status != StatusApproved {
				return fmt.Errorf("%w: transaction %s is %s, only approved transactions can be reversed", ErrInvalidTransition, leg.ID, leg.Status)
			}
			if leg.IsReversed {
				return fmt.Errorf("%w: transaction %s is already reversed", ErrInvalidTransition, leg.ID)
			}
		}

		if err := applyLegs(ctx, tx, legs, -1); err != nil {
			return err
		}

		now := s.now()
		for i := range legs {
			legs[i].IsReversed = true
			legs[i].ReversedAt = &now
			legs[i].ReversedBy = strPtr(reversedBy)
			legs[i].ReversalReason = strPtr(reason)
			if err := tx.UpdateTransaction(ctx, &legs[i]); err != nil {
				return err
			}
		}
		result = pick(legs, id)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("transaction_id", id.String()).Str("reversed_by", reversedBy).Msg("point transaction reversal failed")
		return nil, err
	}

	log.Info().
		Str("transaction_id", id.String()).
		Str("customer_id", result.CustomerID.String()).
		Int64("amount", result.Amount).
		Str("reversed_by", reversedBy).
		Str("reason", reason).
		Msg("point transaction reversed")
	return result, nil
}

// Get returns a single ledger entry
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// History returns the customer's ledger, newest first, including reversal metadata
func (s *Service) History(ctx context.Context, customerID uuid.UUID, filter HistoryFilter) ([]Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListTransactions(ctx, customerID, filter)
}

// GetBalance returns the current balance pair for display
func (s *Service) GetBalance(ctx context.Context, customerID uuid.UUID) (Balance, error) {
	return s.repo.GetBalance(ctx, customerID)
}

func validateRequest(in RequestInput) error {
	if in.CustomerID == uuid.Nil {
		return fmt.Errorf("%w: customer id is required", ErrValidation)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, in.Category)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, in.Type)
	}
	if in.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	}
	if strings.TrimSpace(in.RequestedBy) == "" {
		return fmt.Errorf("%w: requester is required", ErrValidation)
	}
	if in.Type.RequiresReason() && strings.TrimSpace(in.Reason) == "" {
		return fmt.Errorf("%w: reason is required for %s", ErrValidation, in.Type)
	}
	if in.Type == TxTypeWin && in.Category != CategoryBetting {
		return fmt.Errorf("%w: win transactions credit betting points", ErrValidation)
	}
	return nil
}

// validateOperatorRequest adds the rules for entries an operator creates by hand.
func validateOperatorRequest(in RequestInput) error {
	if err := validateRequest(in); err != nil {
		return err
	}
	if in.Type == TxTypeWin {
		return fmt.Errorf("%w: win transactions are issued by settlement only", ErrValidation)
	}
	if IsSystemReference(in.ReferenceID) {
		return fmt.Errorf("%w: reference id %q uses a reserved prefix", ErrValidation, in.ReferenceID)
	}
	return nil
}

// buildLegs turns a request into ledger rows with signed amounts.
func (s *Service) buildLegs(in RequestInput) []Transaction {
	now := s.now()
	base := Transaction{
		CustomerID:  in.CustomerID,
		Category:    in.Category,
		Type:        in.Type,
		Status:      StatusPending,
		Reason:      strings.TrimSpace(in.Reason),
		RequestedBy: strings.TrimSpace(in.RequestedBy),
		CreatedAt:   now,
	}
	if ref := strings.TrimSpace(in.ReferenceID); ref != "" {
		base.ReferenceID = &ref
	}

	switch in.Type {
	case TxTypeUse:
		base.ID = uuid.New()
		base.Amount = -in.Amount
		return []Transaction{base}
	case TxTypeExchange:
		correlationID := uuid.New()

		out := base
		out.ID = uuid.New()
		out.Amount = -in.Amount
		out.CorrelationID = &correlationID

		into := base
		into.ID = uuid.New()
		into.Category = in.Category.Other()
		into.Amount = in.Amount
		into.CorrelationID = &correlationID

		return []Transaction{out, into}
	default:
		base.ID = uuid.New()
		base.Amount = in.Amount
		return []Transaction{base}
	}
}

// applyLegs pushes each leg's amount (sign = 1) or its inverse (sign = -1)
// through the balance store, debits first so a shortfall fails before any credit.
func applyLegs(ctx context.Context, tx Tx, legs []Transaction, sign int64) error {
	ordered := make([]Transaction, len(legs))
	copy(ordered, legs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Amount*sign < ordered[j].Amount*sign
	})

	for _, leg := range ordered {
		if _, err := tx.ApplyDelta(ctx, leg.CustomerID, leg.Category, leg.Amount*sign); err != nil {
			return err
		}
	}
	return nil
}

func pick(legs []Transaction, id uuid.UUID) *Transaction {
	for i := range legs {
		if legs[i].ID == id {
			out := legs[i]
			return &out
		}
	}
	out := legs[0]
	return &out
}

func appendReason(current, addition string) string {
	if current == "" {
		return addition
	}
	return current + " | " + addition
}

func strPtr(s string) *string {
	return &s
}
