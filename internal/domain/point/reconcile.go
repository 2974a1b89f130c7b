package point

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Reconcile compares the stored balance against the ledger replay.
func (s *Service) Reconcile(ctx context.Context, customerID uuid.UUID) (*Reconciliation, error) {
	stored, derived, err := s.repo.Replay(ctx, customerID)
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{
		CustomerID:     customerID,
		StoredGeneral:  stored.GeneralPoints,
		StoredBetting:  stored.BettingPoints,
		DerivedGeneral: derived.GeneralPoints,
		DerivedBetting: derived.BettingPoints,
	}
	rec.Drift = rec.StoredGeneral != rec.DerivedGeneral || rec.StoredBetting != rec.DerivedBetting
	return rec, nil
}

// ReconcileAll checks every customer and returns the ones whose stored balance drifted.
func (s *Service) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	ids, err := s.repo.ListCustomerIDs(ctx)
	if err != nil {
		return nil, err
	}

	drifted := make([]Reconciliation, 0)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifted, err
		}
		rec, err := s.Reconcile(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("customer_id", id.String()).Msg("reconcile failed")
			continue
		}
		if rec.Drift {
			drifted = append(drifted, *rec)
		}
	}
	return drifted, nil
}

// ReconcileJob periodically replays the ledger and reports drift.
// It only reports; balances are never rewritten automatically.
type ReconcileJob struct {
	svc *Service
}

// NewReconcileJob creates a reconcile job
func NewReconcileJob(svc *Service) *ReconcileJob {
	return &ReconcileJob{svc: svc}
}

// Start runs the job with the given interval until ctx is cancelled
func (j *ReconcileJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Point reconcile job stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass and returns the number of drifted customers
func (j *ReconcileJob) RunOnce(ctx context.Context) int {
	drifted, err := j.svc.ReconcileAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Point reconcile pass failed")
	}

	for _, rec := range drifted {
		log.Error().
			Str("customer_id", rec.CustomerID.String()).
			Int64("stored_general", rec.StoredGeneral).
			Int64("derived_general", rec.DerivedGeneral).
			Int64("stored_betting", rec.StoredBetting).
			Int64("derived_betting", rec.DerivedBetting).
			Msg("Point balance drift detected")
	}
	return len(drifted)
}
