package betting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SettleMany settles each match independently, bounded by BulkWorkers.
// A failing match is captured in its MatchResult and never stops the others.
// Results follow the order of matchIDs.
func (s *Service) SettleMany(ctx context.Context, matchIDs []uuid.UUID) *BulkResult {
	results := make([]MatchResult, len(matchIDs))
	seen := make(map[uuid.UUID]bool, len(matchIDs))

	var g errgroup.Group
	g.SetLimit(s.cfg.BulkWorkers)
	for i, id := range matchIDs {
		results[i].MatchID = id
		if seen[id] {
			err := fmt.Errorf("%w: match %s listed more than once", ErrValidation, id)
			results[i].ErrorCode = ErrorCode(err)
			results[i].Error = err.Error()
			continue
		}
		seen[id] = true

		i, id := i, id
		g.Go(func() error {
			res, err := s.Settle(ctx, id)
			if err != nil {
				results[i].ErrorCode = ErrorCode(err)
				results[i].Error = err.Error()
				return nil
			}
			results[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	bulk := &BulkResult{Results: results}
	for _, r := range results {
		if !r.Succeeded() {
			bulk.FailureCount++
			continue
		}
		bulk.SuccessCount++
		bulk.TotalStaked += r.Result.TotalStaked
		bulk.TotalPayout += r.Result.TotalPayout
	}
	bulk.Profit = bulk.TotalStaked - bulk.TotalPayout
	bulk.ProfitRate = profitRate(bulk.Profit, bulk.TotalStaked)

	log.Info().
		Int("matches", len(matchIDs)).
		Int("success_count", bulk.SuccessCount).
		Int("failure_count", bulk.FailureCount).
		Int64("profit", bulk.Profit).
		Msg("bulk settlement finished")
	return bulk
}
