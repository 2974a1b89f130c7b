package betting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pointline/pointline-api/internal/domain/odds"
	"github.com/pointline/pointline-api/internal/domain/point"
)

const settlementActor = "settlement"

// odds columns are NUMERIC(10,4)
var maxRawOdds = decimal.NewFromInt(1_000_000)

// PointIssuer is the slice of the point workflow betting needs.
type PointIssuer interface {
	IssueSystem(ctx context.Context, in point.RequestInput) ([]point.Transaction, error)
	FindByReference(ctx context.Context, txType point.TxType, category point.Category, referenceID string) (*point.Transaction, error)
	Reverse(ctx context.Context, id uuid.UUID, reversedBy, reason string) (*point.Transaction, error)
}

// Config tunes the settlement service.
type Config struct {
	CreditWorkers int
	BulkWorkers   int
}

// Service settles matches and places bets.
type Service struct {
	repo     Repository
	points   PointIssuer
	adjuster odds.Adjuster
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

// NewService creates the betting service. A nil notifier logs only.
func NewService(repo Repository, points PointIssuer, adjuster odds.Adjuster, notifier Notifier, cfg Config) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if cfg.CreditWorkers <= 0 {
		cfg.CreditWorkers = 8
	}
	if cfg.BulkWorkers <= 0 {
		cfg.BulkWorkers = 4
	}
	return &Service{
		repo:     repo,
		points:   points,
		adjuster: adjuster,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Settle decides every bet of a finished match and credits the winners.
// A match is settled at most once; per-winner credit failures are reported in
// FailedCredits and do not abort the rest.
func (s *Service) Settle(ctx context.Context, matchID uuid.UUID) (*SettlementResult, error) {
	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	outcome, err := m.Outcome()
	if err != nil {
		return nil, err
	}
	if m.SettledAt != nil {
		return nil, fmt.Errorf("%w: match %s", ErrAlreadySettled, matchID)
	}

	settledAt := s.now()
	bets, err := s.repo.ClaimSettlement(ctx, matchID, outcome, settledAt)
	if err != nil {
		return nil, err
	}

	result := summarize(m, outcome, bets, settledAt)
	result.SettledWinners, result.FailedCredits = s.creditWinners(ctx, m, winners(bets))

	log.Info().
		Str("match_id", matchID.String()).
		Str("outcome", string(outcome)).
		Int64("total_staked", result.TotalStaked).
		Int64("total_payout", result.TotalPayout).
		Int64("profit", result.Profit).
		Int("win_count", result.WinCount).
		Int("lose_count", result.LoseCount).
		Int("failed_credits", len(result.FailedCredits)).
		Msg("match settled")
	return result, nil
}

// RetryCredits re-issues the win credit of every won bet of a settled match.
// Credits that already committed are detected by their reference and skipped,
// so only earlier failures take effect.
func (s *Service) RetryCredits(ctx context.Context, matchID uuid.UUID) (*SettlementResult, error) {
	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.SettledAt == nil {
		return nil, fmt.Errorf("%w: match %s has not been settled", ErrMatchNotReady, matchID)
	}
	outcome, err := m.Outcome()
	if err != nil {
		return nil, err
	}

	bets, err := s.repo.ListBets(ctx, matchID)
	if err != nil {
		return nil, err
	}

	result := summarize(m, outcome, bets, *m.SettledAt)
	result.SettledWinners, result.FailedCredits = s.creditWinners(ctx, m, winners(bets))

	log.Info().
		Str("match_id", matchID.String()).
		Int("settled_winners", len(result.SettledWinners)).
		Int("failed_credits", len(result.FailedCredits)).
		Msg("settlement credits retried")
	return result, nil
}

// creditWinners issues one approved win per bet, bounded by CreditWorkers.
// Output order follows the input order.
func (s *Service) creditWinners(ctx context.Context, m *Match, bets []Bet) ([]WinnerPayout, []FailedCredit) {
	type outcome struct {
		payout *WinnerPayout
		failed *FailedCredit
	}
	outcomes := make([]outcome, len(bets))

	var g errgroup.Group
	g.SetLimit(s.cfg.CreditWorkers)
	for i := range bets {
		i, bet := i, bets[i]
		g.Go(func() error {
			payout, err := s.creditWinner(ctx, m, bet)
			if err != nil {
				log.Error().Err(err).
					Str("match_id", m.ID.String()).
					Str("bet_id", bet.ID.String()).
					Str("customer_id", bet.CustomerID.String()).
					Int64("payout", bet.PotentialWin).
					Msg("winner credit failed")
				outcomes[i].failed = &FailedCredit{
					BetID:      bet.ID,
					CustomerID: bet.CustomerID,
					Payout:     bet.PotentialWin,
					Error:      fmt.Errorf("%w: %v", ErrCreditFailure, err).Error(),
				}
				return nil
			}
			outcomes[i].payout = payout
			return nil
		})
	}
	_ = g.Wait()

	settled := make([]WinnerPayout, 0, len(bets))
	failed := make([]FailedCredit, 0)
	for _, o := range outcomes {
		if o.failed != nil {
			failed = append(failed, *o.failed)
			continue
		}
		settled = append(settled, *o.payout)
	}
	return settled, failed
}

func (s *Service) creditWinner(ctx context.Context, m *Match, bet Bet) (*WinnerPayout, error) {
	payout := &WinnerPayout{
		BetID:      bet.ID,
		CustomerID: bet.CustomerID,
		Stake:      bet.Amount,
		Payout:     bet.PotentialWin,
	}

	reference := winReference(bet.ID)
	legs, err := s.points.IssueSystem(ctx, point.RequestInput{
		CustomerID:  bet.CustomerID,
		Category:    point.CategoryBetting,
		Type:        point.TxTypeWin,
		Amount:      bet.PotentialWin,
		Reason:      fmt.Sprintf("win: %s (match %s)", m.Description(), m.ID),
		RequestedBy: settlementActor,
		ReferenceID: reference,
	})
	if errors.Is(err, point.ErrDuplicateReference) {
		if err := s.verifyCredited(ctx, bet, reference); err != nil {
			return nil, err
		}
		payout.AlreadyCredited = true
		return payout, nil
	}
	if err != nil {
		return nil, err
	}
	payout.TransactionID = &legs[0].ID

	notification := WinnerNotification{
		CustomerID:       bet.CustomerID,
		MatchID:          m.ID,
		BetID:            bet.ID,
		MatchDescription: m.Description(),
		Stake:            bet.Amount,
		Payout:           bet.PotentialWin,
	}
	if err := s.notifier.NotifyWinner(ctx, notification); err != nil {
		log.Warn().Err(err).
			Str("bet_id", bet.ID.String()).
			Str("customer_id", bet.CustomerID.String()).
			Msg("winner notification failed")
	}
	return payout, nil
}

// verifyCredited checks that the entry already holding a bet's win reference
// is that bet's payout and still counts.
func (s *Service) verifyCredited(ctx context.Context, bet Bet, reference string) error {
	existing, err := s.points.FindByReference(ctx, point.TxTypeWin, point.CategoryBetting, reference)
	if err != nil {
		return fmt.Errorf("load win %s: %w", reference, err)
	}
	switch {
	case existing.CustomerID != bet.CustomerID:
		return fmt.Errorf("win %s belongs to customer %s, not %s", reference, existing.CustomerID, bet.CustomerID)
	case existing.Amount != bet.PotentialWin:
		return fmt.Errorf("win %s credited %d, expected %d", reference, existing.Amount, bet.PotentialWin)
	case !existing.Effective():
		return fmt.Errorf("win %s (transaction %s) is %s, reversed=%t", reference, existing.ID, existing.Status, existing.IsReversed)
	}
	return nil
}

func winReference(betID uuid.UUID) string {
	return point.WinReferencePrefix + betID.String()
}

func stakeReference(betID uuid.UUID) string {
	return point.StakeReferencePrefix + betID.String()
}

// UpdateScore records a score from the match feed.
func (s *Service) UpdateScore(ctx context.Context, matchID uuid.UUID, home, away int, finished bool) (*Match, error) {
	if home < 0 || away < 0 {
		return nil, fmt.Errorf("%w: scores cannot be negative", ErrValidation)
	}
	m, err := s.repo.UpdateScore(ctx, matchID, home, away, finished)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("match_id", matchID.String()).
		Int("home_score", home).
		Int("away_score", away).
		Bool("finished", finished).
		Msg("match score updated")
	return m, nil
}

// CreateMatch registers a fixture from the match feed.
func (s *Service) CreateMatch(ctx context.Context, in CreateMatchInput) (*Match, error) {
	in.HomeTeam = strings.TrimSpace(in.HomeTeam)
	in.AwayTeam = strings.TrimSpace(in.AwayTeam)
	if in.HomeTeam == "" || in.AwayTeam == "" {
		return nil, fmt.Errorf("%w: both teams are required", ErrValidation)
	}
	one := decimal.NewFromInt(1)
	for _, o := range []decimal.Decimal{in.OddsHome, in.OddsDraw, in.OddsAway} {
		if o.LessThanOrEqual(one) {
			return nil, fmt.Errorf("%w: raw odds must be greater than 1, got %s", ErrValidation, o)
		}
		if !o.Equal(o.Truncate(odds.MaxPlaces)) {
			return nil, fmt.Errorf("%w: raw odds carry at most %d decimal places, got %s", ErrValidation, odds.MaxPlaces, o)
		}
		if o.GreaterThanOrEqual(maxRawOdds) {
			return nil, fmt.Errorf("%w: raw odds must be below %s, got %s", ErrValidation, maxRawOdds, o)
		}
	}

	now := s.now()
	m := &Match{
		ID:        uuid.New(),
		HomeTeam:  in.HomeTeam,
		AwayTeam:  in.AwayTeam,
		OddsHome:  in.OddsHome,
		OddsDraw:  in.OddsDraw,
		OddsAway:  in.OddsAway,
		StartsAt:  in.StartsAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateMatch(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMatch returns a match
func (s *Service) GetMatch(ctx context.Context, matchID uuid.UUID) (*Match, error) {
	return s.repo.GetMatch(ctx, matchID)
}

// ListBets returns every bet on a match
func (s *Service) ListBets(ctx context.Context, matchID uuid.UUID) ([]Bet, error) {
	if _, err := s.repo.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	return s.repo.ListBets(ctx, matchID)
}

// CurrentOdds returns the house odds currently offered on a match. Display only.
func (s *Service) CurrentOdds(ctx context.Context, matchID uuid.UUID) (odds.Line, error) {
	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		return odds.Line{}, err
	}
	return s.adjuster.AdjustLine(odds.Line{Home: m.OddsHome, Draw: m.OddsDraw, Away: m.OddsAway})
}

// AdjustLine applies the current margin to arbitrary raw odds. Display only.
func (s *Service) AdjustLine(raw odds.Line) (odds.Line, error) {
	return s.adjuster.AdjustLine(raw)
}

// PlaceBet freezes the adjusted odds on a new bet and debits the stake from
// the customer's betting points.
func (s *Service) PlaceBet(ctx context.Context, in PlaceBetInput) (*Bet, error) {
	if in.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("%w: customer id is required", ErrValidation)
	}
	if !in.Choice.Valid() {
		return nil, fmt.Errorf("%w: unknown choice %q", ErrValidation, in.Choice)
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	}
	if strings.TrimSpace(in.PlacedBy) == "" {
		return nil, fmt.Errorf("%w: placed_by is required", ErrValidation)
	}

	m, err := s.repo.GetMatch(ctx, in.MatchID)
	if err != nil {
		return nil, err
	}
	if m.IsFinished || m.SettledAt != nil {
		return nil, fmt.Errorf("%w: match %s", ErrBettingClosed, m.ID)
	}

	adjusted, err := s.adjuster.Adjust(m.RawOdds(in.Choice))
	if err != nil {
		return nil, err
	}

	bet := &Bet{
		ID:           uuid.New(),
		MatchID:      m.ID,
		CustomerID:   in.CustomerID,
		Amount:       in.Amount,
		Choice:       in.Choice,
		Odds:         adjusted,
		PotentialWin: PotentialWin(in.Amount, adjusted),
		Status:       BetStatusPending,
		CreatedAt:    s.now(),
	}

	stake, err := s.points.IssueSystem(ctx, point.RequestInput{
		CustomerID:  in.CustomerID,
		Category:    point.CategoryBetting,
		Type:        point.TxTypeUse,
		Amount:      in.Amount,
		Reason:      fmt.Sprintf("bet: %s (%s @ %s)", m.Description(), in.Choice, adjusted.StringFixed(s.adjuster.Places())),
		RequestedBy: in.PlacedBy,
		ReferenceID: stakeReference(bet.ID),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertBet(ctx, bet); err != nil {
		// the stake is already debited; give it back
		if _, rerr := s.points.Reverse(ctx, stake[0].ID, settlementActor, "bet placement failed: "+err.Error()); rerr != nil {
			log.Error().Err(rerr).
				Str("transaction_id", stake[0].ID.String()).
				Str("bet_id", bet.ID.String()).
				Msg("stake refund after failed placement failed")
		}
		return nil, err
	}

	log.Info().
		Str("bet_id", bet.ID.String()).
		Str("match_id", m.ID.String()).
		Str("customer_id", in.CustomerID.String()).
		Str("choice", string(in.Choice)).
		Int64("amount", in.Amount).
		Str("odds", adjusted.String()).
		Int64("potential_win", bet.PotentialWin).
		Msg("bet placed")
	return bet, nil
}

func winners(bets []Bet) []Bet {
	out := make([]Bet, 0)
	for _, b := range bets {
		if b.Status == BetStatusWon {
			out = append(out, b)
		}
	}
	return out
}

// summarize computes the aggregate figures. Cancelled bets are not part of the book.
func summarize(m *Match, outcome Choice, bets []Bet, settledAt time.Time) *SettlementResult {
	r := &SettlementResult{
		MatchID:     m.ID,
		Description: m.Description(),
		Outcome:     outcome,
		SettledAt:   settledAt,
	}
	for _, b := range bets {
		switch b.Status {
		case BetStatusWon:
			r.TotalStaked += b.Amount
			r.TotalPayout += b.PotentialWin
			r.WinCount++
		case BetStatusLost:
			r.TotalStaked += b.Amount
			r.LoseCount++
		}
	}
	r.Profit = r.TotalStaked - r.TotalPayout
	r.ProfitRate = profitRate(r.Profit, r.TotalStaked)
	return r
}
