package betting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Choice is the result a bet is placed on; it doubles as the match outcome.
type Choice string

const (
	ChoiceHome Choice = "home"
	ChoiceDraw Choice = "draw"
	ChoiceAway Choice = "away"
)

// Valid reports whether c is a known choice.
func (c Choice) Valid() bool {
	return c == ChoiceHome || c == ChoiceDraw || c == ChoiceAway
}

// BetStatus is the lifecycle state of a bet
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusWon       BetStatus = "won"
	BetStatusLost      BetStatus = "lost"
	BetStatusCancelled BetStatus = "cancelled"
)

// Match is a fixture fed by the match-feed collaborator. Odds are raw market odds.
type Match struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	HomeTeam   string          `db:"home_team" json:"home_team"`
	AwayTeam   string          `db:"away_team" json:"away_team"`
	OddsHome   decimal.Decimal `db:"odds_home" json:"odds_home"`
	OddsDraw   decimal.Decimal `db:"odds_draw" json:"odds_draw"`
	OddsAway   decimal.Decimal `db:"odds_away" json:"odds_away"`
	HomeScore  *int            `db:"home_score" json:"home_score,omitempty"`
	AwayScore  *int            `db:"away_score" json:"away_score,omitempty"`
	IsFinished bool            `db:"is_finished" json:"is_finished"`
	StartsAt   *time.Time      `db:"starts_at" json:"starts_at,omitempty"`
	SettledAt  *time.Time      `db:"settled_at" json:"settled_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Description is the human label used in ledger reasons and notifications.
func (m *Match) Description() string {
	return fmt.Sprintf("%s vs %s", m.HomeTeam, m.AwayTeam)
}

// Outcome derives the winning choice from the final score.
func (m *Match) Outcome() (Choice, error) {
	if !m.IsFinished || m.HomeScore == nil || m.AwayScore == nil {
		return "", fmt.Errorf("%w: match %s is not finished with a final score", ErrMatchNotReady, m.ID)
	}
	switch {
	case *m.HomeScore > *m.AwayScore:
		return ChoiceHome, nil
	case *m.AwayScore > *m.HomeScore:
		return ChoiceAway, nil
	default:
		return ChoiceDraw, nil
	}
}

// RawOdds returns the market odds for a choice.
func (m *Match) RawOdds(c Choice) decimal.Decimal {
	switch c {
	case ChoiceHome:
		return m.OddsHome
	case ChoiceAway:
		return m.OddsAway
	default:
		return m.OddsDraw
	}
}

// Bet is a wager. Odds are the adjusted odds frozen at placement.
type Bet struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	MatchID      uuid.UUID       `db:"match_id" json:"match_id"`
	CustomerID   uuid.UUID       `db:"customer_id" json:"customer_id"`
	Amount       int64           `db:"amount" json:"amount"`
	Choice       Choice          `db:"choice" json:"choice"`
	Odds         decimal.Decimal `db:"odds" json:"odds"`
	PotentialWin int64           `db:"potential_win" json:"potential_win"`
	Status       BetStatus       `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	SettledAt    *time.Time      `db:"settled_at" json:"settled_at,omitempty"`
}

// PotentialWin is floor(amount * odds).
func PotentialWin(amount int64, odds decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(odds).Floor().IntPart()
}

// CreateMatchInput is the match-feed contract for a new fixture.
type CreateMatchInput struct {
	HomeTeam string
	AwayTeam string
	OddsHome decimal.Decimal
	OddsDraw decimal.Decimal
	OddsAway decimal.Decimal
	StartsAt *time.Time
}

// PlaceBetInput is a bet placement request.
type PlaceBetInput struct {
	MatchID    uuid.UUID
	CustomerID uuid.UUID
	Choice     Choice
	Amount     int64
	PlacedBy   string
}

// WinnerPayout is a credited winner.
type WinnerPayout struct {
	BetID         uuid.UUID  `json:"bet_id"`
	CustomerID    uuid.UUID  `json:"customer_id"`
	Stake         int64      `json:"stake"`
	Payout        int64      `json:"payout"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`

	// AlreadyCredited is set by a retry when an earlier run committed the credit.
	AlreadyCredited bool `json:"already_credited,omitempty"`
}

// FailedCredit is a winner whose payout could not be committed.
type FailedCredit struct {
	BetID      uuid.UUID `json:"bet_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Payout     int64     `json:"payout"`
	Error      string    `json:"error"`
}

// SettlementResult is the settlement summary of one match.
type SettlementResult struct {
	MatchID        uuid.UUID       `json:"match_id"`
	Description    string          `json:"description"`
	Outcome        Choice          `json:"outcome"`
	TotalStaked    int64           `json:"total_staked"`
	TotalPayout    int64           `json:"total_payout"`
	Profit         int64           `json:"profit"`
	ProfitRate     decimal.Decimal `json:"profit_rate"`
	WinCount       int             `json:"win_count"`
	LoseCount      int             `json:"lose_count"`
	SettledWinners []WinnerPayout  `json:"settled_winners"`
	FailedCredits  []FailedCredit  `json:"failed_credits"`
	SettledAt      time.Time       `json:"settled_at"`
}

// MatchResult is one entry of a bulk settlement.
type MatchResult struct {
	MatchID   uuid.UUID         `json:"match_id"`
	Result    *SettlementResult `json:"result,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Succeeded reports whether the match settled.
func (r MatchResult) Succeeded() bool {
	return r.Result != nil
}

// BulkResult is the combined report of a bulk settlement.
type BulkResult struct {
	Results      []MatchResult   `json:"results"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
	TotalStaked  int64           `json:"total_staked"`
	TotalPayout  int64           `json:"total_payout"`
	Profit       int64           `json:"profit"`
	ProfitRate   decimal.Decimal `json:"profit_rate"`
}

// WinnerNotification is emitted to the notification collaborator per credited winner.
type WinnerNotification struct {
	CustomerID       uuid.UUID `json:"customer_id"`
	MatchID          uuid.UUID `json:"match_id"`
	BetID            uuid.UUID `json:"bet_id"`
	MatchDescription string    `json:"match_description"`
	Stake            int64     `json:"stake"`
	Payout           int64     `json:"payout"`
}

func profitRate(profit, staked int64) decimal.Decimal {
	if staked == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(profit).Div(decimal.NewFromInt(staked)).Round(4)
}
