package betting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateMatchRequest struct {
	HomeTeam string          `json:"home_team" validate:"required,max=120"`
	AwayTeam string          `json:"away_team" validate:"required,max=120"`
	OddsHome decimal.Decimal `json:"odds_home"`
	OddsDraw decimal.Decimal `json:"odds_draw"`
	OddsAway decimal.Decimal `json:"odds_away"`
	StartsAt *time.Time      `json:"starts_at,omitempty"`
}

type UpdateScoreRequest struct {
	HomeScore  *int `json:"home_score" validate:"required,gte=0"`
	AwayScore  *int `json:"away_score" validate:"required,gte=0"`
	IsFinished bool `json:"is_finished"`
}

type SettleManyRequest struct {
	MatchIDs []string `json:"match_ids" validate:"required,min=1,max=200,dive,uuid"`
}

// ParseIDs converts validated match ids.
func (r SettleManyRequest) ParseIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.MatchIDs))
	for _, s := range r.MatchIDs {
		ids = append(ids, uuid.MustParse(s))
	}
	return ids
}

type PlaceBetRequest struct {
	MatchID    string `json:"match_id" validate:"required,uuid"`
	CustomerID string `json:"customer_id" validate:"required,uuid"`
	Choice     string `json:"choice" validate:"required,bet_choice"`
	Amount     int64  `json:"amount" validate:"gt=0"`
}

// ToInput converts the body into a placement for the acting operator.
func (r PlaceBetRequest) ToInput(operatorID string) PlaceBetInput {
	return PlaceBetInput{
		MatchID:    uuid.MustParse(r.MatchID),
		CustomerID: uuid.MustParse(r.CustomerID),
		Choice:     Choice(r.Choice),
		Amount:     r.Amount,
		PlacedBy:   operatorID,
	}
}
