package betting

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pointline/pointline-api/internal/domain/odds"
	"github.com/pointline/pointline-api/internal/middleware"
	"github.com/pointline/pointline-api/internal/pkg/errorhandler"
	"github.com/pointline/pointline-api/internal/pkg/response"
	"github.com/pointline/pointline-api/internal/pkg/validator"
)

// Handler handles betting HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates betting handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateMatch handles POST /betting/matches
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	m, err := h.service.CreateMatch(r.Context(), CreateMatchInput{
		HomeTeam: req.HomeTeam,
		AwayTeam: req.AwayTeam,
		OddsHome: req.OddsHome,
		OddsDraw: req.OddsDraw,
		OddsAway: req.OddsAway,
		StartsAt: req.StartsAt,
	})
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.Created(w, m)
}

// GetMatch handles GET /betting/matches/{id}
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMatchID(w, r)
	if !ok {
		return
	}

	m, err := h.service.GetMatch(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, m)
}

// ListBets handles GET /betting/matches/{id}/bets
func (h *Handler) ListBets(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMatchID(w, r)
	if !ok {
		return
	}

	bets, err := h.service.ListBets(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, bets)
}

// MatchOdds handles GET /betting/matches/{id}/odds
func (h *Handler) MatchOdds(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMatchID(w, r)
	if !ok {
		return
	}

	line, err := h.service.CurrentOdds(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, line)
}

// Odds handles GET /betting/odds?home=&draw=&away=
// @Summary Adjust raw odds with the current house margin (display only)
// @Tags Betting
// @Router /betting/odds [get]
func (h *Handler) Odds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := odds.Line{}
	details := make(map[string]string)
	for name, dst := range map[string]*decimal.Decimal{"home": &raw.Home, "draw": &raw.Draw, "away": &raw.Away} {
		v, err := decimal.NewFromString(q.Get(name))
		if err != nil {
			details[name] = "Must be a decimal number"
			continue
		}
		*dst = v
	}
	if len(details) > 0 {
		errorhandler.HandleValidation(r.Context(), w, details)
		return
	}

	line, err := h.service.AdjustLine(raw)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, line)
}

// UpdateScore handles PUT /betting/matches/{id}/score
func (h *Handler) UpdateScore(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMatchID(w, r)
	if !ok {
		return
	}
	var req UpdateScoreRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	m, err := h.service.UpdateScore(r.Context(), id, *req.HomeScore, *req.AwayScore, req.IsFinished)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, m)
}

// Settle handles POST /betting/matches/{id}/settle
// @Summary Settle a finished match and credit winners
// @Tags Betting
// @Success 200 {object} response.Response{data=SettlementResult}
// @Failure 404,409 {object} response.Response
// @Router /betting/matches/{id}/settle [post]
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMatchID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Settle(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, result)
}

// RetryCredits handles POST /betting/matches/{id}/retry-credits
func (h *Handler) RetryCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := parseMatchID(w, r)
	if !ok {
		return
	}

	result, err := h.service.RetryCredits(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, result)
}

// SettleMany handles POST /betting/settlements
func (h *Handler) SettleMany(w http.ResponseWriter, r *http.Request) {
	var req SettleManyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	response.OK(w, h.service.SettleMany(r.Context(), req.ParseIDs()))
}

// PlaceBet handles POST /betting/bets
func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	bet, err := h.service.PlaceBet(r.Context(), req.ToInput(middleware.GetOperatorID(r.Context())))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.Created(w, bet)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := response.DecodeJSON(r.Body, dst); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return false
	}
	if errs := validator.Validate(dst); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return false
	}
	return true
}

func parseMatchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid match ID")
		return uuid.Nil, false
	}
	return id, true
}
