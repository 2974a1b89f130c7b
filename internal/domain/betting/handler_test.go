package betting_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointline/pointline-api/internal/domain/betting"
	"github.com/pointline/pointline-api/internal/middleware"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func fakeAuth(operatorID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithOperatorID(r.Context(), operatorID)))
		})
	}
}

func do(t *testing.T, h http.Handler, method, path string, payload interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestHandlerBetAndSettleFlow(t *testing.T) {
	h := newHarness(t)
	router := betting.NewHandler(h.svc).Routes(fakeAuth("op-3"))
	customer := h.customer(t, 500)

	rec, resp := do(t, router, http.MethodPost, "/matches", map[string]interface{}{
		"home_team": "Block A",
		"away_team": "Block B",
		"odds_home": "2.0",
		"odds_draw": 3.2,
		"odds_away": "4.0",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m betting.Match
	require.NoError(t, json.Unmarshal(resp.Data, &m))

	rec, resp = do(t, router, http.MethodPost, "/bets", map[string]interface{}{
		"match_id":    m.ID.String(),
		"customer_id": customer.String(),
		"choice":      "home",
		"amount":      100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bet betting.Bet
	require.NoError(t, json.Unmarshal(resp.Data, &bet))
	assert.Equal(t, int64(195), bet.PotentialWin)
	assert.Equal(t, int64(400), h.bettingBalance(t, customer))

	rec, _ = do(t, router, http.MethodPost, "/matches/"+m.ID.String()+"/settle", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, router, http.MethodPut, "/matches/"+m.ID.String()+"/score", map[string]interface{}{
		"home_score":  2,
		"away_score":  0,
		"is_finished": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = do(t, router, http.MethodPost, "/matches/"+m.ID.String()+"/settle", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res betting.SettlementResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.Equal(t, int64(195), res.TotalPayout)
	assert.Equal(t, int64(595), h.bettingBalance(t, customer))

	rec, resp = do(t, router, http.MethodPost, "/matches/"+m.ID.String()+"/settle", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ALREADY_SETTLED", resp.Error.Code)

	rec, resp = do(t, router, http.MethodGet, "/matches/"+m.ID.String()+"/bets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bets []betting.Bet
	require.NoError(t, json.Unmarshal(resp.Data, &bets))
	require.Len(t, bets, 1)
	assert.Equal(t, betting.BetStatusWon, bets[0].Status)
}

func TestHandlerSettleMany(t *testing.T) {
	h := newHarness(t)
	router := betting.NewHandler(h.svc).Routes(fakeAuth("op-3"))

	done := h.match(t)
	winner := h.customer(t, 0)
	h.seedBet(t, done.ID, winner, betting.ChoiceHome, 100, "2.0")
	h.finish(t, done.ID, 1, 0)
	live := h.match(t)

	rec, resp := do(t, router, http.MethodPost, "/settlements", map[string]interface{}{
		"match_ids": []string{done.ID.String(), live.ID.String(), uuid.NewString()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var bulk betting.BulkResult
	require.NoError(t, json.Unmarshal(resp.Data, &bulk))
	require.Len(t, bulk.Results, 3)
	assert.Equal(t, 1, bulk.SuccessCount)
	assert.Equal(t, 2, bulk.FailureCount)
	assert.True(t, bulk.Results[0].Succeeded())
	assert.Equal(t, "MATCH_NOT_READY", bulk.Results[1].ErrorCode)
	assert.Equal(t, "NOT_FOUND", bulk.Results[2].ErrorCode)
	assert.Equal(t, int64(100), bulk.TotalStaked)
	assert.Equal(t, int64(200), bulk.TotalPayout)
	assert.Equal(t, int64(-100), bulk.Profit)

	// the failed entries leave the settled match's credits in place
	assert.Equal(t, int64(200), h.bettingBalance(t, winner))
	require.NotNil(t, bulk.Results[0].Result)
	require.Len(t, bulk.Results[0].Result.SettledWinners, 1)
	assert.Equal(t, winner, bulk.Results[0].Result.SettledWinners[0].CustomerID)
}

func TestHandlerValidation(t *testing.T) {
	h := newHarness(t)
	router := betting.NewHandler(h.svc).Routes(fakeAuth("op-3"))

	rec, resp := do(t, router, http.MethodPost, "/bets", map[string]interface{}{
		"match_id":    "nope",
		"customer_id": uuid.NewString(),
		"choice":      "over",
		"amount":      0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Details, "match_id")
	assert.Contains(t, resp.Error.Details, "choice")
	assert.Contains(t, resp.Error.Details, "amount")

	rec, _ = do(t, router, http.MethodPost, "/settlements", map[string]interface{}{"match_ids": []string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/matches/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = do(t, router, http.MethodGet, "/matches/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestHandlerOdds(t *testing.T) {
	h := newHarness(t)
	router := betting.NewHandler(h.svc).Routes(fakeAuth("op-3"))

	rec, resp := do(t, router, http.MethodGet, "/odds?home=2.0&draw=3.0&away=5.0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var line struct {
		Home string `json:"home"`
		Draw string `json:"draw"`
		Away string `json:"away"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &line))
	assert.Equal(t, "1.95", line.Home)
	assert.Equal(t, "2.9", line.Draw)
	assert.Equal(t, "4.8", line.Away)

	rec, resp = do(t, router, http.MethodGet, "/odds?home=2.0&draw=1.0&away=5.0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	rec, _ = do(t, router, http.MethodGet, "/odds?home=x", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
