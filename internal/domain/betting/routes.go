package betting

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns betting router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/odds", h.Odds)
	r.Post("/bets", h.PlaceBet)
	r.Post("/settlements", h.SettleMany)

	r.Route("/matches", func(r chi.Router) {
		r.Post("/", h.CreateMatch)
		r.Get("/{id}", h.GetMatch)
		r.Get("/{id}/bets", h.ListBets)
		r.Get("/{id}/odds", h.MatchOdds)
		r.Put("/{id}/score", h.UpdateScore)
		r.Post("/{id}/settle", h.Settle)
		r.Post("/{id}/retry-credits", h.RetryCredits)
	})

	return r
}
