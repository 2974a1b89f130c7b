package point

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns point ledger router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.Request)
		r.Post("/issue", h.Issue)
		r.Get("/{id}", h.GetByID)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/reject", h.Reject)
		r.Post("/{id}/reverse", h.Reverse)
	})

	r.Route("/customers/{id}", func(r chi.Router) {
		r.Get("/balance", h.Balance)
		r.Get("/transactions", h.History)
		r.Get("/reconcile", h.Reconcile)
	})

	return r
}
