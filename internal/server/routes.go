package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"travel_budget/pkg/httpx/reply"
)

func (s Server) RegisterRoutes(r chi.Router) {
	r.Route("/", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", handler(s.postV1Session))
				r.Get("/{id}", handler(s.getV1Session))
				r.Delete("/{id}", handler(s.deleteV1Session))
				r.Post("/{id}/packages", handler(s.postV1SessionPackage))
				r.Post("/{id}/modifications", handler(s.postV1SessionModification))
				r.Post("/{id}/finalize", handler(s.postV1SessionFinalize))
			})

			r.Route("/budgets", func(r chi.Router) {
				r.Get("/{id}", handler(s.getV1Budget))
				r.Post("/{id}/reconstruct", handler(s.postV1BudgetReconstruct))
				r.Get("/{id}/warnings", handler(s.getV1BudgetWarnings))
			})
		})
	})
}

func handler(f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			reply.Error(r.Context(), w, err)
		}
	}
}
