package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/crosslink/internal/linkservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *linkservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Recorded runs.
	r.Get("/runs", h.ListRuns)
	r.Post("/runs", h.StartRun)
	r.Get("/runs/{id}", h.GetRun)
	r.Get("/runs/{id}/candidates", h.RunCandidates)
	r.Get("/runs/{id}/tokens/*", h.RunTokens)

	// Live queries against the current vault.
	r.Get("/aliases", h.Aliases)
	r.Get("/suggestions/*", h.Suggest)
	r.Get("/distance", h.Distance)
	r.Post("/preview", h.Preview)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
