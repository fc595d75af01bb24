// Package httpapi is a thin JSON adapter over the analysis service.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/CIPHER-000/chess-AI-sub000/internal/service"
)

// Handler serves the analysis API.
type Handler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewRouter creates the HTTP router.
func NewRouter(log zerolog.Logger, svc *service.Service) http.Handler {
	h := &Handler{svc: svc, log: log.With().Str("component", "httpapi").Logger()}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(func(next http.Handler) http.Handler { return AccessLog(h.log, next) })
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/users/{userID}/analyze", h.analyze)
		r.Get("/users/{userID}/analyses", h.analyses)
		r.Get("/users/{userID}/summary", h.summary)
		r.Get("/users/{userID}/quota", h.quota)
		r.Put("/users/{userID}/tier", h.setTier)

		r.Get("/batches/{batchID}", h.batch)
		r.Delete("/batches/{batchID}", h.cancelBatch)

		r.Get("/games/{gameID}/analysis", h.gameAnalysis)
		r.Delete("/games/{gameID}/analysis", h.deleteAnalysis)

		r.Get("/pool/status", h.poolStatus)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
