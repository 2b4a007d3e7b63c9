package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"docsync/internal/api"
	"docsync/internal/metrics"
)

// New assembles the HTTP surface. The WebSocket route stays outside the
// timeout group; collaboration connections are long lived.
func New(h *api.Handlers, corsOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{corsOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: corsOrigin != "*",
	}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Get("/api/v1/healthz", h.Health)
		r.Get("/api/v1/readyz", h.Ready)
		r.Handle("/metrics", metrics.Handler())
	})

	r.Get("/ws/collaboration", h.CollabWS)

	return r
}
