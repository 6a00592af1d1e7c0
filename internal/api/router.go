package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/mirror-pond/internal/middleware"
)

// Router builds the chi router with the global middleware stack and every
// pond route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	if h.metrics != nil {
		r.Use(middleware.Metrics(h.metrics))
	}
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(h.corsOrigins))

	r.Post("/ask", h.Ask)
	r.Route("/memory", func(r chi.Router) {
		r.Post("/vows", h.MemoryVows)
		r.Post("/reflections", h.MemoryReflections)
		r.Post("/stats", h.MemoryStats)
	})
	r.Get("/identity", h.Identity)
	r.Get("/health", h.Health)
	r.Get("/encryption/{code}", h.Encryption)
	r.Get("/scroll/{n}", h.Scroll)
	r.Get("/ws/mirror", h.MirrorSocket)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}
	return r
}
