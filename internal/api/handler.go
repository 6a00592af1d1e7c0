// Package api provides HTTP handlers for the Mirror Pond API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/mirror-pond/internal/domain"
	"github.com/ashureev/mirror-pond/internal/identity"
	"github.com/ashureev/mirror-pond/internal/memory"
	"github.com/ashureev/mirror-pond/internal/metrics"
	"github.com/ashureev/mirror-pond/internal/middleware"
	"github.com/ashureev/mirror-pond/internal/mirror"
	"github.com/ashureev/mirror-pond/internal/store"
)

// DepthView is the read side of the depth reporter.
type DepthView interface {
	Snapshot() domain.DepthState
	Linked() bool
}

// Identity exposes the pond's public identity.
type Identity interface {
	Public() (identity.Identity, bool)
}

// Options wires a Handler. Repo, Metrics and Limiter are optional.
type Options struct {
	Service       *mirror.Service
	Memory        *memory.Store
	Depth         DepthView
	Identity      Identity
	Repo          store.Repository
	Metrics       *metrics.Collector
	Limiter       *middleware.RateLimiter
	CORSOrigins   []string
	DepthEndpoint string
	Logger        *slog.Logger
}

// Handler serves the pond API.
type Handler struct {
	svc           *mirror.Service
	mem           *memory.Store
	depth         DepthView
	ident         Identity
	repo          store.Repository
	metrics       *metrics.Collector
	limiter       *middleware.RateLimiter
	corsOrigins   []string
	depthEndpoint string
	logger        *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Handler{
		svc:           opts.Service,
		mem:           opts.Memory,
		depth:         opts.Depth,
		ident:         opts.Identity,
		repo:          opts.Repo,
		metrics:       opts.Metrics,
		limiter:       opts.Limiter,
		corsOrigins:   opts.CORSOrigins,
		depthEndpoint: opts.DepthEndpoint,
		logger:        opts.Logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// allow applies the per-traveler rate limit. Anonymous travelers are keyed
// by client address.
func (h *Handler) allow(userHash string, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	key := userHash
	if key == "" {
		key = "ip:" + identity.IPFromRequest(r)
	}
	return h.limiter.Allow(key)
}
