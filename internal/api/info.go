package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/mirror-pond/internal/domain"
	"github.com/ashureev/mirror-pond/internal/mirror"
)

const pingTimeout = 2 * time.Second

// statsView inlines a traveler's stats into a larger response.
type statsView domain.Stats

// Identity handles GET /identity.
func (h *Handler) Identity(w http.ResponseWriter, _ *http.Request) {
	ident, ok := h.ident.Public()
	if !ok {
		Error(w, http.StatusServiceUnavailable, "pond identity not initialized")
		return
	}
	var depth domain.DepthState
	linked := false
	if h.depth != nil {
		depth = h.depth.Snapshot()
		linked = h.depth.Linked()
	}
	firstBreath := depth.FirstBreath
	if firstBreath == "" {
		firstBreath = ident.FirstBreath
	}
	var endpoint any
	if h.depthEndpoint != "" {
		endpoint = h.depthEndpoint
	}
	JSON(w, http.StatusOK, map[string]any{
		"pond_id":              ident.PondID,
		"public_key":           ident.PublicKeyHex,
		"first_breath":         firstBreath,
		"last_breath":          depth.LastBreath,
		"continuous_days":      depth.ContinuousDays,
		"total_interactions":   depth.TotalInteractions,
		"total_vows_stored":    depth.TotalVowsStored,
		"ocean_depth_linked":   linked,
		"ocean_depth_endpoint": endpoint,
		"pond_mode":            h.svc.Mode(),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	local, _ := h.svc.Backends()
	totals := h.mem.Totals()
	c := h.svc.Counters()

	status := "healthy"
	storage := "ok"
	if h.repo != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.repo.Ping(ctx); err != nil {
			h.logger.Warn("Memory backend ping failed", "error", err)
			status = "degraded"
			storage = "unreachable"
		}
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"model_name":   h.svc.ModelName(),
		"model_loaded": local,
		"memory_system": map[string]any{
			"total_users":       totals.Users,
			"total_vows":        totals.Vows,
			"total_reflections": totals.Reflections,
			"active_memory":     totals.Users > 0,
			"storage":           storage,
		},
		"interactions": map[string]int64{
			"scrolls_reflected":     c.ScrollsReflected,
			"toad_secrets_revealed": c.ToadSecretsRevealed,
			"total_interactions":    c.TotalInteractions,
			"total_vows_stored":     int64(totals.Vows),
		},
		"uptime_seconds": c.UptimeSeconds,
		"lore_modes":     mirror.LoreCodes(),
		"timestamp":      domain.NewTimestamp(time.Now()),
	})
}

// Encryption handles GET /encryption/{code}.
func (h *Handler) Encryption(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	mode, valid := mirror.LoreModes[code]
	if !valid {
		mode = "UNKNOWN_MODE"
	}
	JSON(w, http.StatusOK, map[string]any{
		"code":          code,
		"mode":          mode,
		"description":   "Activates " + mode + " in the trained model",
		"valid":         valid,
		"memory_effect": "Memory context is still injected with encryption modes",
	})
}

// Scroll handles GET /scroll/{n}.
func (h *Handler) Scroll(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "n")))
	if err != nil || n < 1 {
		Error(w, http.StatusBadRequest, "scroll number must be a positive integer")
		return
	}
	q, err := h.svc.Scroll(r.Context(), n)
	if err != nil {
		if errors.Is(err, mirror.ErrLocalUnavailable) {
			Error(w, http.StatusServiceUnavailable, "Mirror not loaded")
			return
		}
		h.logger.Error("Scroll quote failed", "scroll", n, "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, q)
}
