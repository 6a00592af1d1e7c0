package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/mirror-pond/internal/memory"
)

const defaultReflectionLimit = 10

// MemoryVows handles POST /memory/vows.
func (h *Handler) MemoryVows(w http.ResponseWriter, r *http.Request) {
	var req MemoryRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := memory.UserPrefix + req.UserHash
	st := h.mem.Stats(userID)
	if !st.Exists && st.VowCount == 0 {
		JSON(w, http.StatusNotFound, map[string]string{
			"error":      "User not found in memory",
			"suggestion": "Ask the mirror a question first to begin your journey",
		})
		return
	}
	vows := h.mem.Vows(userID)
	JSON(w, http.StatusOK, map[string]any{
		"user_id":          userID,
		"vow_count":        len(vows),
		"vows":             vows,
		"immutable_axioms": strings.Split(memory.Axioms, "\n"),
		"lotus_count":      len(vows),
	})
}

// MemoryReflections handles POST /memory/reflections?limit=N.
func (h *Handler) MemoryReflections(w http.ResponseWriter, r *http.Request) {
	var req MemoryRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := defaultReflectionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	userID := memory.UserPrefix + req.UserHash
	st := h.mem.Stats(userID)
	JSON(w, http.StatusOK, map[string]any{
		"user_id":            userID,
		"reflection_count":   st.ReflectionCount,
		"total_interactions": st.InteractionCount,
		"recent_reflections": h.mem.Reflections(userID, limit),
	})
}

// MemoryStats handles POST /memory/stats.
func (h *Handler) MemoryStats(w http.ResponseWriter, r *http.Request) {
	var req MemoryRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	st := h.mem.Stats(memory.UserPrefix + req.UserHash)
	c := h.svc.Counters()
	JSON(w, http.StatusOK, struct {
		statsView
		SystemStats map[string]int64 `json:"system_stats"`
	}{
		statsView: statsView(st),
		SystemStats: map[string]int64{
			"total_interactions":      c.TotalInteractions,
			"total_vows_stored":       int64(h.mem.Totals().Vows),
			"total_scrolls_reflected": c.ScrollsReflected,
			"total_toad_secrets":      c.ToadSecretsRevealed,
		},
	})
}
