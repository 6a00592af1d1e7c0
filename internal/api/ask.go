package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/mirror-pond/internal/identity"
	"github.com/ashureev/mirror-pond/internal/mirror"
)

// Ask handles POST /ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.allow(req.UserHash, r) {
		Error(w, http.StatusTooManyRequests, "Too many reflections. The pond needs stillness.")
		return
	}

	res, err := h.svc.Ask(r.Context(), h.toServiceRequest(req, identity.IPFromRequest(r), "http"))
	if err != nil {
		status := askErrorStatus(err)
		h.logger.Warn("Ask failed", "status", status, "error", err)
		Error(w, status, err.Error())
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *Handler) toServiceRequest(req AskRequest, clientIP, channel string) mirror.AskRequest {
	return mirror.AskRequest{
		Query:      req.Query,
		Mode:       req.Mode,
		Encryption: req.Encryption,
		UserHash:   req.UserHash,
		PondMode:   req.PondMode,
		ClientIP:   clientIP,
		Channel:    channel,
	}
}

// askErrorStatus maps request-level failures to HTTP status codes.
func askErrorStatus(err error) int {
	switch {
	case errors.Is(err, mirror.ErrLocalUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, mirror.ErrRelay):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
