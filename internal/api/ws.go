package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/ashureev/mirror-pond/internal/identity"
	"github.com/ashureev/mirror-pond/internal/mirror"
)

const wsWriteTimeout = 10 * time.Second

// wsMessage is a server-to-client frame on /ws/mirror.
type wsMessage struct {
	Type    string            `json:"type"`
	Session string            `json:"session,omitempty"`
	Error   string            `json:"error,omitempty"`
	Status  int               `json:"status,omitempty"`
	Result  *mirror.AskResult `json:"result,omitempty"`
}

// MirrorSocket handles GET /ws/mirror. Each text frame carries one
// AskRequest; each answer is written back as a "reflection" frame.
// Travelers that send no user_hash are pinned to a hash derived from their
// first question and the session id.
func (h *Handler) MirrorSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originHosts(h.corsOrigins),
	})
	if err != nil {
		h.logger.Error("WebSocket accept failed", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "pond is still"); closeErr != nil {
			h.logger.Debug("WebSocket close", "error", closeErr)
		}
	}()

	ctx := r.Context()
	sessionID := uuid.NewString()
	clientIP := identity.IPFromRequest(r)
	pinned := ""
	logger := h.logger.With("session_id", sessionID)
	logger.Info("Mirror session opened")

	if err := h.writeFrame(ctx, ws, wsMessage{Type: "session", Session: sessionID}); err != nil {
		return
	}

	for {
		var req AskRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				logger.Info("Mirror session closed")
			} else {
				logger.Warn("Mirror session read failed", "error", err)
			}
			return
		}
		if err := validateStruct(&req); err != nil {
			if h.writeFrame(ctx, ws, wsMessage{Type: "error", Error: err.Error(), Status: http.StatusBadRequest}) != nil {
				return
			}
			continue
		}
		if req.UserHash == "" {
			if pinned == "" {
				pinned = mirror.UserHash(req.Query, req.Encryption, sessionID)
			}
			req.UserHash = pinned
		}
		if !h.allow(req.UserHash, r) {
			if h.writeFrame(ctx, ws, wsMessage{Type: "error", Error: "Too many reflections. The pond needs stillness.", Status: http.StatusTooManyRequests}) != nil {
				return
			}
			continue
		}

		res, err := h.svc.Ask(ctx, h.toServiceRequest(req, clientIP, "ws"))
		frame := wsMessage{Type: "reflection", Result: res}
		if err != nil {
			frame = wsMessage{Type: "error", Error: err.Error(), Status: askErrorStatus(err)}
		}
		if err := h.writeFrame(ctx, ws, frame); err != nil {
			logger.Warn("Mirror session write failed", "error", err)
			return
		}
	}
}

// originHosts reduces configured CORS origins to the host patterns the
// websocket origin check matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, rest, ok := strings.Cut(o, "://"); ok {
			o = rest
		}
		hosts = append(hosts, strings.TrimSuffix(o, "/"))
	}
	return hosts
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, msg wsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, msg)
}
