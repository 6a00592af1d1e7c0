package ocean

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// RelayRequest is forwarded to the remote Mirror.
type RelayRequest struct {
	Question        string `json:"question"`
	TravelerID      string `json:"traveler_id"`
	PondID          string `json:"pond_id"`
	Mode            string `json:"mode"`
	ContextFromPond string `json:"context_from_pond"`
}

// answerFields are tried in order when extracting the relay's answer.
var answerFields = []string{"answer", "reflection", "output", "response"}

// RelayConfig configures a Relay.
type RelayConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Relay forwards questions plus pond memory to a remote Mirror.
type Relay struct {
	p *poster
}

// NewRelay returns nil when no endpoint is configured.
func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Endpoint == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 40 * time.Second
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	return &Relay{p: newPoster("ocean-relay", cfg.Endpoint, headers, cfg.Timeout, cfg.HTTPClient, cfg.Logger)}
}

// Ask posts the question and returns the extracted answer with the full
// decoded response.
func (r *Relay) Ask(ctx context.Context, req RelayRequest) (string, map[string]any, error) {
	if req.Mode == "" {
		req.Mode = "reflect"
	}
	body, err := r.p.post(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return "", nil, fmt.Errorf("decode relay response: %w", err)
	}
	return extractAnswer(data, body), data, nil
}

func extractAnswer(data map[string]any, raw []byte) string {
	for _, field := range answerFields {
		switch v := data[field].(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		case bool:
			if v {
				return "true"
			}
		case float64:
			if v != 0 {
				return fmt.Sprint(v)
			}
		default:
			b, _ := json.Marshal(v)
			if len(b) > 2 {
				return string(b)
			}
		}
	}
	return string(raw)
}
