package ocean

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mirror-pond/internal/domain"
)

// DepthConfig configures a DepthClient.
type DepthConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DepthClient submits signed depth packets.
type DepthClient struct {
	p *poster
}

// NewDepthClient returns nil when no endpoint is configured.
func NewDepthClient(cfg DepthConfig) *DepthClient {
	if cfg.Endpoint == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-OCEAN-KEY"] = cfg.APIKey
	}
	return &DepthClient{p: newPoster("ocean-depth", cfg.Endpoint, headers, cfg.Timeout, cfg.HTTPClient, cfg.Logger)}
}

// Submit posts the packet; the response body is ignored.
func (c *DepthClient) Submit(ctx context.Context, p domain.DepthPacket) error {
	_, err := c.p.post(ctx, p)
	return err
}
