// Package ocean talks to the optional upstream Ocean services: the relay
// that answers questions remotely and the depth aggregator.
package ocean

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ocean returned status %d: %s", e.Code, e.Body)
}

// ErrBreakerOpen wraps breaker rejections so callers need not import gobreaker.
var ErrBreakerOpen = errors.New("ocean circuit breaker open")

const maxErrorBody = 512

// poster sends JSON bodies through a circuit breaker.
type poster struct {
	endpoint string
	headers  map[string]string
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
}

func newPoster(name, endpoint string, headers map[string]string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *poster {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Ocean circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &poster{endpoint: endpoint, headers: headers, http: httpClient, cb: cb}
}

// post marshals body, sends it, and returns the raw response body.
func (p *poster) post(ctx context.Context, body any) ([]byte, error) {
	out, err := p.cb.Execute(func() (interface{}, error) {
		return p.do(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (p *poster) do(ctx context.Context, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", p.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: msg}
	}
	return data, nil
}
