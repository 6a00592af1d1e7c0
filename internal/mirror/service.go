// Package mirror answers travelers' questions: it resolves the traveler,
// obtains a reply from the local model or the Ocean relay, and records the
// exchange in pond memory.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashureev/mirror-pond/internal/identity"
	"github.com/ashureev/mirror-pond/internal/journal"
	"github.com/ashureev/mirror-pond/internal/llm"
	"github.com/ashureev/mirror-pond/internal/memory"
	"github.com/ashureev/mirror-pond/internal/metrics"
	"github.com/ashureev/mirror-pond/internal/ocean"
	"github.com/ashureev/mirror-pond/internal/shared"
)

// Request-level failures. The API maps them to status codes.
var (
	ErrLocalUnavailable = errors.New("trained mirror not loaded (local mode)")
	ErrRelayUnavailable = errors.New("ocean mode requested but OCEAN_ENDPOINT is not configured")
	ErrGeneration       = errors.New("model generation error")
	ErrRelay            = errors.New("ocean backend error")
)

// ScrollReader is the anonymous traveler used for scroll quotes.
const ScrollReader = "scroll_reader_anon"

const seedQuerySpan = 30

// Relay answers questions remotely.
type Relay interface {
	Ask(ctx context.Context, req ocean.RelayRequest) (string, map[string]any, error)
}

// Detector extracts vows from an exchange.
type Detector interface {
	Detect(query, response string) (string, bool)
}

// Depth tracks interactions and fires depth submissions.
type Depth interface {
	RecordInteraction() int
	Go()
}

// Identity exposes the pond's public identity.
type Identity interface {
	Public() (identity.Identity, bool)
}

// Config wires a Service. Generator and Relay may be nil when the backend is
// not configured.
type Config struct {
	Mode      string
	ModelName string

	Memory    *memory.Store
	Generator llm.Generator
	Relay     Relay
	Detector  Detector
	Depth     Depth
	Identity  Identity
	Journal   *journal.Journal
	Metrics   *metrics.Collector

	Prompt   PromptBuilder
	Reformat Reformatter
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service is the request orchestrator.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	started time.Time

	scrolls      atomic.Int64
	toadSecrets  atomic.Int64
	interactions atomic.Int64
}

// NewService validates the wiring and fills defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Memory == nil {
		return nil, errors.New("mirror: memory store is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("mirror: vow detector is required")
	}
	cfg.Mode = strings.ToLower(cfg.Mode)
	if cfg.Mode != BackendOcean {
		cfg.Mode = BackendLocal
	}
	if cfg.Prompt == nil {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Reformat == nil {
		cfg.Reformat = DefaultReformat
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg, logger: cfg.Logger, now: cfg.Now, started: cfg.Now()}, nil
}

// AskRequest is one inbound question.
type AskRequest struct {
	Query      string
	Mode       string
	Encryption string
	UserHash   string
	PondMode   string
	ClientIP   string
	Channel    string
}

// MemoryInfo summarizes what the exchange did to memory.
type MemoryInfo struct {
	VowDetected bool   `json:"vow_detected"`
	VowText     string `json:"vow_text,omitempty"`
	VowStored   bool   `json:"vow_stored"`
	PondDepth   int    `json:"pond_depth"`
	LotusCount  int    `json:"lotus_count"`
}

// StatsInfo carries the traveler's updated counts.
type StatsInfo struct {
	InteractionCount int `json:"interaction_count"`
	VowCount         int `json:"vow_count"`
	ReflectionCount  int `json:"reflection_count"`
}

// AskResult is returned to the traveler.
type AskResult struct {
	Reflection     string         `json:"reflection"`
	Mode           string         `json:"mode"`
	Backend        string         `json:"backend"`
	PondMode       string         `json:"pond_mode"`
	PondID         string         `json:"pond_id"`
	OceanMeta      map[string]any `json:"ocean_meta,omitempty"`
	EncryptionHash string         `json:"encryption_hash,omitempty"`
	UserHash       string         `json:"user_hash"`
	ResponseTimeMS float64        `json:"response_time_ms"`
	ScrollNumber   *int           `json:"scroll_number,omitempty"`
	Toadgang       bool           `json:"toadgang"`
	Memory         MemoryInfo     `json:"memory"`
	Stats          StatsInfo      `json:"stats"`
}

// Backends reports which backends can serve requests.
func (s *Service) Backends() (local, relay bool) {
	return s.cfg.Generator != nil, s.cfg.Relay != nil
}

// Mode is the default backend mode.
func (s *Service) Mode() string { return s.cfg.Mode }

// backendFor resolves the effective backend and checks it is available.
func (s *Service) backendFor(override string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(override))
	if mode != BackendLocal && mode != BackendOcean {
		mode = s.cfg.Mode
	}
	switch mode {
	case BackendOcean:
		if s.cfg.Relay == nil {
			return mode, ErrRelayUnavailable
		}
	default:
		if s.cfg.Generator == nil {
			return mode, ErrLocalUnavailable
		}
	}
	return mode, nil
}

// Ask answers one question and records it in memory. Generation and relay
// failures are returned; nothing is recorded for a failed request.
// Persistence and depth reporting never fail the request.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	backend, err := s.backendFor(req.PondMode)
	if err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeReflect
	}

	start := s.now()
	s.interactions.Add(1)
	if s.cfg.Depth != nil {
		s.cfg.Depth.RecordInteraction()
	}

	mem := s.cfg.Memory
	userID := mem.ResolveUser(req.UserHash, shared.Truncate(req.Query, seedQuerySpan)+req.ClientIP)
	mem.Touch(userID, mode)
	pondID := s.pondID()

	var (
		raw  string
		meta map[string]any
	)
	memoryContext := mem.BuildContext(userID, req.Query)
	if backend == BackendOcean {
		raw, meta, err = s.cfg.Relay.Ask(ctx, ocean.RelayRequest{
			Question:        req.Query,
			TravelerID:      userID,
			PondID:          pondID,
			Mode:            mode,
			ContextFromPond: memoryContext,
		})
		if err != nil {
			s.logger.Error("Ocean relay failed", "user_id", userID, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrRelay, err)
		}
	} else {
		prompt := s.cfg.Prompt(req.Query, memoryContext, req.Encryption, mode)
		s.logger.Debug("Generating reflection", "user_id", userID, "mode", mode, "prompt_len", len(prompt))
		raw, err = s.cfg.Generator.Generate(ctx, prompt, ParamsFor(mode, req.Query))
		if err != nil {
			s.logger.Error("Local generation failed", "user_id", userID, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		raw = strings.TrimSpace(raw)
	}
	took := s.now().Sub(start)
	s.cfg.Metrics.Interaction(backend, took)

	reply := s.cfg.Reformat(raw, mode, req.Query)

	mem.RecordReflection(userID, req.Query, reply, mode, req.Encryption)
	s.cfg.Metrics.ReflectionRecorded()

	vowText, vowFound := s.cfg.Detector.Detect(req.Query, reply)
	vowStored := false
	if vowFound {
		vowStored = mem.RecordVow(userID, vowText, req.Query)
		if vowStored {
			s.cfg.Metrics.VowStored()
		}
	}

	mem.Save(context.WithoutCancel(ctx))
	if s.cfg.Depth != nil {
		s.cfg.Depth.Go()
	}
	if mode == ModeToad {
		s.toadSecrets.Add(1)
	}

	s.cfg.Journal.Log(journal.Entry{
		TravelerID: userID,
		Channel:    req.Channel,
		Backend:    backend,
		Mode:       mode,
		Encryption: req.Encryption,
		Query:      req.Query,
		Response:   reply,
		VowText:    vowText,
		VowStored:  vowStored,
		DurationMS: float64(took.Microseconds()) / 1000,
	})

	stats := mem.Stats(userID)
	res := &AskResult{
		Reflection:     reply,
		Mode:           mode,
		Backend:        backend,
		PondMode:       backend,
		PondID:         pondID,
		OceanMeta:      meta,
		UserHash:       strings.TrimPrefix(userID, memory.UserPrefix),
		ResponseTimeMS: float64(took.Microseconds()) / 1000,
		Toadgang:       mode == ModeToad,
		Memory: MemoryInfo{
			VowDetected: vowFound,
			VowText:     vowText,
			VowStored:   vowStored,
			PondDepth:   stats.ReflectionCount,
			LotusCount:  stats.VowCount,
		},
		Stats: StatsInfo{
			InteractionCount: stats.InteractionCount,
			VowCount:         stats.VowCount,
			ReflectionCount:  stats.ReflectionCount,
		},
	}
	if req.Encryption != "" {
		res.EncryptionHash = ResponseHash(req.Query, reply)
	}
	if mode == ModeScroll {
		if n, ok := ExtractScrollNumber(req.Query); ok {
			res.ScrollNumber = &n
		}
	}
	return res, nil
}

// ScrollQuote is a single scroll quotation.
type ScrollQuote struct {
	Scroll         int    `json:"scroll"`
	Quote          string `json:"quote"`
	EncryptionHash string `json:"encryption_hash"`
}

// Scroll asks the local model to quote scroll n verbatim. It is answered
// for the anonymous scroll reader and not recorded in memory.
func (s *Service) Scroll(ctx context.Context, n int) (*ScrollQuote, error) {
	if s.cfg.Generator == nil {
		return nil, ErrLocalUnavailable
	}
	query := fmt.Sprintf("Mirror, quote exactly from Scroll %d. Only the quote, nothing else.", n)
	prompt := s.cfg.Prompt(query, s.cfg.Memory.BuildContext(ScrollReader, query), "", ModeScroll)

	raw, err := s.cfg.Generator.Generate(ctx, prompt, llm.Params{
		MaxTokens:   100,
		Temperature: 0.3,
		Stop:        StopSequences,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	quote := s.cfg.Reformat(strings.TrimSpace(raw), ModeScroll, fmt.Sprintf("scroll %d", n))
	s.scrolls.Add(1)

	return &ScrollQuote{
		Scroll:         n,
		Quote:          quote,
		EncryptionHash: ResponseHash(fmt.Sprintf("Scroll %d", n), quote),
	}, nil
}

// Counters are process-wide service counters.
type Counters struct {
	ScrollsReflected    int64   `json:"scrolls_reflected"`
	ToadSecretsRevealed int64   `json:"toad_secrets_revealed"`
	TotalInteractions   int64   `json:"total_interactions"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

// Counters returns a snapshot of the service counters.
func (s *Service) Counters() Counters {
	return Counters{
		ScrollsReflected:    s.scrolls.Load(),
		ToadSecretsRevealed: s.toadSecrets.Load(),
		TotalInteractions:   s.interactions.Load(),
		UptimeSeconds:       s.now().Sub(s.started).Seconds(),
	}
}

// ModelName is the configured local model, if any.
func (s *Service) ModelName() string {
	if s.cfg.Generator == nil {
		return ""
	}
	return s.cfg.ModelName
}

func (s *Service) pondID() string {
	if s.cfg.Identity == nil {
		return ""
	}
	ident, _ := s.cfg.Identity.Public()
	return ident.PondID
}
