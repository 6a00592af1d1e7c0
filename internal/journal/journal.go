// Package journal keeps an optional, asynchronous NDJSON record of every
// full exchange, one file per traveler.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one journaled exchange. Query and Response are kept untruncated.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"ts"`
	TravelerID string    `json:"traveler_id"`
	Channel    string    `json:"channel"`
	Backend    string    `json:"backend"`
	Mode       string    `json:"mode"`
	Encryption string    `json:"encryption,omitempty"`
	Query      string    `json:"query"`
	Response   string    `json:"response"`
	Content    string    `json:"content"`
	VowText    string    `json:"vow_text,omitempty"`
	VowStored  bool      `json:"vow_stored"`
	DurationMS float64   `json:"duration_ms"`
}

// Config controls the journal.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Journal writes entries on a background goroutine. A disabled journal
// accepts and discards entries.
type Journal struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	wg     sync.WaitGroup
}

// New creates the journal directory and starts the writer.
func New(cfg Config, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		return j, nil
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal dir is required when enabled")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
		j.cfg.QueueSize = cfg.QueueSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	j.queue = make(chan Entry, cfg.QueueSize)
	j.wg.Add(1)
	go j.run()
	return j, nil
}

// Log enqueues an entry without blocking. Entries are dropped with a warning
// when the queue is full.
func (j *Journal) Log(e Entry) {
	if j == nil || j.queue == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Content = cleanForReadability(e.Response)

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.logger.Warn("[JOURNAL] Queue full, dropping entry",
			"traveler_id", e.TravelerID,
			"queue_len", len(j.queue),
		)
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (j *Journal) Close() error {
	if j == nil || j.queue == nil {
		return nil
	}
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	j.wg.Wait()
	return nil
}

func (j *Journal) run() {
	defer j.wg.Done()
	for e := range j.queue {
		if err := j.write(e); err != nil {
			j.logger.Warn("[JOURNAL] Write failed", "traveler_id", e.TravelerID, "error", err)
		}
	}
}

func (j *Journal) write(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	path := filepath.Join(j.cfg.Dir, safeName(e.TravelerID)+".ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// safeName keeps traveler ids from escaping the journal directory.
func safeName(id string) string {
	name := unsafeChars.ReplaceAllString(id, "_")
	if name == "" {
		return "unknown"
	}
	return name
}

var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func cleanForReadability(s string) string {
	s = ansiSequence.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
