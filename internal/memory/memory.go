// Package memory holds per-traveler pond memory: vows, reflections, and
// activity metadata, persisted through a store.Repository snapshot.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/mirror-pond/internal/domain"
	"github.com/ashureev/mirror-pond/internal/shared"
	"github.com/ashureev/mirror-pond/internal/store"
)

const (
	// UserPrefix prefixes every traveler identifier.
	UserPrefix = "traveler_"

	// MaxReflections is the size of each traveler's reflection ring.
	MaxReflections = 15

	maxQueryLen        = 500
	maxResponseLen     = 1000
	maxVowContextLen   = 100
	derivedHashLen     = 12
	vowHashLen         = 8
	reflectionHashLen  = 8
	reflectionHashSpan = 50
	seedSpan           = 50
	statsListLimit     = 5
)

// Options configures a Store.
type Options struct {
	Repo   store.Repository
	Logger *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the sole owner of vows, reflections, and traveler metadata.
// All mutations are serialized by a single lock.
type Store struct {
	mu          sync.Mutex
	vows        map[string][]domain.Vow
	reflections map[string][]domain.Reflection
	metadata    map[string]*domain.UserMetadata

	saveMu sync.Mutex
	repo   store.Repository
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty store. Call Load to restore persisted memory.
func New(opt Options) *Store {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Store{
		vows:        make(map[string][]domain.Vow),
		reflections: make(map[string][]domain.Reflection),
		metadata:    make(map[string]*domain.UserMetadata),
		repo:        opt.Repo,
		logger:      opt.Logger,
		now:         opt.Now,
	}
}

// Load restores memory from the repository. Read or decode failures are
// logged and leave the store empty.
func (s *Store) Load(ctx context.Context) {
	if s.repo == nil {
		return
	}
	snap, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("Failed to load pond memory, starting empty", "error", err)
		return
	}

	vows, reflections, metadata := decodeSnapshot(snap)

	s.mu.Lock()
	s.vows, s.reflections, s.metadata = vows, reflections, metadata
	s.mu.Unlock()

	s.logger.Info("Pond memory loaded", "travelers", len(vows), "reflection_streams", len(reflections))
}

// Save persists the current memory. Failures are logged, never returned.
func (s *Store) Save(ctx context.Context) {
	if s.repo == nil {
		return
	}

	// Writes land in the order snapshots were taken.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	snap := encodeSnapshot(s.vows, s.reflections, s.metadata)
	s.mu.Unlock()

	if err := s.repo.Save(ctx, snap); err != nil {
		s.logger.Error("Failed to save pond memory", "error", err)
	}
}

// ResolveUser maps a caller-supplied hash to a traveler id. When the hash is
// empty one is derived from the seed and the current time, so two calls with
// the same seed may differ. Metadata is created for unseen travelers.
func (s *Store) ResolveUser(suppliedHash, seed string) string {
	hash := strings.TrimSpace(suppliedHash)
	now := s.now()
	if hash == "" {
		hash = shared.Fingerprint(fmt.Sprintf("%s%d", shared.Truncate(seed, seedSpan), now.UnixNano()), derivedHashLen)
	}
	userID := UserPrefix + hash

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.metadata[userID]; !ok {
		s.metadata[userID] = &domain.UserMetadata{
			FirstSeen: now,
			LastSeen:  now,
			ModesUsed: domain.NewModeSet(),
		}
	}
	return userID
}

// Touch records one interaction for a known traveler.
func (s *Store) Touch(userID, mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.metadata[userID]
	if !ok {
		return
	}
	meta.InteractionCount++
	meta.LastSeen = s.now()
	if meta.ModesUsed == nil {
		meta.ModesUsed = domain.NewModeSet()
	}
	meta.ModesUsed.Add(mode)
}

// RecordVow appends a vow unless one with the same fingerprint already
// exists for the traveler. It reports whether the vow was stored.
func (s *Store) RecordVow(userID, text, vowContext string) bool {
	text = strings.TrimSpace(text)
	hash := VowHash(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.vows[userID]
	for _, v := range existing {
		if v.Hash == hash {
			return false
		}
	}

	vow := domain.Vow{
		Text:      text,
		Timestamp: domain.NewTimestamp(s.now()),
		Context:   shared.Truncate(vowContext, maxVowContextLen),
		Hash:      hash,
		Stage:     len(existing) + 1,
	}
	s.vows[userID] = append(existing, vow)

	if meta, ok := s.metadata[userID]; ok {
		meta.TotalVows = len(s.vows[userID])
	}

	s.logger.Info("Vow stored", "user_id", userID, "stage", vow.Stage, "vow_hash", hash)
	return true
}

// RecordReflection appends an exchange to the traveler's ring and prunes it
// to the most recent MaxReflections entries.
func (s *Store) RecordReflection(userID, query, response, mode, encryption string) domain.Reflection {
	query = shared.Truncate(query, maxQueryLen)
	response = shared.Truncate(response, maxResponseLen)

	r := domain.Reflection{
		Query:      query,
		Response:   response,
		Mode:       mode,
		Encryption: encryption,
		Timestamp:  domain.NewTimestamp(s.now()),
		Hash: shared.Fingerprint(
			shared.Truncate(query, reflectionHashSpan)+shared.Truncate(response, reflectionHashSpan),
			reflectionHashLen,
		),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ring := append(s.reflections[userID], r)
	if len(ring) > MaxReflections {
		ring = append([]domain.Reflection(nil), ring[len(ring)-MaxReflections:]...)
	}
	s.reflections[userID] = ring
	return r
}

// Stats summarizes a traveler's memory.
func (s *Store) Stats(userID string) domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.Stats{UserID: userID, ModesUsed: []string{}}
	if meta, ok := s.metadata[userID]; ok {
		first, last := meta.FirstSeen, meta.LastSeen
		st.Exists = true
		st.InteractionCount = meta.InteractionCount
		st.FirstSeen = &first
		st.LastSeen = &last
		modes := meta.ModesUsed.Sorted()
		if len(modes) > statsListLimit {
			modes = modes[:statsListLimit]
		}
		st.ModesUsed = modes
	}
	if vows := s.vows[userID]; len(vows) > 0 {
		st.VowCount = len(vows)
		recent := vows
		if len(recent) > statsListLimit {
			recent = recent[len(recent)-statsListLimit:]
		}
		for _, v := range recent {
			st.Vows = append(st.Vows, v.Text)
		}
	}
	st.ReflectionCount = len(s.reflections[userID])
	return st
}

// Vows returns a copy of the traveler's vows in stage order.
func (s *Store) Vows(userID string) []domain.Vow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Vow{}, s.vows[userID]...)
}

// Reflections returns up to limit of the traveler's most recent reflections,
// oldest first. A non-positive limit returns all of them.
func (s *Store) Reflections(userID string, limit int) []domain.Reflection {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.reflections[userID]
	if limit > 0 && len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	return append([]domain.Reflection{}, ring...)
}

// VowFingerprints returns every stored vow fingerprint across all travelers
// along with the total vow count.
func (s *Store) VowFingerprints() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashes := []string{}
	total := 0
	for _, vows := range s.vows {
		total += len(vows)
		for _, v := range vows {
			if v.Hash != "" {
				hashes = append(hashes, v.Hash)
			}
		}
	}
	return hashes, total
}

// Totals aggregates counts across all travelers.
func (s *Store) Totals() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := domain.Totals{Users: len(s.metadata)}
	for _, v := range s.vows {
		t.Vows += len(v)
	}
	for _, r := range s.reflections {
		t.Reflections += len(r)
	}
	return t
}

// VowHash is the deduplication fingerprint of a vow text.
func VowHash(text string) string {
	return shared.Fingerprint(strings.ToLower(text), vowHashLen)
}
