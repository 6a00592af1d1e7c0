// Package store provides snapshot persistence for pond memory.
package store

import (
	"context"
	"fmt"

	"github.com/ashureev/mirror-pond/internal/domain"
)

// Snapshot is the persisted form of pond memory. Set-valued metadata fields
// are stored as sorted lists.
type Snapshot struct {
	Vows        map[string][]domain.Vow        `json:"user_vows"`
	Reflections map[string][]domain.Reflection `json:"reflections_db"`
	Metadata    map[string]MetadataRecord      `json:"user_metadata"`
}

// MetadataRecord is the persisted form of domain.UserMetadata.
type MetadataRecord struct {
	FirstSeen        domain.Timestamp `json:"first_seen"`
	InteractionCount int              `json:"interaction_count"`
	LastSeen         domain.Timestamp `json:"last_seen"`
	ModesUsed        []string         `json:"modes_used"`
	TotalVows        int              `json:"total_vows"`
}

// NewSnapshot returns a snapshot with all sections initialized.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Vows:        make(map[string][]domain.Vow),
		Reflections: make(map[string][]domain.Reflection),
		Metadata:    make(map[string]MetadataRecord),
	}
}

// normalize replaces missing sections with empty maps.
func (s *Snapshot) normalize() {
	if s.Vows == nil {
		s.Vows = make(map[string][]domain.Vow)
	}
	if s.Reflections == nil {
		s.Reflections = make(map[string][]domain.Reflection)
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]MetadataRecord)
	}
}

// Repository defines the interface for persisting pond memory snapshots.
type Repository interface {
	// Load reads the latest snapshot. A missing snapshot is not an error;
	// an empty snapshot is returned instead.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the persisted snapshot. Readers never observe a
	// partially written snapshot.
	Save(ctx context.Context, snap *Snapshot) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open selects a repository by backend name. SQLite databases are pinged
// before they are returned.
func Open(ctx context.Context, backend, jsonPath, dbPath string) (Repository, error) {
	switch backend {
	case BackendSQLite:
		repo, err := NewSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		if err := repo.Ping(ctx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("database health check failed: %w", err)
		}
		return repo, nil
	case BackendJSON, "":
		return NewJSONFile(jsonPath)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", backend)
	}
}
