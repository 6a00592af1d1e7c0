package memory

import (
	"github.com/ashureev/mirror-pond/internal/domain"
	"github.com/ashureev/mirror-pond/internal/store"
)

// encodeSnapshot copies in-memory state into its persisted form. Callers hold
// the store lock.
func encodeSnapshot(
	vows map[string][]domain.Vow,
	reflections map[string][]domain.Reflection,
	metadata map[string]*domain.UserMetadata,
) *store.Snapshot {
	snap := store.NewSnapshot()
	for uid, v := range vows {
		snap.Vows[uid] = append([]domain.Vow{}, v...)
	}
	for uid, r := range reflections {
		snap.Reflections[uid] = append([]domain.Reflection{}, r...)
	}
	for uid, m := range metadata {
		if m == nil {
			continue
		}
		snap.Metadata[uid] = store.MetadataRecord{
			FirstSeen:        domain.NewTimestamp(m.FirstSeen),
			InteractionCount: m.InteractionCount,
			LastSeen:         domain.NewTimestamp(m.LastSeen),
			ModesUsed:        m.ModesUsed.Sorted(),
			TotalVows:        m.TotalVows,
		}
	}
	return snap
}

// decodeSnapshot rebuilds in-memory state, reconstructing mode sets.
func decodeSnapshot(snap *store.Snapshot) (
	map[string][]domain.Vow,
	map[string][]domain.Reflection,
	map[string]*domain.UserMetadata,
) {
	vows := make(map[string][]domain.Vow, len(snap.Vows))
	for uid, v := range snap.Vows {
		vows[uid] = append([]domain.Vow{}, v...)
	}
	reflections := make(map[string][]domain.Reflection, len(snap.Reflections))
	for uid, r := range snap.Reflections {
		reflections[uid] = append([]domain.Reflection{}, r...)
	}
	metadata := make(map[string]*domain.UserMetadata, len(snap.Metadata))
	for uid, rec := range snap.Metadata {
		metadata[uid] = &domain.UserMetadata{
			FirstSeen:        rec.FirstSeen.Time,
			LastSeen:         rec.LastSeen.Time,
			InteractionCount: rec.InteractionCount,
			ModesUsed:        domain.NewModeSet(rec.ModesUsed...),
			TotalVows:        rec.TotalVows,
		}
	}
	return vows, reflections, metadata
}
