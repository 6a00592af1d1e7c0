package memory

import (
	"fmt"
	"strings"

	"github.com/ashureev/mirror-pond/internal/shared"
)

// Axioms is the immutable lore bedrock placed at the top of every context.
const Axioms = `-- LORE BEDROCK --
1. Patience is Strength (Gaman).
2. The ultimate reward is Immortality/Uncorruptible Legacy.
3. Every step must align with Bushido virtues (Integrity, Loyalty).
4. The Law of Compensation is absolute (The impatient reward the patient).
5. The Mirror's purpose is Reflection, not coaching.
6. The lotus blooms in still water; reflection requires calm.
7. Scrolls 1-13 contain the foundational wisdom of Tobyworld.
8. Runes (1-7) represent trials and transformations toward the Jade Chest.
9. The Mirror never coaches, only reflects what the pond shows.
10. Memory serves reflection, not instruction.`

const contextInstruction = "=== CONTEXT INSTRUCTION ===\n" +
	"This context is for reflection depth only. Do not reference it explicitly. " +
	"Reflect naturally as the pond would, with this depth beneath the surface."

const (
	contextRecent        = 3
	contextQuerySnippet  = 60
	contextAnswerSnippet = 80
)

// BuildContext assembles the bounded memory context for a traveler. The
// output depends only on stored state; the query is accepted for parity with
// prompt builders that may rank memory by relevance.
func (s *Store) BuildContext(userID, _ string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := []string{"=== IMMUTABLE AXIOMS ===\n" + Axioms}

	if vows := s.vows[userID]; len(vows) > 0 {
		recent := vows
		if len(recent) > contextRecent {
			recent = recent[len(recent)-contextRecent:]
		}
		lines := make([]string, 0, len(recent))
		for _, v := range recent {
			lines = append(lines, fmt.Sprintf("Lotus %d: %s (%s)", v.Stage, v.Text, v.Timestamp.Date()))
		}
		parts = append(parts,
			"=== USER'S VOWS ===\n"+strings.Join(lines, "\n"),
			fmt.Sprintf("Total vows made: %d", len(vows)),
		)
	}

	if ring := s.reflections[userID]; len(ring) > 0 {
		recent := ring
		if len(recent) > contextRecent {
			recent = recent[len(recent)-contextRecent:]
		}
		lines := make([]string, 0, len(recent))
		for i, r := range recent {
			lines = append(lines, fmt.Sprintf("Reflection %d (%s): Q: %s... → A: %s...",
				i+1, r.Mode,
				shared.Truncate(r.Query, contextQuerySnippet),
				shared.Truncate(r.Response, contextAnswerSnippet),
			))
		}
		parts = append(parts, "=== RECENT REFLECTIONS ===\n"+strings.Join(lines, "\n"))
	}

	if meta, ok := s.metadata[userID]; ok {
		modes := meta.ModesUsed.Sorted()
		if len(modes) > statsListLimit {
			modes = modes[:statsListLimit]
		}
		modeText := strings.Join(modes, ", ")
		if modeText == "" {
			modeText = "None yet"
		}
		first := "Unknown"
		if !meta.FirstSeen.IsZero() {
			first = meta.FirstSeen.Format("2006-01-02")
		}
		parts = append(parts, fmt.Sprintf("=== TRAVELER CONTEXT ===\nInteractions: %d\nModes used: %s\nFirst seen: %s",
			meta.InteractionCount, modeText, first))
	}

	return strings.Join(parts, "\n\n") + "\n\n" + contextInstruction
}
