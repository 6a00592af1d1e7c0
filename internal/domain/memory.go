// Package domain contains core domain types for the mirror pond.
package domain

import (
	"sort"
	"time"
)

// Vow is a recorded commitment. Vows are append-only and unique per traveler
// by Hash.
type Vow struct {
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
	Context   string    `json:"context"`
	Hash      string    `json:"vow_hash"`
	Stage     int       `json:"lotus_stage"`
}

// Reflection is a recorded exchange kept in a bounded per-traveler ring.
type Reflection struct {
	Query      string    `json:"query"`
	Response   string    `json:"response"`
	Mode       string    `json:"mode"`
	Encryption string    `json:"encryption,omitempty"`
	Timestamp  Timestamp `json:"timestamp"`
	Hash       string    `json:"reflection_hash"`
}

// UserMetadata tracks per-traveler activity.
type UserMetadata struct {
	FirstSeen        time.Time
	LastSeen         time.Time
	InteractionCount int
	ModesUsed        ModeSet
	TotalVows        int
}

// ModeSet is the set of distinct mode names a traveler has used.
type ModeSet map[string]struct{}

// NewModeSet builds a set from a list, ignoring empty names.
func NewModeSet(modes ...string) ModeSet {
	s := make(ModeSet, len(modes))
	for _, m := range modes {
		s.Add(m)
	}
	return s
}

// Add inserts a mode name.
func (s ModeSet) Add(mode string) {
	if mode == "" {
		return
	}
	s[mode] = struct{}{}
}

// Has reports whether mode is in the set.
func (s ModeSet) Has(mode string) bool {
	_, ok := s[mode]
	return ok
}

// Sorted returns the modes in lexical order.
func (s ModeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes a traveler's history.
type Stats struct {
	UserID           string     `json:"user_id"`
	Exists           bool       `json:"exists"`
	InteractionCount int        `json:"interaction_count"`
	VowCount         int        `json:"vow_count"`
	ReflectionCount  int        `json:"reflection_count"`
	FirstSeen        *time.Time `json:"first_seen"`
	LastSeen         *time.Time `json:"last_seen"`
	ModesUsed        []string   `json:"modes_used"`
	Vows             []string   `json:"vows,omitempty"`
}

// Totals aggregates memory across all travelers.
type Totals struct {
	Users       int `json:"total_users"`
	Vows        int `json:"total_vows"`
	Reflections int `json:"total_reflections"`
}
