package vow

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	tests := []struct {
		name     string
		query    string
		response string
		want     string
		found    bool
	}{
		{
			name:  "vow to",
			query: "I vow to walk the narrow path.",
			want:  "I vow to walk the narrow path",
			found: true,
		},
		{
			name:     "no keyword",
			query:    "hello there",
			response: "general reply",
		},
		{
			name:  "swear by without terminator",
			query: "Mirror, I swear by the still water I will wait",
			want:  "I swear by the still water I will wait",
			found: true,
		},
		{
			name:  "trailing newline without terminator",
			query: "I vow to walk the narrow path\n",
			want:  "I vow to walk the narrow path",
			found: true,
		},
		{
			name:  "commit that",
			query: "Tonight I commit to reading one scroll each day!",
			want:  "I commit to reading one scroll each day",
			found: true,
		},
		{
			name:  "oath colon",
			query: "My oath: patience before profit. Nothing more.",
			want:  "My oath: patience before profit",
			found: true,
		},
		{
			name:  "from this day",
			query: "From this day, I shall hold my lotus as an oath.",
			want:  "From this day, I shall hold my lotus as an oath",
			found: true,
		},
		{
			name:  "case insensitive",
			query: "i VOW TO remain still.",
			want:  "i VOW TO remain still",
			found: true,
		},
		{
			name:  "too short candidate falls through",
			query: "I vow to x. I take this oath willingly.",
			want:  "I take this oath willingly",
			found: true,
		},
		{
			name:     "quoted vow in response",
			query:    "what should I promise?",
			response: `Your vow to "guard the lotus" echoes in the pond.`,
			want:     "guard the lotus",
			found:    true,
		},
		{
			name:     "unquoted response language ignored",
			query:    "tell me about oaths",
			response: "Your vow to guard the lotus echoes.",
		},
		{
			name:     "query wins over response",
			query:    "I vow to keep the flame alive.",
			response: `You swear "something else"`,
			want:     "I vow to keep the flame alive",
			found:    true,
		},
		{
			name:     "pledge of",
			query:    "remind me",
			response: "The pledge of 'silence at dawn' remains.",
			want:     "silence at dawn",
			found:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := d.Detect(tt.query, tt.response)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryMatcherStripsDiscourseMarkers(t *testing.T) {
	t.Parallel()

	m := QueryMatcher(regexp.MustCompile(`(?i)((?:So|Thus), I (?:vow|swear) .+?)(?:[.!]|$)`))
	got, ok := m("Thus, I vow by moonlight to return.")
	assert.True(t, ok)
	assert.Equal(t, "I vow by moonlight to return", got)
}

func TestQuotedMatcherNoMatch(t *testing.T) {
	t.Parallel()

	m := QuotedMatcher(responsePatterns[1])
	_, ok := m("nothing here")
	assert.False(t, ok)
}

func TestKeywordGateUsesResponseToo(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	// Gate passes on the response keyword but no query pattern applies and the
	// response holds no quoted vow.
	_, ok := d.Detect("hello", "a covenant of frogs")
	assert.False(t, ok)
}
