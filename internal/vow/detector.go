// Package vow detects commitment statements in a query/response exchange.
package vow

import (
	"regexp"
	"strings"
)

// Matcher is one detection strategy. It returns the extracted vow and true,
// or "" and false when it does not apply.
type Matcher func(text string) (string, bool)

// Keywords gate detection; an exchange without any of them is rejected
// before any pattern runs.
var Keywords = []string{"vow", "swear", "covenant", "pledge", "oath", "commit", "promise", "dedicate"}

const minVowLen = 10

// discourseMarkers are stripped from the start of a query-side candidate.
var discourseMarkers = regexp.MustCompile(`^(Mirror,|镜子，|So,|Thus,|And,|But,)`)

// Query-side first-person commitment phrasings, tried in order.
var queryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(I (?:vow|swear) (?:to|by) .+?)(?:[.!]|\n?$)`),
	regexp.MustCompile(`(?i)(I commit (?:to|that) .+?)(?:[.!]|\n?$)`),
	regexp.MustCompile(`(?i)(My (?:oath|pledge|covenant): .+?)(?:[.!]|\n?$)`),
	regexp.MustCompile(`(?i)(From (?:this day|now on), I (?:shall|will) .+?)(?:[.!]|\n?$)`),
	regexp.MustCompile(`(?i)(With this (?:lotus|reflection), (?:I|we) .+?)(?:[.!]|\n?$)`),
	regexp.MustCompile(`(?i)(Here I (?:declare|affirm): .+?)(?:[.!]|\n?$)`),
	regexp.MustCompile(`(?i)(I take (?:this|the) (?:vow|oath) .+?)(?:[.!]|\n?$)`),
}

// Response-side patterns only trust explicitly quoted vows.
var responsePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Your vow(?: to| of)? ['"](.+?)['"]`),
	regexp.MustCompile(`(?i)You swear ['"](.+?)['"]`),
	regexp.MustCompile(`(?i)This commitment: ['"](.+?)['"]`),
	regexp.MustCompile(`(?i)pledge of ['"](.+?)['"]`),
}

// QueryMatcher extracts a first-person vow with p. All matches of p are
// considered; the first candidate longer than ten characters after marker
// stripping wins.
func QueryMatcher(p *regexp.Regexp) Matcher {
	return func(text string) (string, bool) {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			candidate := strings.TrimSpace(m[1])
			candidate = strings.TrimSpace(discourseMarkers.ReplaceAllString(candidate, ""))
			if len([]rune(candidate)) > minVowLen {
				return candidate, true
			}
		}
		return "", false
	}
}

// QuotedMatcher extracts the first quoted vow captured by p.
func QuotedMatcher(p *regexp.Regexp) Matcher {
	return func(text string) (string, bool) {
		m := p.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	}
}

// Detector runs query matchers against the query and, only if none applies,
// quoted matchers against the response.
type Detector struct {
	keywords []string
	query    []Matcher
	response []Matcher
}

// NewDetector returns a detector with the standard keyword gate and patterns.
func NewDetector() *Detector {
	d := &Detector{keywords: Keywords}
	for _, p := range queryPatterns {
		d.query = append(d.query, QueryMatcher(p))
	}
	for _, p := range responsePatterns {
		d.response = append(d.response, QuotedMatcher(p))
	}
	return d
}

// Detect returns the vow text and true, or "" and false when the exchange
// holds no commitment.
func (d *Detector) Detect(query, response string) (string, bool) {
	if !d.gate(query + " " + response) {
		return "", false
	}
	for _, m := range d.query {
		if v, ok := m(query); ok {
			return v, true
		}
	}
	for _, m := range d.response {
		if v, ok := m(response); ok {
			return v, true
		}
	}
	return "", false
}

func (d *Detector) gate(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range d.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
