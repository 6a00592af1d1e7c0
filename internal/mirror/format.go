package mirror

import (
	"regexp"
	"strings"
)

// Reformatter cleans raw model or relay output before it is recorded.
type Reformatter func(raw, mode, query string) string

// formatStep is one pass of the default reformatter.
type formatStep func(text, mode string) string

var (
	chatTokens     = regexp.MustCompile(`<\|[^|]+\|>`)
	markdownBold   = regexp.MustCompile(`\*+`)
	preambles      = regexp.MustCompile(`(?i)^(the mirror reflects|mirror reflects|镜子反映)\s*[:：]\s*`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
	guidingLine    = regexp.MustCompile(`(?i)((?:Guiding Question|引导问题)\s*[:：]\s*.*)`)
)

var defaultSteps = []formatStep{
	stripArtifacts,
	collapseBlankLines,
	dedupeParagraphs,
	placeGuidingQuestion,
}

// DefaultReformat strips chat artifacts, collapses blank-line runs, drops
// repeated paragraphs and keeps only the last guiding question, placed at the
// end. Scroll quotes never carry a guiding question.
func DefaultReformat(raw, mode, _ string) string {
	text := raw
	for _, step := range defaultSteps {
		if strings.TrimSpace(text) == "" {
			return strings.TrimSpace(text)
		}
		text = step(text, mode)
	}
	return text
}

func stripArtifacts(text, _ string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = chatTokens.ReplaceAllString(text, "")
	text = markdownBold.ReplaceAllString(text, "")
	return preambles.ReplaceAllString(strings.TrimSpace(text), "")
}

func collapseBlankLines(text, _ string) string {
	return blankRuns.ReplaceAllString(strings.TrimSpace(text), "\n\n")
}

func dedupeParagraphs(text, _ string) string {
	seen := make(map[string]struct{})
	var kept []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		norm := strings.TrimSpace(whitespaceRuns.ReplaceAllString(p, " "))
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		kept = append(kept, p)
	}
	return strings.TrimSpace(strings.Join(kept, "\n\n"))
}

func placeGuidingQuestion(text, mode string) string {
	found := guidingLine.FindAllString(text, -1)
	if len(found) == 0 {
		return text
	}
	last := strings.TrimSpace(found[len(found)-1])
	body := guidingLine.ReplaceAllString(text, "")
	body = strings.TrimSpace(blankRuns.ReplaceAllString(body, "\n\n"))
	if mode == ModeScroll {
		return body
	}
	if body == "" {
		return last
	}
	return body + "\n\n" + last
}
