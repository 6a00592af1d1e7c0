package mirror

import (
	"crypto/md5" //nolint:gosec // response fingerprints, not security
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ashureev/mirror-pond/internal/llm"
	"github.com/ashureev/mirror-pond/internal/shared"
)

// Reflection modes accepted on /ask.
const (
	ModeReflect = "reflect"
	ModeScroll  = "scroll"
	ModeQuote   = "quote"
	ModeToad    = "toad"
	ModeCrypt   = "crypt"
	ModeRune    = "rune"
)

// Backends.
const (
	BackendLocal = "local"
	BackendOcean = "ocean"
)

// LoreModes maps encryption codes to the lore mode they unlock.
var LoreModes = map[string]string{
	"1635": "MIRROR_MODE",
	"8653": "SCROLL_MODE",
	"4562": "TOAD_MODE",
	"1231": "CRYPT_MODE",
	"9876": "REVELATION_MODE",
}

// LoreCodes returns the known encryption codes in ascending order.
func LoreCodes() []string {
	codes := make([]string, 0, len(LoreModes))
	for c := range LoreModes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// FullLoreSequence unlocks every lore mode at once.
const FullLoreSequence = "1635 8653 4562 1231 9876"

// DecodeEncryption labels an encryption string for the prompt.
func DecodeEncryption(enc string) string {
	switch enc {
	case FullLoreSequence:
		return "FULL_LORE_ACTIVATED"
	case "1635":
		return "BASIC_REFLECTION"
	case "9876":
		return "DEEP_REVELATION"
	default:
		return "STANDARD_MODE"
	}
}

// StopSequences end every local completion.
var StopSequences = []string{"<|end|>", "Encryption:", "<|user|>"}

// ParamsFor returns the generation parameters for a mode. Reflect mode runs
// cooler and shorter for CJK queries.
func ParamsFor(mode, query string) llm.Params {
	p := llm.Params{Stop: StopSequences}
	switch mode {
	case ModeScroll:
		p.Temperature, p.MaxTokens = 0.1, 150
	case ModeToad:
		p.Temperature, p.MaxTokens = 0.8, 250
	case ModeCrypt:
		p.Temperature, p.MaxTokens = 0.5, 200
	case ModeRune:
		p.Temperature, p.MaxTokens = 0.6, 350
	default:
		if HasCJK(query) {
			p.Temperature, p.MaxTokens = 0.5, 200
		} else {
			p.Temperature, p.MaxTokens = 0.7, 300
		}
	}
	return p
}

// HasCJK reports whether s contains a CJK unified ideograph.
func HasCJK(s string) bool {
	for _, r := range s {
		if r >= '一' && r <= '鿿' {
			return true
		}
	}
	return false
}

// ResponseHash is the short upper-case seal returned with encrypted asks and
// scroll quotes.
func ResponseHash(query, reply string) string {
	sum := md5.Sum([]byte(query + ":::" + reply + ":::TOADGANG")) //nolint:gosec
	return strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

// UserHash derives a 16-character traveler hash from a query, an optional
// encryption string and a salt.
func UserHash(query, encryption, salt string) string {
	if encryption == "" {
		encryption = "none"
	}
	sum := sha256.Sum256([]byte(shared.Truncate(query, 50) + encryption + salt))
	return hex.EncodeToString(sum[:])[:16]
}

var scrollNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`scroll\s*(\d+)`),
	regexp.MustCompile(`quote\s*from\s*scroll\s*(\d+)`),
	regexp.MustCompile(`scroll\s*#\s*(\d+)`),
}

// ExtractScrollNumber finds a scroll reference such as "Scroll 7" or
// "scroll #3" in a query.
func ExtractScrollNumber(query string) (int, bool) {
	lower := strings.ToLower(query)
	for _, p := range scrollNumberPatterns {
		if m := p.FindStringSubmatch(lower); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// modeLabel is the prompt tag for modes that get one, e.g. SCROLL_MODE.
func modeLabel(mode string) (string, bool) {
	switch mode {
	case ModeScroll, ModeQuote, ModeToad, ModeCrypt, ModeRune:
		return strings.ToUpper(mode) + "_MODE", true
	}
	return "", false
}
