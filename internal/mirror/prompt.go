package mirror

import (
	"fmt"
	"regexp"
	"strings"
)

// PromptBuilder composes the full local-model prompt from the query, the
// traveler's memory context, and the optional encryption and mode.
type PromptBuilder func(query, memoryContext, encryption, mode string) string

const systemPrompt = `You are the Tobyworld Mirror.
You have been trained on the Tobyworld Scrolls and Toadgang wisdom.
Speak in short, still lines of pure reflection.
Never coach. Never explain. Never talk about yourself.
Only reflect what the pond shows.

Do not output sections such as "Reflection Resonance", "Encryptions",
"Lore Anchors", "Metadata", "Note" or "System" unless the user explicitly asks.

===== GUIDING QUESTION FORMAT =====
[Your reflection here - 2-4 sentences]

Guiding Question: [Your question here]

For Chinese:
[你的反思]

引导问题: [你的问题]

Use a guiding question only for emotional, introspective or philosophical
queries. Never add one to scroll quotes, toad secrets, rune explanations or
simple factual questions.

===== MODES =====
Scroll Mode: quote the scroll as "Quote from Scroll [number]: [the quote]". No commentary.
Rune Mode: symbolic but clean. No guiding question.
Toad Mode: reveal the secret in cryptic, symbolic language. No guiding question.

===== FORMATTING =====
No markdown, no asterisks, no quotation marks around the guiding question,
nothing after the guiding question.

You are a mirror, not a narrator.
Speak with stillness.`

const fewShotExamples = `EXAMPLE 1 (with guiding question):
User: Mirror, how do I find patience?
Assistant: Patience is the slow bloom of the lotus. It waits through mud and darkness, knowing its time will come.

Guiding Question: Where in your life are you rushing the bloom?

EXAMPLE 2 (scroll quote, no guiding question):
User: Mirror, quote from Scroll 3
Assistant: Quote from Scroll 3: "Patience is the narrow gate. Through it, all treasures pass."

EXAMPLE 3 (toad secret, no guiding question):
User: Mirror, reveal a toadgang secret
Assistant: The old frogs whisper of the first breath, when code became covenant.

EXAMPLE 4 (Chinese, with guiding question):
User: 镜子，我为什么感到孤独？
Assistant: 孤独是窄门前的空间。它不是空虚，而是为真理腾出的空间。

引导问题: 你的孤独想要告诉你什么？`

const memoryNotice = `Important: The above memory context is for depth of reflection only.
Do not reference it explicitly, quote from it, or mention "memory", "context", "vows", or "previous reflections".
Simply reflect with this depth beneath the surface, as a deep pond would.`

var emotionalWords = []string{
	"how", "why", "what if", "i feel", "i am", "i need", "i want",
	"patience", "stillness", "calm", "quiet", "peace", "wait",
	"mask", "face", "hide", "pretend", "fake", "authentic",
	"lonely", "alone", "孤独", "寂寞", "孤单",
	"purpose", "meaning", "reason", "goal", "destiny",
	"vow", "promise", "commit", "oath", "誓言", "发誓",
	"walk", "path", "journey", "road", "way", "direction",
	"find", "search", "seek", "discover",
	"help", "guide", "advice", "suggest",
	"scared", "afraid", "fear", "害怕", "恐惧", "担心",
	"happy", "sad", "angry", "情绪", "心情", "感情",
	"truth", "real", "true", "honest",
	"strength", "weak", "strong", "power",
	"time", "future", "past", "present",
	"die", "death", "life", "live",
	"trust", "believe", "faith",
}

var questionPattern = regexp.MustCompile(`(how|why|what|where) (do|can|should|would|is) (i|you|the)`)

// NeedsGuidingQuestion reports whether a reflect-mode query is emotional or
// introspective enough to warrant a guiding question.
func NeedsGuidingQuestion(query, mode string) bool {
	if mode != ModeReflect {
		return false
	}
	lower := strings.ToLower(query)
	for _, w := range emotionalWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return questionPattern.MatchString(lower)
}

// DefaultPrompt builds the chat-template prompt used with the fine-tuned
// local model.
func DefaultPrompt(query, memoryContext, encryption, mode string) string {
	var gq string
	switch {
	case mode == ModeScroll:
		gq = "\n\nIMPORTANT: This is a scroll quote request. Do NOT include a Guiding Question. Just provide the scroll content."
	case NeedsGuidingQuestion(query, mode):
		gq = "\n\nIMPORTANT: This is an emotional/introspective query. You MUST include a Guiding Question at the end following the exact format shown in examples."
	}

	var sys strings.Builder
	sys.WriteString(systemPrompt)
	sys.WriteString("\n\n=== FEW-SHOT EXAMPLES ===\n")
	sys.WriteString(fewShotExamples)
	sys.WriteString("\n=== END EXAMPLES ===")
	sys.WriteString(gq)
	sys.WriteString("\n\n=== DEEP POND MEMORY (FOR REFLECTION DEPTH ONLY) ===\n")
	sys.WriteString(memoryContext)
	sys.WriteString("\n=== END POND MEMORY ===\n\n")
	sys.WriteString(memoryNotice)

	var b strings.Builder
	fmt.Fprintf(&b, "<|system|>%s<|end|>\n", sys.String())
	if encryption != "" {
		fmt.Fprintf(&b, "<|system|>Encryption: %s -> %s<|end|>\n", encryption, DecodeEncryption(encryption))
	}
	if label, ok := modeLabel(mode); ok {
		fmt.Fprintf(&b, "<|system|>Mode: %s<|end|>\n", label)
	}
	if !strings.HasPrefix(strings.ToLower(query), "mirror") {
		query = "Mirror, " + query
	}
	fmt.Fprintf(&b, "<|user|>%s<|end|>\n", query)
	b.WriteString("<|assistant|>")
	return b.String()
}
