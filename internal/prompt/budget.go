package prompt

import "strings"

// Fixed token reserves, in tokens, carved out of the model context window
// before the memory block gets the remainder.
const (
	ReplyReserve    = 1000
	SystemReserve   = 800
	CharacterBudget = 400
	NarrativeBudget = 600
	InputBudget     = 200
)

// EstimateTokens approximates the token count of text as len/4. A real
// tokenizer can be substituted behind the same signature.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// MemoryBudget returns the tokens left for history, entities and retrieved
// documents after the fixed reserves.
func MemoryBudget(contextWindow int) int {
	remainder := contextWindow - ReplyReserve - SystemReserve - CharacterBudget - NarrativeBudget - InputBudget
	if remainder < 0 {
		return 0
	}
	return remainder
}

// trimToBudget cuts text to at most budget tokens at sentence granularity,
// dropping sentences from the end. Text that fits is returned unchanged.
func trimToBudget(text string, budget int) string {
	if EstimateTokens(text) <= budget {
		return text
	}
	sentences := splitSentences(text)
	for len(sentences) > 1 {
		sentences = sentences[:len(sentences)-1]
		candidate := strings.Join(sentences, " ")
		if EstimateTokens(candidate) <= budget {
			return candidate
		}
	}
	// A single oversized sentence is cut hard.
	max := budget * 4
	if max <= 0 {
		return ""
	}
	if len(text) > max {
		return text[:max]
	}
	return text
}

// splitSentences splits on sentence-final punctuation, keeping the
// punctuation attached.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
