// Package significance decides whether a piece of turn text is worth
// persisting as an episodic memory, and how important it is on a 1 to 10
// scale. The classifier is a weighted keyword heuristic, read-only after
// construction and safe for concurrent use.
package significance

import (
	"regexp"
	"strings"
)

// Result is the classifier output for one piece of text.
type Result struct {
	Significant bool
	// Importance is 1 to 10. Only meaningful when Significant is true;
	// insignificant text still carries its computed score for callers
	// that want to log it.
	Importance int
}

// Context carries turn facts that shift the score. All fields optional.
type Context struct {
	// GameMode is the session mode when the text was produced. Combat
	// turns rate higher.
	GameMode string
	// Sender distinguishes player from dm text.
	Sender string
}

// category is a keyword group with a base importance contribution.
type category struct {
	name  string
	base  int
	words []string
}

// categories in descending weight. A text can hit several; the strongest
// sets the floor and each additional hit adds one.
var categories = []category{
	{"death", 9, []string{"dies", "died", "death", "killed", "slain", "falls dead", "unconscious"}},
	{"quest", 7, []string{"quest", "mission", "objective", "task", "asks you to", "promised"}},
	{"combat", 6, []string{"attack", "attacks", "damage", "fight", "battle", "ambush", "strikes", "wounded", "initiative"}},
	{"discovery", 6, []string{"discover", "discovers", "find", "finds", "found", "reveal", "reveals", "hidden", "secret", "uncover"}},
	{"acquisition", 5, []string{"obtain", "obtains", "receive", "receives", "given", "reward", "treasure", "gold", "loot"}},
	{"social", 5, []string{"meet", "meets", "introduces", "tells you", "explains", "warns", "agrees", "refuses", "betray"}},
	{"travel", 4, []string{"arrive", "arrives", "enter", "enters", "leaves", "departs", "reach", "reaches"}},
	{"rest", 3, []string{"rest", "camp", "sleep", "recovers"}},
}

// minImportance is the threshold below which text is not significant.
const minImportance = 4

// smallTalk marks throwaway phrasings that are never significant on
// their own.
var smallTalk = []string{
	"hello", "hi there", "thanks", "thank you", "okay", "ok", "yes", "no",
	"sure", "hmm", "what can i do", "what do you see",
}

var properNounRe = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)

// capitalizedStopwords are sentence starters and pronouns that the proper
// noun check must not count.
var capitalizedStopwords = map[string]bool{
	"The": true, "You": true, "Your": true, "They": true, "She": true,
	"He": true, "His": true, "Her": true, "When": true, "After": true,
	"Before": true, "With": true, "And": true, "But": true, "Then": true,
	"This": true, "That": true, "There": true, "What": true, "Inside": true,
	"Suddenly": true, "However": true, "Meanwhile": true,
}

// hasProperNoun reports whether text names something beyond common
// sentence-initial capitalization.
func hasProperNoun(text string) bool {
	for _, m := range properNounRe.FindAllString(text, -1) {
		if !capitalizedStopwords[m] {
			return true
		}
	}
	return false
}

// Classifier scores text for memory persistence. Construct with [New].
type Classifier struct{}

// New returns a ready classifier.
func New() *Classifier {
	return &Classifier{}
}

// Score rates text in ctx. Short or small-talk text is insignificant;
// otherwise keyword categories set the importance and anything scoring at
// least 4 is significant. Importance is clamped to [1,10].
func (c *Classifier) Score(text string, ctx Context) Result {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if len(trimmed) < 15 || isSmallTalk(lower) {
		return Result{Significant: false, Importance: 1}
	}

	score := 0
	hits := 0
	for _, cat := range categories {
		if !containsAny(lower, cat.words) {
			continue
		}
		hits++
		if cat.base > score {
			score = cat.base
		} else {
			score++
		}
	}

	if score == 0 {
		// No category hit. Long descriptive text with named entities is
		// still worth a low-importance memory.
		if len(trimmed) >= 200 && hasProperNoun(trimmed) {
			score = minImportance
		} else {
			return Result{Significant: false, Importance: 2}
		}
	}

	if ctx.GameMode == "combat" && hits > 0 {
		score++
	}
	if hasProperNoun(trimmed) {
		score++
	}

	score = clamp(score, 1, 10)
	return Result{Significant: score >= minImportance, Importance: score}
}

func isSmallTalk(lower string) bool {
	for _, phrase := range smallTalk {
		if lower == phrase || lower == phrase+"." || lower == phrase+"!" {
			return true
		}
	}
	return false
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
