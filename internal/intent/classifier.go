package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// Verb lexicons. Order inside a lexicon does not matter; dispatch order is
// fixed in classify.
var (
	castVerbs    = []string{"cast", "casts", "casting", "invoke", "channel"}
	attackVerbs  = []string{"attack", "strike", "stab", "slash", "swing", "shoot", "smash", "lunge"}
	exploreVerbs = []string{"look", "examine", "inspect", "search", "survey", "scout", "peer", "observe", "explore", "listen", "smell", "sniff", "touch", "feel"}
	takeVerbs    = []string{"take", "grab", "pocket", "collect", "loot", "snatch"}
	dropVerbs    = []string{"drop", "discard", "dump"}
	equipVerbs   = []string{"equip", "wear", "wield", "don", "ready"}
	unequipVerbs = []string{"unequip", "doff", "sheathe", "stow", "remove"}
	useVerbs     = []string{"use", "drink", "quaff", "apply", "activate", "consume", "eat"}
	moveVerbs    = []string{"go", "walk", "travel", "head", "ride", "sail", "row", "march", "hike", "journey", "run", "swim", "move", "climb", "jump", "flee", "escape", "sneak", "hide", "crawl"}
	socialVerbs  = []string{"talk", "speak", "greet", "ask", "persuade", "convince", "intimidate", "threaten", "deceive", "lie", "bluff", "negotiate", "haggle", "chat"}
)

// skillForVerb maps action verbs to the D&D skill they exercise. Verbs
// without an entry produce an action with no skill slot.
var skillForVerb = map[string]string{
	"sneak":       "stealth",
	"hide":        "stealth",
	"climb":       "athletics",
	"jump":        "athletics",
	"swim":        "athletics",
	"persuade":    "persuasion",
	"convince":    "persuasion",
	"negotiate":   "persuasion",
	"haggle":      "persuasion",
	"intimidate":  "intimidation",
	"threaten":    "intimidation",
	"deceive":     "deception",
	"lie":         "deception",
	"bluff":       "deception",
	"investigate": "investigation",
	"track":       "survival",
	"forage":      "survival",
	"perform":     "performance",
	"sing":        "performance",
	"pickpocket":  "sleight of hand",
	"steal":       "sleight of hand",
}

// sensoryForVerb maps explore verbs to the sense they engage. Anything
// absent defaults to visual.
var sensoryForVerb = map[string]string{
	"listen": "auditory",
	"smell":  "olfactory",
	"sniff":  "olfactory",
	"touch":  "tactile",
	"feel":   "tactile",
}

// travelModeWords maps mount or vehicle mentions to a travel mode.
var travelModeWords = map[string]string{
	"horse":     "horse",
	"horseback": "horse",
	"mount":     "horse",
	"wagon":     "wagon",
	"cart":      "wagon",
	"boat":      "boat",
	"canoe":     "boat",
	"raft":      "boat",
	"ship":      "ship",
}

// featureWords marks "use X" phrases as class features rather than items.
var featureWords = []string{
	"rage", "second wind", "action surge", "wild shape", "bardic inspiration",
	"channel divinity", "lay on hands", "flurry of blows", "ki", "cunning action",
}

// resourceForFeature names the resource a feature spends, when one is
// identifiable from the phrasing.
var resourceForFeature = map[string]string{
	"ki":               "ki_points",
	"flurry of blows":  "ki_points",
	"lay on hands":     "lay_on_hands_pool",
	"channel divinity": "channel_divinity",
}

// leadingStopwords are skipped when hunting for the head verb.
var leadingStopwords = map[string]bool{
	"i": true, "we": true, "then": true, "now": true, "quickly": true,
	"carefully": true, "quietly": true, "first": true, "next": true,
	"to": true, "try": true, "want": true, "will": true, "would": true,
	"like": true, "lets": true, "let's": true, "i'll": true, "i'd": true,
	"please": true, "can": true, "you": true, "my": true, "a": true,
	"the": true, "and": true,
}

var (
	punctRe  = regexp.MustCompile(`[^a-z0-9' ]+`)
	castRe   = regexp.MustCompile(`\b(?:cast|casts|casting|invoke|invoking)\s+(?:the\s+spell\s+)?([a-z][a-z' ]*?)(?:\s+(?:at|on|upon|against)\s+(?:the\s+|a\s+|an\s+)?([a-z' ]+))?$`)
	withRe   = regexp.MustCompile(`\bwith\s+(?:my\s+|the\s+|a\s+|an\s+)?([a-z' ]+)$`)
	targetRe = regexp.MustCompile(`\b(?:attack|strike|stab|slash|shoot|smash|lunge)\s+(?:at\s+)?(?:the\s+|a\s+|an\s+)?([a-z' ]+?)(?:\s+with\b.*)?$`)
	destRe   = regexp.MustCompile(`\b(?:to|toward|towards|into)\s+(?:the\s+)?([a-z' ]+?)(?:\s+(?:on|by|via)\s+[a-z' ]+)?$`)
)

// Classifier turns a player message into a [Result]. Construct once with
// [NewClassifier]; it is read-only afterwards and safe for concurrent use.
type Classifier struct {
	allVerbs []string
}

// NewClassifier builds the classifier with its verb lexicons compiled.
func NewClassifier() *Classifier {
	var all []string
	for _, lex := range [][]string{castVerbs, attackVerbs, exploreVerbs, takeVerbs,
		dropVerbs, equipVerbs, unequipVerbs, useVerbs, moveVerbs, socialVerbs} {
		all = append(all, lex...)
	}
	return &Classifier{allVerbs: all}
}

// Classify maps text to an intent with slots. It never fails: unusable
// input yields the general fallback with OK=true so the pipeline continues.
func (c *Classifier) Classify(text string) Result {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return general(0)
	}
	clean := strings.TrimSpace(punctRe.ReplaceAllString(lower, " "))
	if clean == "" {
		return general(0)
	}

	if res, ok := c.classify(clean, 0.9); ok {
		return res
	}

	// One fuzzy pass: correct the head verb and retry at lower confidence.
	if corrected, ok := c.correctHeadVerb(clean); ok {
		if res, ok := c.classify(corrected, 0.7); ok {
			return res
		}
	}

	return general(0.4)
}

// classify runs the ordered rule list once over the cleaned text.
func (c *Classifier) classify(clean string, confidence float64) (Result, bool) {
	tokens := strings.Fields(clean)
	has := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		has[t] = true
	}

	// Rest first: "I take a long rest" must not read as manage_item.take.
	if has["rest"] || strings.Contains(clean, "make camp") || has["sleep"] {
		duration := "short"
		if has["long"] || has["overnight"] {
			duration = "long"
		}
		return result(IntentRest, confidence, SlotDuration, duration), true
	}

	if m := castRe.FindStringSubmatch(clean); m != nil {
		name := cleanName(m[1])
		name = strings.TrimSuffix(name, " as a ritual")
		name = strings.TrimPrefix(name, "ritual ")
		slots := []string{
			SlotSpellName, name,
			SlotIsRitual, boolSlot(has["ritual"]),
		}
		if m[2] != "" {
			slots = append(slots, SlotTarget, cleanName(m[2]))
		}
		return result(IntentCastSpell, confidence, slots...), true
	}

	if hasAny(has, attackVerbs) {
		slots := []string{}
		if m := withRe.FindStringSubmatch(clean); m != nil {
			slots = append(slots, SlotWeaponName, cleanName(m[1]))
		}
		if m := targetRe.FindStringSubmatch(clean); m != nil {
			slots = append(slots, SlotTarget, cleanName(m[1]))
		}
		return result(IntentWeaponAttack, confidence, slots...), true
	}

	if res, ok := classifyManageItem(clean, has, confidence); ok {
		return res, ok
	}

	if verb := firstOf(tokens, exploreVerbs); verb != "" {
		sensory := sensoryForVerb[verb]
		if sensory == "" {
			sensory = "visual"
		}
		return result(IntentExplore, confidence, SlotSensory, sensory), true
	}

	if verb := firstOf(tokens, useVerbs); verb != "" {
		return classifyUse(clean, verb, confidence), true
	}

	if has["remember"] || has["recall"] ||
		strings.Contains(clean, "what do i know") || strings.Contains(clean, "remind me") {
		return result(IntentRecall, confidence), true
	}

	if has["rule"] || has["rules"] ||
		strings.HasPrefix(clean, "how does") || strings.HasPrefix(clean, "how do") {
		return result(IntentAskRule, confidence), true
	}

	if verb := firstOf(tokens, moveVerbs); verb != "" {
		return classifyMovement(clean, verb, has, confidence), true
	}
	if verb := firstOf(tokens, socialVerbs); verb != "" {
		slots := []string{SlotAction, verb}
		if skill := skillForVerb[verb]; skill != "" {
			slots = append(slots, SlotSkill, skill)
		}
		if m := afterVerb(verb, clean); m != "" {
			slots = append(slots, SlotTarget, m)
		}
		return result(IntentAction, confidence, slots...), true
	}
	for verb, skill := range skillForVerb {
		if has[verb] {
			return result(IntentAction, confidence, SlotAction, verb, SlotSkill, skill), true
		}
	}

	return Result{}, false
}

// classifyManageItem handles inventory management phrasings.
func classifyManageItem(clean string, has map[string]bool, confidence float64) (Result, bool) {
	if has["inventory"] || strings.Contains(clean, "what am i carrying") ||
		strings.Contains(clean, "check my pack") || strings.Contains(clean, "check my bag") {
		return result(IntentManageItem, confidence, SlotActionType, "inventory"), true
	}

	type verbGroup struct {
		verbs      []string
		actionType string
	}
	groups := []verbGroup{
		{takeVerbs, "take"},
		{dropVerbs, "drop"},
		{equipVerbs, "equip"},
		{unequipVerbs, "unequip"},
	}
	if strings.Contains(clean, "pick up") {
		item := afterVerb("up", clean)
		return result(IntentManageItem, confidence, SlotActionType, "take", SlotItemName, item), true
	}
	if strings.Contains(clean, "put away") {
		item := afterVerb("away", clean)
		return result(IntentManageItem, confidence, SlotActionType, "unequip", SlotItemName, item), true
	}
	for _, g := range groups {
		for _, verb := range g.verbs {
			if !has[verb] {
				continue
			}
			slots := []string{SlotActionType, g.actionType}
			if item := afterVerb(verb, clean); item != "" {
				slots = append(slots, SlotItemName, item)
			}
			return result(IntentManageItem, confidence, slots...), true
		}
	}
	return Result{}, false
}

// classifyUse splits "use X" phrasings into feature vs item use.
func classifyUse(clean, verb string, confidence float64) Result {
	rest := afterVerb(verb, clean)

	// Drinking and eating are always item consumption.
	if verb != "use" && verb != "activate" {
		return result(IntentUseItem, confidence, SlotItemName, rest)
	}

	// Padded containment so "ki" cannot match inside "kit" or "king".
	padded := " " + clean + " "
	for _, feat := range featureWords {
		if strings.Contains(padded, " "+feat+" ") {
			slots := []string{SlotFeature, feat}
			if resource := resourceForFeature[feat]; resource != "" {
				slots = append(slots, SlotResource, resource)
			}
			return result(IntentUseFeature, confidence, slots...)
		}
	}
	return result(IntentUseItem, confidence, SlotItemName, rest)
}

// classifyMovement builds an action result for movement verbs, including
// destination and travel-mode slots when present.
func classifyMovement(clean, verb string, has map[string]bool, confidence float64) Result {
	slots := []string{SlotAction, verb}
	if skill := skillForVerb[verb]; skill != "" {
		slots = append(slots, SlotSkill, skill)
	}

	dest := ""
	if m := destRe.FindStringSubmatch(clean); m != nil {
		dest = cleanName(m[1])
		slots = append(slots, SlotDestination, dest)
	}

	mode := ""
	for word, m := range travelModeWords {
		if has[word] {
			mode = m
			break
		}
	}
	if mode == "" && dest != "" {
		switch verb {
		case "run", "flee", "escape":
			mode = "run"
		case "swim":
			mode = "swim"
		case "hike":
			mode = "hike"
		case "sail", "row":
			mode = "boat"
		case "ride":
			mode = "horse"
		default:
			mode = "walk"
		}
	}
	if mode != "" {
		slots = append(slots, SlotTravelMode, mode)
	}
	return result(IntentAction, confidence, slots...)
}

// correctHeadVerb finds the first non-stopword token and fuzzy-corrects it
// against every known verb, returning the text with the correction applied.
func (c *Classifier) correctHeadVerb(clean string) (string, bool) {
	tokens := strings.Fields(clean)
	for i, t := range tokens {
		if leadingStopwords[t] {
			continue
		}
		corrected, ok := correctVerb(t, c.allVerbs)
		if !ok || corrected == t {
			return "", false
		}
		tokens[i] = corrected
		return strings.Join(tokens, " "), true
	}
	return "", false
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// result builds a Result from alternating slot key/value pairs, skipping
// pairs with empty values.
func result(intent Intent, confidence float64, kv ...string) Result {
	slots := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			slots[kv[i]] = kv[i+1]
		}
	}
	return Result{Intent: intent, Slots: slots, Confidence: confidence, OK: true}
}

func boolSlot(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// cleanName trims articles and possessives off a captured name.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"the ", "a ", "an ", "my ", "some "} {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.TrimSpace(s)
}

// afterVerbTemplate captures the phrase following a verb, with articles
// stripped; the verb is substituted in by afterVerb.
const afterVerbTemplate = `\b%s\b\s+(?:up\s+)?(?:my\s+|the\s+|a\s+|an\s+|some\s+)?([a-z0-9' ]+)$`

// afterVerb captures the phrase following verb, with articles stripped.
func afterVerb(verb, clean string) string {
	re := regexp.MustCompile(fmt.Sprintf(afterVerbTemplate, regexp.QuoteMeta(verb)))
	m := re.FindStringSubmatch(clean)
	if m == nil {
		return ""
	}
	return cleanName(m[1])
}

// hasAny reports whether any word in words is present in the token set.
func hasAny(has map[string]bool, words []string) bool {
	for _, w := range words {
		if has[w] {
			return true
		}
	}
	return false
}

// firstOf returns the first token that appears in lexicon, in token order,
// so the head verb wins over incidental later mentions.
func firstOf(tokens []string, lexicon []string) string {
	for _, t := range tokens {
		for _, v := range lexicon {
			if t == v {
				return t
			}
		}
	}
	return ""
}
