package recall

import (
	"regexp"
	"strings"
)

// Entity types produced by the extractor.
const (
	EntityNPC      = "npc"
	EntityLocation = "location"
	EntityQuest    = "quest"
	EntityItem     = "item"
)

// Entity is one fact mined from DM prose, keyed by the named thing it is
// about.
type Entity struct {
	Name string
	Type string
	Fact string
}

// entityImportance maps entity type to the importance of the stored fact.
var entityImportance = map[string]int{
	EntityQuest:    8,
	EntityNPC:      7,
	EntityLocation: 7,
	EntityItem:     6,
}

// pronounNames are capitalized words the name patterns must never treat as
// an entity name.
var pronounNames = map[string]bool{
	"He": true, "She": true, "It": true, "They": true, "You": true,
	"I": true, "We": true, "The": true, "This": true, "That": true,
	"There": true, "What": true, "Who": true, "Then": true, "When": true,
	"Suddenly": true, "Inside": true, "Meanwhile": true,
}

// locationWords classify a "<Name> is a <desc>" sentence as a place rather
// than a person.
var locationWords = []string{
	"village", "town", "city", "hamlet", "settlement", "tavern", "inn",
	"shop", "market", "forest", "cave", "tomb", "crypt", "temple", "shrine",
	"ruin", "castle", "keep", "tower", "dungeon", "chamber", "hall",
	"road", "bridge", "gate", "river", "mountain", "valley", "swamp",
	"harbor", "port", "district", "plaza", "square", "region", "place",
}

const nameExpr = `[A-Z][a-zA-Z']+(?: [A-Z][a-zA-Z']+)*`

var (
	isDescRe = regexp.MustCompile(`\b(` + nameExpr + `) is (?:a|an|the) ([^.!?\n]+)`)
	meetRe   = regexp.MustCompile(`\bmeets? (` + nameExpr + `), (?:a|an|the) ([^.!?\n]+)`)
	saysRe   = regexp.MustCompile(`\b(` + nameExpr + `) (?:tells|says|explains)(?: you)?(?: that)? ([^.!?\n]+)`)
	arriveRe = regexp.MustCompile(`\barrive[sd]? (?:at|in) (?:the )?(` + nameExpr + `)`)
	questRe  = regexp.MustCompile(`\b(?:quest|mission) to ([^.!?,\n]+)`)
	asksToRe = regexp.MustCompile(`\basks? you to ([^.!?,\n]+)`)
	obtainRe = regexp.MustCompile(`\b(?:find|finds|found|discover|discovers|discovered|obtain|obtains|obtained) (?:a|an|the) ([a-zA-Z' -]+?)(?:[.!?,;\n]|$)`)
)

// ExtractEntities mines DM prose for named NPCs, locations, quests and
// items. Facts are deduplicated by name and type; the first mention wins.
func ExtractEntities(text string) []Entity {
	var out []Entity
	seen := make(map[string]bool)
	add := func(name, typ, fact string) {
		name = strings.TrimSpace(name)
		fact = strings.TrimSpace(fact)
		if name == "" || fact == "" || pronounNames[name] {
			return
		}
		key := typ + "/" + strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Entity{Name: name, Type: typ, Fact: fact})
	}

	for _, m := range isDescRe.FindAllStringSubmatch(text, -1) {
		typ := EntityNPC
		// Classify by the head of the description, not the whole clause,
		// so "leader of the village" stays a person.
		if containsAnyWord(descHead(m[2]), locationWords) {
			typ = EntityLocation
		}
		add(m[1], typ, m[0])
	}
	for _, m := range meetRe.FindAllStringSubmatch(text, -1) {
		add(m[1], EntityNPC, m[1]+" is a "+m[2])
	}
	for _, m := range saysRe.FindAllStringSubmatch(text, -1) {
		add(m[1], EntityNPC, m[0])
	}
	for _, m := range arriveRe.FindAllStringSubmatch(text, -1) {
		add(m[1], EntityLocation, "The party has visited "+m[1]+".")
	}
	for _, m := range questRe.FindAllStringSubmatch(text, -1) {
		add(questName(m[1]), EntityQuest, "Quest: "+m[1])
	}
	for _, m := range asksToRe.FindAllStringSubmatch(text, -1) {
		add(questName(m[1]), EntityQuest, "Quest: "+m[1])
	}
	for _, m := range obtainRe.FindAllStringSubmatch(text, -1) {
		name := itemName(m[1])
		add(name, EntityItem, "The party obtained the "+name+".")
	}
	return out
}

// descHead returns the first three words of a description clause.
func descHead(desc string) string {
	words := strings.Fields(strings.ToLower(desc))
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

// itemPrepositions end an item name; the rest of the clause is where the
// item was, not what it is.
var itemPrepositions = map[string]bool{
	"beneath": true, "under": true, "in": true, "on": true, "from": true,
	"at": true, "behind": true, "inside": true, "near": true, "within": true,
	"atop": true, "among": true, "beside": true,
}

// itemName trims an obtained-item clause down to the item itself.
func itemName(raw string) string {
	words := strings.Fields(raw)
	for i, w := range words {
		if itemPrepositions[strings.ToLower(w)] {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

// questName shortens an objective clause into a stable quest key.
func questName(objective string) string {
	words := strings.Fields(objective)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

func containsAnyWord(text string, words []string) bool {
	padded := " " + text + " "
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") || strings.Contains(padded, " "+w+"s ") {
			return true
		}
	}
	return false
}
