package narrative

import (
	"strings"

	"github.com/loremaster-ai/loremaster/internal/intent"
	"github.com/loremaster-ai/loremaster/pkg/game"
)

// damageSchools are the spell schools whose spells can start a fight.
var damageSchools = map[string]bool{
	"evocation":  true,
	"necromancy": true,
}

// harmfulWords mark a spell as offensive when found in its name or
// description alongside a damage school.
var harmfulWords = []string{
	"damage", "attack", "harm", "burn", "blast", "bolt", "missile",
	"ray", "wound", "strike", "hurl", "fire", "force",
}

// fleeVerbs move the player out of combat.
var fleeVerbs = map[string]bool{"flee": true, "escape": true, "run": true}

// socialVerbs open a conversation when an NPC is present.
var socialVerbs = map[string]bool{
	"talk": true, "speak": true, "persuade": true, "intimidate": true, "deceive": true,
}

// Prose cues, grouped by the transition they drive. Matching is
// case-insensitive substring search.
var (
	combatStartCues = []string{"roll initiative", "combat begins", "attacks you", "ambush"}
	combatEndCues   = []string{"the last enemy falls", "combat ends", "peace returns"}
	restEndCues     = []string{"finish your rest", "you wake refreshed"}
	socialEndCues   = []string{"the conversation ends", "walks away", "says goodbye"}
)

// PlayerTransition evaluates the player-driven mode transition rules for
// the classified action. npcPresent reports whether an NPC is at the
// current location or referenced by the message. First match wins; returns
// false when no rule applies.
func PlayerTransition(mode game.Mode, ch *game.Character, res intent.Result, combatInitiating, npcPresent bool) (game.Mode, bool) {
	switch {
	case mode != game.ModeCombat && res.Intent == intent.IntentCastSpell && isOffensiveSpell(ch, res.Slots[intent.SlotSpellName]):
		return game.ModeCombat, true
	case mode != game.ModeCombat && res.Intent == intent.IntentWeaponAttack && combatInitiating:
		return game.ModeCombat, true
	case mode == game.ModeCombat && res.Intent == intent.IntentAction && fleeVerbs[res.Slots[intent.SlotAction]]:
		return game.ModeExploration, true
	case res.Intent == intent.IntentRest:
		return game.ModeResting, true
	case mode == game.ModeExploration && res.Intent == intent.IntentAction && socialVerbs[res.Slots[intent.SlotAction]] && npcPresent:
		return game.ModeSocial, true
	}
	return mode, false
}

// ProseTransition evaluates the DM-prose transition rules against the
// generated response. Returns false when no cue matches the current mode.
func ProseTransition(mode game.Mode, prose string) (game.Mode, bool) {
	lower := strings.ToLower(prose)
	switch {
	case mode != game.ModeCombat && containsAny(lower, combatStartCues):
		return game.ModeCombat, true
	case mode == game.ModeCombat && containsAny(lower, combatEndCues):
		return game.ModeExploration, true
	case mode == game.ModeResting && containsAny(lower, restEndCues):
		return game.ModeExploration, true
	case mode == game.ModeSocial && containsAny(lower, socialEndCues):
		return game.ModeExploration, true
	}
	return mode, false
}

// isOffensiveSpell reports whether the named spell on the character sheet
// belongs to a damage school and reads as harmful.
func isOffensiveSpell(ch *game.Character, name string) bool {
	if ch == nil || name == "" {
		return false
	}
	spell := ch.FindSpell(name)
	if spell == nil {
		return false
	}
	if !damageSchools[strings.ToLower(spell.School)] {
		return false
	}
	text := strings.ToLower(spell.Name + " " + spell.Description)
	return containsAny(text, harmfulWords)
}

func containsAny(lower string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
