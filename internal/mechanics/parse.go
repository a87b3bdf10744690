// Package mechanics extracts mechanical effects from the DM response and
// applies them to the character sheet. Effects arrive either as structured
// [MECHANICS] blocks the model was instructed to emit, or as prose the
// fallback patterns recognise. Unknown effect types are logged and
// skipped; one bad effect never aborts the rest.
package mechanics

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/loremaster-ai/loremaster/internal/observe"
)

// EffectType enumerates the mechanical effect kinds.
type EffectType string

const (
	EffectDamage         EffectType = "damage"
	EffectHealing        EffectType = "healing"
	EffectCondition      EffectType = "condition"
	EffectResourceChange EffectType = "resource_change"
	EffectRestComplete   EffectType = "rest_complete"
	EffectAbilityCheck   EffectType = "ability_check"
	EffectCombatRoll     EffectType = "combat_roll"
)

// Effect is one parsed mechanical effect. Data keys follow the structured
// block schema; prose-derived effects fill the same keys.
type Effect struct {
	Type EffectType
	Data map[string]any
}

var blockRe = regexp.MustCompile(`(?s)\[MECHANICS\]\s*type:\s*([a-z_]+)\s*data:\s*(\{.*?\})\s*\[/MECHANICS\]`)

// Prose fallback patterns.
var (
	damageRe       = regexp.MustCompile(`(?i)\b(?:takes?|deals?|suffers?)\s+(\d+)\s+(?:\w+\s+)?damage\b`)
	healingRe      = regexp.MustCompile(`(?i)\b(?:regains?|recovers?|heals?)\s+(\d+)\s+(?:hit points|hp)\b`)
	conditionAddRe = regexp.MustCompile(`(?i)\byou are (?:now )?(poisoned|paralyzed|stunned|unconscious|frightened|blinded|restrained|prone|charmed|exhausted)\b`)
	conditionRemRe = regexp.MustCompile(`(?i)\b(?:no longer|recovered? from being)\s+(poisoned|paralyzed|stunned|unconscious|frightened|blinded|restrained|prone|charmed|exhausted)\b`)
	abilityCheckRe = regexp.MustCompile(`(?i)\bmake (?:a|an)\s+([a-z]+)\s+(?:\([a-z ]+\)\s+)?check\b`)
	attackRollRe   = regexp.MustCompile(`(?i)\broll (?:a )?d20 for (?:an? )?attack\b`)
	initiativeRe   = regexp.MustCompile(`(?i)\broll (?:for )?initiative\b`)
	restDoneRe     = regexp.MustCompile(`(?i)\byou (?:finish|complete) your (long|short) rest\b`)
)

// Parse extracts every mechanical effect from the DM response: structured
// blocks first, then prose patterns over the remaining text. A prose match
// is dropped when a structured block of the same type was parsed; the
// narration restates what the block already encodes, and applying both
// would double damage, healing and rest recovery. Returns the response
// with the blocks stripped, for display to the player.
func Parse(ctx context.Context, response string) (string, []Effect) {
	var effects []Effect
	logger := observe.Logger(ctx)

	clean := blockRe.ReplaceAllStringFunc(response, func(block string) string {
		m := blockRe.FindStringSubmatch(block)
		data := make(map[string]any)
		if err := json.Unmarshal([]byte(m[2]), &data); err != nil {
			logger.Warn("unparseable mechanics block", "type", m[1], "error", err)
			return ""
		}
		effects = append(effects, Effect{Type: EffectType(m[1]), Data: data})
		return ""
	})
	clean = strings.TrimSpace(clean)

	structured := make(map[EffectType]bool, len(effects))
	for _, e := range effects {
		structured[e.Type] = true
	}
	for _, e := range parseProse(clean) {
		if structured[e.Type] {
			continue
		}
		effects = append(effects, e)
	}
	return clean, effects
}

// parseProse runs the fallback patterns over text that carried no
// structured block for the effect.
func parseProse(text string) []Effect {
	var effects []Effect

	if m := damageRe.FindStringSubmatch(text); m != nil {
		effects = append(effects, Effect{Type: EffectDamage, Data: map[string]any{"amount": atoiSafe(m[1])}})
	}
	if m := healingRe.FindStringSubmatch(text); m != nil {
		effects = append(effects, Effect{Type: EffectHealing, Data: map[string]any{"amount": atoiSafe(m[1])}})
	}
	if m := conditionAddRe.FindStringSubmatch(text); m != nil {
		effects = append(effects, Effect{Type: EffectCondition, Data: map[string]any{
			"name": strings.ToLower(m[1]), "action": "add",
		}})
	}
	if m := conditionRemRe.FindStringSubmatch(text); m != nil {
		effects = append(effects, Effect{Type: EffectCondition, Data: map[string]any{
			"name": strings.ToLower(m[1]), "action": "remove",
		}})
	}
	if m := restDoneRe.FindStringSubmatch(text); m != nil {
		effects = append(effects, Effect{Type: EffectRestComplete, Data: map[string]any{
			"rest_type": strings.ToLower(m[1]),
		}})
	}
	if m := abilityCheckRe.FindStringSubmatch(text); m != nil {
		effects = append(effects, Effect{Type: EffectAbilityCheck, Data: map[string]any{
			"check_type": strings.ToLower(m[1]),
		}})
	}
	switch {
	case initiativeRe.MatchString(text):
		effects = append(effects, Effect{Type: EffectCombatRoll, Data: map[string]any{"roll_type": "initiative"}})
	case attackRollRe.MatchString(text):
		effects = append(effects, Effect{Type: EffectCombatRoll, Data: map[string]any{"roll_type": "attack"}})
	}

	return effects
}

func atoiSafe(s string) float64 {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return float64(n)
}
