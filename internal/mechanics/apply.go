package mechanics

import (
	"context"
	"strings"
	"time"

	"github.com/loremaster-ai/loremaster/internal/observe"
	"github.com/loremaster-ai/loremaster/pkg/game"
)

// Apply writes the parsed effects onto the character sheet. gameNow is the
// session game-clock instant, recorded when a long rest completes. Unknown
// effect types and malformed data are logged and skipped. Returns the
// number of effects applied.
func Apply(ctx context.Context, ch *game.Character, effects []Effect, gameNow time.Time) int {
	if ch == nil {
		return 0
	}
	logger := observe.Logger(ctx)

	applied := 0
	for _, eff := range effects {
		switch eff.Type {
		case EffectDamage:
			ch.ApplyDamage(intField(eff.Data, "amount"))
		case EffectHealing:
			ch.ApplyHealing(intField(eff.Data, "amount"))
		case EffectCondition:
			name := stringField(eff.Data, "name")
			if name == "" {
				logger.Warn("condition effect without a name")
				continue
			}
			if stringField(eff.Data, "action") == "remove" {
				ch.RemoveCondition(name)
			} else {
				ch.AddCondition(name)
			}
		case EffectResourceChange:
			applyResourceChange(ch, eff.Data, logger.Warn)
		case EffectRestComplete:
			applyRestComplete(ch, stringField(eff.Data, "rest_type"), gameNow)
		case EffectAbilityCheck:
			ch.PendingAbilityCheck = stringField(eff.Data, "check_type")
		case EffectCombatRoll:
			ch.PendingCombatRoll = stringField(eff.Data, "roll_type")
		default:
			logger.Warn("unknown mechanic type skipped", "type", string(eff.Type))
			continue
		}
		applied++
	}
	return applied
}

// applyResourceChange adjusts a spell slot pool or a feature's remaining
// uses, clamping at zero.
func applyResourceChange(ch *game.Character, data map[string]any, warn func(string, ...any)) {
	resourceType := stringField(data, "resource_type")
	key := stringField(data, "resource_key")
	delta := intField(data, "delta")

	switch resourceType {
	case "spell_slot":
		if ch.Spellcasting.Slots == nil {
			warn("resource change on a character without spell slots", "key", key)
			return
		}
		slot, ok := ch.Spellcasting.Slots[key]
		if !ok {
			warn("resource change for unknown slot level", "key", key)
			return
		}
		slot.Available += delta
		if slot.Available < 0 {
			slot.Available = 0
		}
		if slot.Available > slot.Total {
			slot.Available = slot.Total
		}
		ch.Spellcasting.Slots[key] = slot
	default:
		feat := ch.FindFeature(key)
		if feat == nil {
			warn("resource change for unknown feature", "key", key)
			return
		}
		feat.UsesRemaining += delta
		if feat.UsesRemaining < 0 {
			feat.UsesRemaining = 0
		}
	}
}

// applyRestComplete grants the benefits of a finished rest. Long rests
// restore everything and clear conditions except exhaustion; short rests
// grant up to level*2 hit points.
func applyRestComplete(ch *game.Character, restType string, gameNow time.Time) {
	if restType == "long" {
		ch.HitPoints.Current = ch.HitPoints.Max
		for key, slot := range ch.Spellcasting.Slots {
			slot.Available = slot.Total
			ch.Spellcasting.Slots[key] = slot
		}
		kept := ch.Conditions[:0]
		for _, cond := range ch.Conditions {
			if strings.EqualFold(cond, "exhaustion") {
				kept = append(kept, cond)
			}
		}
		ch.Conditions = kept
		ch.LastLongRest = &game.LongRestMarker{GameHour: gameNow.Unix()}
		return
	}
	ch.ApplyHealing(ch.Level * 2)
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
