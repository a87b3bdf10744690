package mechanics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/loremaster-ai/loremaster/internal/mechanics"
	"github.com/loremaster-ai/loremaster/pkg/game"
)

var gameNow = time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

func testCharacter() *game.Character {
	return &game.Character{
		Name:  "Kaelen",
		Level: 3,
		HitPoints: game.HitPoints{
			Current: 12,
			Max:     20,
		},
		Conditions: []string{"poisoned", "exhaustion"},
		Spellcasting: game.Spellcasting{
			Slots: map[string]game.SpellSlot{
				"1": {Available: 1, Total: 3},
				"2": {Available: 0, Total: 2},
			},
		},
		Features: []game.Feature{
			{Name: "Arcane Recovery", UsesRemaining: 1},
		},
	}
}

func TestParseStructuredBlocks(t *testing.T) {
	t.Parallel()

	response := `The blade bites deep.

[MECHANICS]
type: damage
data: {"amount": 7}
[/MECHANICS]

You stagger back.`

	clean, effects := mechanics.Parse(context.Background(), response)

	if strings.Contains(clean, "[MECHANICS]") {
		t.Errorf("block not stripped: %q", clean)
	}
	if !strings.Contains(clean, "The blade bites deep.") || !strings.Contains(clean, "You stagger back.") {
		t.Errorf("narration lost: %q", clean)
	}
	if len(effects) != 1 {
		t.Fatalf("effects = %+v, want one damage effect", effects)
	}
	if effects[0].Type != mechanics.EffectDamage {
		t.Errorf("type = %q, want damage", effects[0].Type)
	}
	if amount, _ := effects[0].Data["amount"].(float64); amount != 7 {
		t.Errorf("amount = %v, want 7", effects[0].Data["amount"])
	}
}

func TestParseStructuredWinsOverProse(t *testing.T) {
	t.Parallel()

	// The block and the narration describe the same hit; only the block
	// may produce an effect, or the damage lands twice.
	response := `[MECHANICS]
type: damage
data: {"amount": 5}
[/MECHANICS]

The arrow strikes true; you take 5 piercing damage.`

	_, effects := mechanics.Parse(context.Background(), response)

	if len(effects) != 1 {
		t.Fatalf("effects = %+v, want one damage effect", effects)
	}
	if effects[0].Type != mechanics.EffectDamage {
		t.Fatalf("type = %q, want damage", effects[0].Type)
	}

	ch := testCharacter() // 12/20 hp
	applied := mechanics.Apply(context.Background(), ch, effects, gameNow)
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if ch.HitPoints.Current != 7 {
		t.Errorf("hp = %d, want 7", ch.HitPoints.Current)
	}

	// Prose describing a different effect type still comes through.
	mixed := `[MECHANICS]
type: damage
data: {"amount": 3}
[/MECHANICS]

You take 3 damage and the venom takes hold. You are now poisoned.`

	_, effects = mechanics.Parse(context.Background(), mixed)
	if len(effects) != 2 {
		t.Fatalf("effects = %+v, want damage + condition", effects)
	}
	if effects[0].Type != mechanics.EffectDamage || effects[1].Type != mechanics.EffectCondition {
		t.Errorf("types = %q, %q, want damage then condition", effects[0].Type, effects[1].Type)
	}
}

func TestParseMalformedBlockIsSkipped(t *testing.T) {
	t.Parallel()

	response := "[MECHANICS]\ntype: damage\ndata: {not json}\n[/MECHANICS]\nYou take 4 damage."

	clean, effects := mechanics.Parse(context.Background(), response)

	if strings.Contains(clean, "[MECHANICS]") {
		t.Errorf("malformed block not stripped: %q", clean)
	}
	// The prose fallback still finds the damage sentence.
	if len(effects) != 1 || effects[0].Type != mechanics.EffectDamage {
		t.Fatalf("effects = %+v, want one prose damage effect", effects)
	}
}

func TestParseProsePatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		wantType mechanics.EffectType
		wantData map[string]any
	}{
		{
			name:     "damage",
			response: "The arrow strikes true; you take 5 piercing damage.",
			wantType: mechanics.EffectDamage,
			wantData: map[string]any{"amount": float64(5)},
		},
		{
			name:     "healing",
			response: "Warmth spreads through you as you regain 8 hit points.",
			wantType: mechanics.EffectHealing,
			wantData: map[string]any{"amount": float64(8)},
		},
		{
			name:     "condition added",
			response: "The venom takes hold. You are now poisoned.",
			wantType: mechanics.EffectCondition,
			wantData: map[string]any{"name": "poisoned", "action": "add"},
		},
		{
			name:     "condition removed",
			response: "The antidote works; you are no longer poisoned.",
			wantType: mechanics.EffectCondition,
			wantData: map[string]any{"name": "poisoned", "action": "remove"},
		},
		{
			name:     "ability check",
			response: "Make a perception check to spot the tripwire.",
			wantType: mechanics.EffectAbilityCheck,
			wantData: map[string]any{"check_type": "perception"},
		},
		{
			name:     "attack roll",
			response: "Roll a d20 for attack.",
			wantType: mechanics.EffectCombatRoll,
			wantData: map[string]any{"roll_type": "attack"},
		},
		{
			name:     "initiative",
			response: "Steel rings out. Roll initiative!",
			wantType: mechanics.EffectCombatRoll,
			wantData: map[string]any{"roll_type": "initiative"},
		},
		{
			name:     "long rest completion",
			response: "You finish your long rest as dawn breaks.",
			wantType: mechanics.EffectRestComplete,
			wantData: map[string]any{"rest_type": "long"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, effects := mechanics.Parse(context.Background(), tt.response)
			if len(effects) != 1 {
				t.Fatalf("effects = %+v, want exactly one", effects)
			}
			if effects[0].Type != tt.wantType {
				t.Fatalf("type = %q, want %q", effects[0].Type, tt.wantType)
			}
			for k, want := range tt.wantData {
				if got := effects[0].Data[k]; got != want {
					t.Errorf("data[%q] = %v, want %v", k, got, want)
				}
			}
		})
	}
}

func TestApplyDamageClampsAtZero(t *testing.T) {
	t.Parallel()

	ch := testCharacter()
	mechanics.Apply(context.Background(), ch, []mechanics.Effect{
		{Type: mechanics.EffectDamage, Data: map[string]any{"amount": float64(50)}},
	}, gameNow)

	if ch.HitPoints.Current != 0 {
		t.Errorf("hp = %d, want 0", ch.HitPoints.Current)
	}
}

func TestApplyHealingClampsAtMax(t *testing.T) {
	t.Parallel()

	ch := testCharacter()
	mechanics.Apply(context.Background(), ch, []mechanics.Effect{
		{Type: mechanics.EffectHealing, Data: map[string]any{"amount": float64(50)}},
	}, gameNow)

	if ch.HitPoints.Current != ch.HitPoints.Max {
		t.Errorf("hp = %d, want %d", ch.HitPoints.Current, ch.HitPoints.Max)
	}
}

func TestApplySpellSlotChange(t *testing.T) {
	t.Parallel()

	ch := testCharacter()
	mechanics.Apply(context.Background(), ch, []mechanics.Effect{
		{Type: mechanics.EffectResourceChange, Data: map[string]any{
			"resource_type": "spell_slot", "resource_key": "1", "delta": float64(-1),
		}},
		{Type: mechanics.EffectResourceChange, Data: map[string]any{
			"resource_type": "spell_slot", "resource_key": "2", "delta": float64(-1),
		}},
	}, gameNow)

	if got := ch.Spellcasting.Slots["1"].Available; got != 0 {
		t.Errorf("slot 1 available = %d, want 0", got)
	}
	// Already empty; must clamp, not go negative.
	if got := ch.Spellcasting.Slots["2"].Available; got != 0 {
		t.Errorf("slot 2 available = %d, want 0", got)
	}
}

func TestApplyLongRestComplete(t *testing.T) {
	t.Parallel()

	ch := testCharacter()
	applied := mechanics.Apply(context.Background(), ch, []mechanics.Effect{
		{Type: mechanics.EffectRestComplete, Data: map[string]any{"rest_type": "long"}},
	}, gameNow)

	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	if ch.HitPoints.Current != ch.HitPoints.Max {
		t.Errorf("hp = %d, want full", ch.HitPoints.Current)
	}
	for key, slot := range ch.Spellcasting.Slots {
		if slot.Available != slot.Total {
			t.Errorf("slot %s = %d/%d, want full", key, slot.Available, slot.Total)
		}
	}
	if ch.HasCondition("poisoned") {
		t.Error("poisoned should be cleared by a long rest")
	}
	if !ch.HasCondition("exhaustion") {
		t.Error("exhaustion must survive a long rest")
	}
	if ch.LastLongRest == nil || ch.LastLongRest.GameHour != gameNow.Unix() {
		t.Errorf("LastLongRest = %+v, want marker at %d", ch.LastLongRest, gameNow.Unix())
	}
}

func TestApplyShortRestCapsAtLevelTimesTwo(t *testing.T) {
	t.Parallel()

	ch := testCharacter() // level 3, 12/20 hp
	mechanics.Apply(context.Background(), ch, []mechanics.Effect{
		{Type: mechanics.EffectRestComplete, Data: map[string]any{"rest_type": "short"}},
	}, gameNow)

	if ch.HitPoints.Current != 18 {
		t.Errorf("hp = %d, want 18", ch.HitPoints.Current)
	}
}

func TestApplyPendingRolls(t *testing.T) {
	t.Parallel()

	ch := testCharacter()
	mechanics.Apply(context.Background(), ch, []mechanics.Effect{
		{Type: mechanics.EffectAbilityCheck, Data: map[string]any{"check_type": "perception"}},
		{Type: mechanics.EffectCombatRoll, Data: map[string]any{"roll_type": "attack"}},
	}, gameNow)

	if ch.PendingAbilityCheck != "perception" {
		t.Errorf("PendingAbilityCheck = %q", ch.PendingAbilityCheck)
	}
	if ch.PendingCombatRoll != "attack" {
		t.Errorf("PendingCombatRoll = %q", ch.PendingCombatRoll)
	}
}

func TestApplyUnknownEffectIsSkipped(t *testing.T) {
	t.Parallel()

	ch := testCharacter()
	applied := mechanics.Apply(context.Background(), ch, []mechanics.Effect{
		{Type: "teleport", Data: map[string]any{}},
		{Type: mechanics.EffectDamage, Data: map[string]any{"amount": float64(2)}},
	}, gameNow)

	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if ch.HitPoints.Current != 10 {
		t.Errorf("hp = %d, want 10", ch.HitPoints.Current)
	}
}
