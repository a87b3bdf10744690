package intent_test

import (
	"testing"

	"github.com/loremaster-ai/loremaster/internal/intent"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	c := intent.NewClassifier()

	tests := []struct {
		name       string
		input      string
		wantIntent intent.Intent
		wantSlots  map[string]string
	}{
		{
			name:       "cast spell with target",
			input:      "I cast Fireball at the goblin",
			wantIntent: intent.IntentCastSpell,
			wantSlots: map[string]string{
				intent.SlotSpellName: "fireball",
				intent.SlotIsRitual:  "false",
				intent.SlotTarget:    "goblin",
			},
		},
		{
			name:       "ritual casting",
			input:      "I cast detect magic as a ritual",
			wantIntent: intent.IntentCastSpell,
			wantSlots: map[string]string{
				intent.SlotSpellName: "detect magic",
				intent.SlotIsRitual:  "true",
			},
		},
		{
			name:       "weapon attack with weapon and target",
			input:      "I attack the goblin with my sword",
			wantIntent: intent.IntentWeaponAttack,
			wantSlots: map[string]string{
				intent.SlotWeaponName: "sword",
				intent.SlotTarget:     "goblin",
			},
		},
		{
			name:       "long rest beats take verb",
			input:      "I take a long rest",
			wantIntent: intent.IntentRest,
			wantSlots:  map[string]string{intent.SlotDuration: "long"},
		},
		{
			name:       "rest defaults to short",
			input:      "we rest for a bit",
			wantIntent: intent.IntentRest,
			wantSlots:  map[string]string{intent.SlotDuration: "short"},
		},
		{
			name:       "pick up item",
			input:      "I pick up the rusty key",
			wantIntent: intent.IntentManageItem,
			wantSlots: map[string]string{
				intent.SlotActionType: "take",
				intent.SlotItemName:   "rusty key",
			},
		},
		{
			name:       "drop item",
			input:      "drop the torch",
			wantIntent: intent.IntentManageItem,
			wantSlots: map[string]string{
				intent.SlotActionType: "drop",
				intent.SlotItemName:   "torch",
			},
		},
		{
			name:       "equip item",
			input:      "I equip my longsword",
			wantIntent: intent.IntentManageItem,
			wantSlots: map[string]string{
				intent.SlotActionType: "equip",
				intent.SlotItemName:   "longsword",
			},
		},
		{
			name:       "put away item",
			input:      "I put away my sword",
			wantIntent: intent.IntentManageItem,
			wantSlots: map[string]string{
				intent.SlotActionType: "unequip",
				intent.SlotItemName:   "sword",
			},
		},
		{
			name:       "inventory check",
			input:      "check my inventory",
			wantIntent: intent.IntentManageItem,
			wantSlots:  map[string]string{intent.SlotActionType: "inventory"},
		},
		{
			name:       "drink is item use",
			input:      "I drink the potion of healing",
			wantIntent: intent.IntentUseItem,
			wantSlots:  map[string]string{intent.SlotItemName: "potion of healing"},
		},
		{
			name:       "class feature use",
			input:      "I use my second wind",
			wantIntent: intent.IntentUseFeature,
			wantSlots:  map[string]string{intent.SlotFeature: "second wind"},
		},
		{
			name:       "feature with resource",
			input:      "I use flurry of blows",
			wantIntent: intent.IntentUseFeature,
			wantSlots: map[string]string{
				intent.SlotFeature:  "flurry of blows",
				intent.SlotResource: "ki_points",
			},
		},
		{
			name:       "use unknown thing is item use",
			input:      "I use my rope",
			wantIntent: intent.IntentUseItem,
			wantSlots:  map[string]string{intent.SlotItemName: "rope"},
		},
		{
			name:       "explore defaults to visual",
			input:      "I look around the room",
			wantIntent: intent.IntentExplore,
			wantSlots:  map[string]string{intent.SlotSensory: "visual"},
		},
		{
			name:       "listening is auditory",
			input:      "I listen at the door",
			wantIntent: intent.IntentExplore,
			wantSlots:  map[string]string{intent.SlotSensory: "auditory"},
		},
		{
			name:       "recall",
			input:      "do I remember what the elder told us",
			wantIntent: intent.IntentRecall,
			wantSlots:  map[string]string{},
		},
		{
			name:       "rule question",
			input:      "how does grappling work",
			wantIntent: intent.IntentAskRule,
			wantSlots:  map[string]string{},
		},
		{
			name:       "sneaking maps to stealth",
			input:      "I sneak past the guards",
			wantIntent: intent.IntentAction,
			wantSlots: map[string]string{
				intent.SlotAction: "sneak",
				intent.SlotSkill:  "stealth",
			},
		},
		{
			name:       "travel with destination and mode",
			input:      "travel to the tomb entrance on horseback",
			wantIntent: intent.IntentAction,
			wantSlots: map[string]string{
				intent.SlotAction:      "travel",
				intent.SlotDestination: "tomb entrance",
				intent.SlotTravelMode:  "horse",
			},
		},
		{
			name:       "persuasion",
			input:      "I persuade the guard",
			wantIntent: intent.IntentAction,
			wantSlots: map[string]string{
				intent.SlotAction: "persuade",
				intent.SlotSkill:  "persuasion",
				intent.SlotTarget: "guard",
			},
		},
		{
			name:       "unmatched input falls back to general",
			input:      "the weather is lovely today",
			wantIntent: intent.IntentGeneral,
			wantSlots:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := c.Classify(tt.input)
			if !got.OK {
				t.Fatalf("Classify(%q) returned OK=false", tt.input)
			}
			if got.Intent != tt.wantIntent {
				t.Fatalf("Classify(%q) intent = %q, want %q", tt.input, got.Intent, tt.wantIntent)
			}
			for k, want := range tt.wantSlots {
				if got.Slots[k] != want {
					t.Errorf("slot %q = %q, want %q", k, got.Slots[k], want)
				}
			}
			for k := range got.Slots {
				if _, ok := tt.wantSlots[k]; !ok {
					t.Errorf("unexpected slot %q = %q", k, got.Slots[k])
				}
			}
		})
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	t.Parallel()

	c := intent.NewClassifier()

	for _, input := range []string{"", "   ", "?!"} {
		got := c.Classify(input)
		if got.Intent != intent.IntentGeneral {
			t.Errorf("Classify(%q) intent = %q, want general", input, got.Intent)
		}
		if got.Confidence != 0 {
			t.Errorf("Classify(%q) confidence = %v, want 0", input, got.Confidence)
		}
		if !got.OK {
			t.Errorf("Classify(%q) OK = false, want true", input)
		}
	}
}

func TestClassifyFuzzyVerbCorrection(t *testing.T) {
	t.Parallel()

	c := intent.NewClassifier()

	got := c.Classify("I attck the goblin")
	if got.Intent != intent.IntentWeaponAttack {
		t.Fatalf("intent = %q, want weapon_attack", got.Intent)
	}
	if got.Confidence >= 0.9 {
		t.Errorf("confidence = %v, want below the direct-match tier", got.Confidence)
	}
	if got.Slots[intent.SlotTarget] != "goblin" {
		t.Errorf("target = %q, want goblin", got.Slots[intent.SlotTarget])
	}
}

func TestClassifyConfidenceTiers(t *testing.T) {
	t.Parallel()

	c := intent.NewClassifier()

	if got := c.Classify("I cast fireball"); got.Confidence != 0.9 {
		t.Errorf("direct match confidence = %v, want 0.9", got.Confidence)
	}
	if got := c.Classify("mumble mumble"); got.Confidence != 0.4 {
		t.Errorf("fallback confidence = %v, want 0.4", got.Confidence)
	}
}
