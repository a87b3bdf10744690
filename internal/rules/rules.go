// Package rules validates classified player actions against the character
// sheet, the session state, and the campaign module before any state is
// mutated. A failed validation carries a one-sentence reason the DM uses
// to narrate the refusal.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/loremaster-ai/loremaster/internal/intent"
	"github.com/loremaster-ai/loremaster/pkg/campaign"
	"github.com/loremaster-ai/loremaster/pkg/game"
)

// CharacterLoader fetches the authoritative character record. Validators
// always load fresh so stale cached sheets cannot approve impossible actions.
type CharacterLoader interface {
	Load(ctx context.Context, characterID string) (*game.Character, error)
}

// Result is the outcome of validating one action.
type Result struct {
	OK     bool
	Reason string
	// Details carries machine-readable context for the failure.
	Details map[string]string
	// CombatInitiating marks a valid attack made outside combat mode; the
	// narrative node uses it to transition into combat.
	CombatInitiating bool
}

func ok() Result { return Result{OK: true} }

func fail(reason string, kv ...string) Result {
	details := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		details[kv[i]] = kv[i+1]
	}
	return Result{OK: false, Reason: reason, Details: details}
}

// minLongRestGap is the minimum game-clock time between long rests.
const minLongRestGap = time.Hour

// knownSkills is the D&D 5e skill list accepted in action slots.
var knownSkills = map[string]bool{
	"acrobatics": true, "animal handling": true, "arcana": true,
	"athletics": true, "deception": true, "history": true, "insight": true,
	"intimidation": true, "investigation": true, "medicine": true,
	"nature": true, "perception": true, "performance": true,
	"persuasion": true, "religion": true, "sleight of hand": true,
	"stealth": true, "survival": true,
}

// resourceRecharge maps resource slot values to the recharge schedule that
// restores them. A named resource must agree with the feature's recharge.
var resourceRecharge = map[string]string{
	"ki_points":         "short_rest",
	"channel_divinity":  "short_rest",
	"superiority_dice":  "short_rest",
	"lay_on_hands_pool": "long_rest",
	"rage_uses":         "long_rest",
}

// Validator checks intents against character and world state. Safe for
// concurrent use.
type Validator struct {
	characters CharacterLoader
	campaigns  campaign.Store
}

// New builds a validator. campaigns may be nil when no module is loaded;
// location-dependent checks then pass.
func New(characters CharacterLoader, campaigns campaign.Store) *Validator {
	return &Validator{characters: characters, campaigns: campaigns}
}

// Validate checks the classified action for the session. The returned
// character is the fresh load used for the checks, for reuse downstream;
// it is nil for intents that validate without a sheet. The error return is
// reserved for infrastructure failures such as the character service being
// unreachable.
func (v *Validator) Validate(ctx context.Context, session *game.Session, res intent.Result) (Result, *game.Character, error) {
	switch res.Intent {
	case intent.IntentExplore, intent.IntentRecall, intent.IntentAskRule, intent.IntentGeneral:
		return ok(), nil, nil
	}

	if session.CharacterID == "" {
		return Result{}, nil, ErrNoCharacter
	}
	ch, err := v.characters.Load(ctx, session.CharacterID)
	if err != nil {
		return Result{}, nil, fmt.Errorf("rules: load character %s: %w", session.CharacterID, err)
	}
	if ch == nil {
		return Result{}, nil, fmt.Errorf("rules: character %s not found", session.CharacterID)
	}

	var result Result
	switch res.Intent {
	case intent.IntentCastSpell:
		result = v.validateCastSpell(ch, session, res.Slots)
	case intent.IntentWeaponAttack:
		result = v.validateWeaponAttack(ch, session, res.Slots)
	case intent.IntentUseFeature:
		result = v.validateUseFeature(ch, res.Slots)
	case intent.IntentUseItem:
		result = v.validateUseItem(ch, res.Slots)
	case intent.IntentManageItem:
		result = v.validateManageItem(ctx, ch, session, res.Slots)
	case intent.IntentRest:
		result = v.validateRest(ctx, ch, session, res.Slots)
	case intent.IntentAction:
		result = v.validateAction(res.Slots)
	default:
		result = ok()
	}
	return result, ch, nil
}

func (v *Validator) validateCastSpell(ch *game.Character, session *game.Session, slots map[string]string) Result {
	if ch.Incapacitated() {
		return fail("You cannot cast spells while incapacitated.")
	}

	name := slots[intent.SlotSpellName]
	if name == "" {
		return fail("No spell was named.")
	}
	spell := ch.FindSpell(name)
	if spell == nil {
		return fail(fmt.Sprintf("You don't know the spell %s.", name), "spell", name)
	}

	isRitual := slots[intent.SlotIsRitual] == "true"
	if isRitual {
		if session.GameMode == game.ModeCombat {
			return fail("Ritual casting is not allowed in combat.")
		}
		if !spell.Ritual {
			return fail(fmt.Sprintf("%s cannot be cast as a ritual.", spell.Name), "spell", spell.Name)
		}
		return ok()
	}

	if spell.Level == 0 {
		return ok()
	}
	if !hasSlotAtOrAbove(ch, spell.Level) {
		return fail(fmt.Sprintf("You have no spell slot of level %d or higher available.", spell.Level),
			"spell", spell.Name, "level", strconv.Itoa(spell.Level))
	}
	return ok()
}

// hasSlotAtOrAbove reports whether any slot of the given level or higher
// is available, allowing upcasting.
func hasSlotAtOrAbove(ch *game.Character, level int) bool {
	for key, slot := range ch.Spellcasting.Slots {
		lvl, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if lvl >= level && slot.Available > 0 {
			return true
		}
	}
	return false
}

func (v *Validator) validateWeaponAttack(ch *game.Character, session *game.Session, slots map[string]string) Result {
	if ch.Incapacitated() {
		return fail("You cannot attack while incapacitated.")
	}

	if name := slots[intent.SlotWeaponName]; name != "" {
		if ch.FindItem(name) == nil {
			return fail(fmt.Sprintf("You don't have a %s.", name), "weapon", name)
		}
	}

	result := ok()
	result.CombatInitiating = session.GameMode != game.ModeCombat
	return result
}

func (v *Validator) validateUseFeature(ch *game.Character, slots map[string]string) Result {
	if ch.Incapacitated() {
		return fail("You cannot use features while incapacitated.")
	}

	name := slots[intent.SlotFeature]
	if name == "" {
		return fail("No feature was named.")
	}
	feat := ch.FindFeature(name)
	if feat == nil {
		return fail(fmt.Sprintf("You don't have the feature %s.", name), "feature", name)
	}
	if feat.UsesRemaining <= 0 {
		return fail(fmt.Sprintf("You have no uses of %s remaining.", feat.Name), "feature", feat.Name)
	}

	if resource := slots[intent.SlotResource]; resource != "" && feat.Recharge != "" {
		if want, known := resourceRecharge[resource]; known && want != feat.Recharge {
			return fail(fmt.Sprintf("%s is not powered by %s.", feat.Name, resource),
				"feature", feat.Name, "resource", resource)
		}
	}
	return ok()
}

func (v *Validator) validateUseItem(ch *game.Character, slots map[string]string) Result {
	name := slots[intent.SlotItemName]
	if name == "" {
		return fail("No item was named.")
	}
	item := ch.FindItem(name)
	if item == nil {
		return fail(fmt.Sprintf("You don't have a %s.", name), "item", name)
	}
	if item.Consumable && item.Quantity <= 0 {
		return fail(fmt.Sprintf("You have no %s left.", item.Name), "item", item.Name)
	}
	return ok()
}

func (v *Validator) validateManageItem(ctx context.Context, ch *game.Character, session *game.Session, slots map[string]string) Result {
	actionType := slots[intent.SlotActionType]
	if actionType == "inventory" {
		return ok()
	}

	name := slots[intent.SlotItemName]
	if name == "" {
		return fail("No item was named.")
	}

	switch actionType {
	case "take":
		if !v.itemAtLocation(ctx, session.CurrentLocationID, name) {
			return fail(fmt.Sprintf("There is no %s here.", name), "item", name)
		}
		return ok()
	case "drop", "equip", "unequip":
		if ch.FindItem(name) == nil {
			return fail(fmt.Sprintf("You don't have a %s.", name), "item", name)
		}
		return ok()
	default:
		return fail(fmt.Sprintf("Unrecognised inventory action %q.", actionType))
	}
}

// itemAtLocation reports whether an item with the given name is placed at
// the location in the loaded module. Without a module, or with an unknown
// location, the check passes so freeform play is not blocked.
func (v *Validator) itemAtLocation(ctx context.Context, locationID, name string) bool {
	if v.campaigns == nil || locationID == "" {
		return true
	}
	loc, err := v.campaigns.Location(ctx, locationID)
	if err != nil {
		return true
	}
	for _, itemID := range loc.ItemIDs {
		item, err := v.campaigns.Item(ctx, itemID)
		if err != nil {
			continue
		}
		if strings.EqualFold(item.Name, name) {
			return true
		}
	}
	return false
}

func (v *Validator) validateRest(ctx context.Context, ch *game.Character, session *game.Session, slots map[string]string) Result {
	duration := slots[intent.SlotDuration]
	if duration == "" {
		duration = "short"
	}

	if session.GameMode == game.ModeCombat {
		return fail("You cannot rest during combat.")
	}

	if v.areaUnsafe(ctx, session) {
		if duration == "long" {
			return fail("Area is unsafe; cannot long rest here.")
		}
		return fail("Area is unsafe; cannot rest here.")
	}

	if duration == "long" {
		if ch.LastLongRest != nil {
			last := time.Unix(ch.LastLongRest.GameHour, 0)
			if session.Tracked.Environment.CurrentDateTime.Sub(last) < minLongRestGap {
				return fail("You finished a long rest too recently to benefit from another.")
			}
		}
		if phase := session.Tracked.Environment.CurrentDayPhase; phase == game.PhaseMorning {
			return fail("The day has barely begun; a long rest now would do nothing.")
		}
	}
	return ok()
}

// areaUnsafe reports whether the current area carries a hostile or unsafe
// flag. Flags are checked for the location's region and for the location
// ID itself.
func (v *Validator) areaUnsafe(ctx context.Context, session *game.Session) bool {
	regions := []string{session.CurrentLocationID}
	if v.campaigns != nil && session.CurrentLocationID != "" {
		if loc, err := v.campaigns.Location(ctx, session.CurrentLocationID); err == nil && loc.Region != "" {
			regions = append(regions, loc.Region)
		}
	}
	for _, region := range regions {
		if session.Tracked.Environment.AreaHasFlag(region, "hostile") ||
			session.Tracked.Environment.AreaHasFlag(region, "unsafe") {
			return true
		}
	}
	return false
}

func (v *Validator) validateAction(slots map[string]string) Result {
	if slots[intent.SlotAction] == "" {
		return fail("No action was specified.")
	}
	if skill := slots[intent.SlotSkill]; skill != "" && !knownSkills[strings.ToLower(skill)] {
		return fail(fmt.Sprintf("%s is not a known skill.", skill), "skill", skill)
	}
	return ok()
}

// ErrNoCharacter signals validation was asked for a session without a
// character attached.
var ErrNoCharacter = errors.New("rules: session has no character")
