// Package intent classifies player messages into a closed set of intents
// with extracted slots. The classifier is rules-based: an ordered pattern
// list with fuzzy verb correction for misspelled input, so the output
// contract holds without a trained model. It is read-only after
// construction and safe for concurrent use.
package intent

// Intent is the closed set of player intents the pipeline routes on.
type Intent string

const (
	IntentCastSpell    Intent = "cast_spell"
	IntentWeaponAttack Intent = "weapon_attack"
	IntentUseFeature   Intent = "use_feature"
	IntentUseItem      Intent = "use_item"
	IntentAskRule      Intent = "ask_rule"
	IntentRecall       Intent = "recall"
	IntentAction       Intent = "action"
	IntentExplore      Intent = "explore"
	IntentManageItem   Intent = "manage_item"
	IntentRest         Intent = "rest"
	IntentGeneral      Intent = "general"
)

// IsValid reports whether i is a recognised intent.
func (i Intent) IsValid() bool {
	switch i {
	case IntentCastSpell, IntentWeaponAttack, IntentUseFeature, IntentUseItem,
		IntentAskRule, IntentRecall, IntentAction, IntentExplore,
		IntentManageItem, IntentRest, IntentGeneral:
		return true
	}
	return false
}

// Slot keys emitted by the classifier. Values are plain strings; booleans
// are "true"/"false".
const (
	SlotSpellName   = "spell_name"
	SlotIsRitual    = "is_ritual"
	SlotWeaponName  = "weapon_name"
	SlotFeature     = "feature_name"
	SlotResource    = "resource"
	SlotItemName    = "item_name"
	SlotActionType  = "action_type" // take | drop | equip | unequip | inventory
	SlotAction      = "action"
	SlotSkill       = "skill"
	SlotSensory     = "sensory_type" // visual | auditory | olfactory | tactile
	SlotDuration    = "duration"     // short | long
	SlotTarget      = "target"
	SlotDestination = "destination"
	SlotTravelMode  = "travel_mode"
)

// Result is the classifier output. OK is true even for the general
// fallback; the pipeline must always be able to continue.
type Result struct {
	Intent     Intent
	Slots      map[string]string
	Confidence float64
	OK         bool
}

// general returns the fallback result used when nothing matches or the
// input is unusable.
func general(confidence float64) Result {
	return Result{
		Intent:     IntentGeneral,
		Slots:      map[string]string{},
		Confidence: confidence,
		OK:         true,
	}
}
