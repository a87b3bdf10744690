package game

import "strings"

// HitPoints tracks current and maximum hit points.
type HitPoints struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// SpellSlot tracks available and total slots for one slot level. The key in
// Spellcasting.Slots is the slot level ("cantrip", "1", "2", ...).
type SpellSlot struct {
	Available int `json:"available"`
	Total     int `json:"total"`
}

// Spellcasting is the slot book of a caster. Non-casters carry a nil map.
type Spellcasting struct {
	Slots  map[string]SpellSlot `json:"slots,omitempty"`
	Spells []Spell              `json:"spells,omitempty"`
}

// Spell is a known or prepared spell on the character sheet.
type Spell struct {
	Name string `json:"name"`
	// Level 0 is a cantrip.
	Level int `json:"level"`
	// School is the spell school ("evocation", "necromancy", ...).
	School string `json:"school,omitempty"`
	// Ritual marks spells castable as a ritual without a slot.
	Ritual bool `json:"ritual,omitempty"`
	// Description is the rules text; used for offensive-spell detection.
	Description string `json:"description,omitempty"`
}

// Feature is a class or racial feature with limited uses.
type Feature struct {
	Name string `json:"name"`
	// UsesRemaining counts uses left before the next recharge.
	UsesRemaining int `json:"uses_remaining"`
	// Recharge names the resource that restores uses ("short_rest",
	// "long_rest", "dawn").
	Recharge string `json:"recharge,omitempty"`
}

// Item is an inventory entry.
type Item struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Consumable bool   `json:"consumable,omitempty"`
	Equipped   bool   `json:"equipped,omitempty"`
	Weapon     bool   `json:"weapon,omitempty"`
}

// Equipment is the character's carried gear.
type Equipment struct {
	Inventory []Item `json:"inventory,omitempty"`
}

// Character is the view of a character record the engine reads, plus the
// few fields it writes back: HitPoints.Current, Conditions,
// Spellcasting.Slots, PendingAbilityCheck, and PendingCombatRoll.
// Everything else is owned by the external character service.
type Character struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Race       string `json:"race"`
	Class      string `json:"class"`
	Level      int    `json:"level"`
	Background string `json:"background,omitempty"`

	// Abilities maps ability name ("strength", ...) to its score.
	Abilities map[string]int `json:"abilities,omitempty"`

	// Skills lists proficient skill names.
	Skills []string `json:"skills,omitempty"`

	Description string `json:"description,omitempty"`

	HitPoints    HitPoints    `json:"hit_points"`
	Conditions   []string     `json:"conditions,omitempty"`
	Spellcasting Spellcasting `json:"spellcasting,omitempty"`
	Features     []Feature    `json:"features,omitempty"`
	Equipment    Equipment    `json:"equipment,omitempty"`

	// LastLongRest is the game-clock instant of the last completed long rest.
	LastLongRest *LongRestMarker `json:"last_long_rest,omitempty"`

	// PendingAbilityCheck is set when the DM asked for an ability check and
	// is waiting for the player's roll ("perception", "athletics", ...).
	PendingAbilityCheck string `json:"pending_ability_check,omitempty"`

	// PendingCombatRoll is set when the DM asked for an attack or initiative
	// roll ("attack" or "initiative").
	PendingCombatRoll string `json:"pending_combat_roll,omitempty"`
}

// LongRestMarker records when the last long rest completed, on the game clock.
type LongRestMarker struct {
	GameHour int64 `json:"game_hour"` // unix seconds on the game clock
}

// AbilityModifier converts an ability score to its modifier.
func AbilityModifier(score int) int {
	// Integer division rounds toward zero; shift so 8 → -1, 9 → -1, 10 → 0.
	if score >= 10 {
		return (score - 10) / 2
	}
	return -((11 - score) / 2)
}

// HasCondition reports whether the character currently has the condition
// (case-insensitive).
func (c *Character) HasCondition(name string) bool {
	for _, cond := range c.Conditions {
		if strings.EqualFold(cond, name) {
			return true
		}
	}
	return false
}

// AddCondition adds a condition as a set element.
func (c *Character) AddCondition(name string) {
	if !c.HasCondition(name) {
		c.Conditions = append(c.Conditions, name)
	}
}

// RemoveCondition removes a condition if present (case-insensitive).
func (c *Character) RemoveCondition(name string) {
	kept := c.Conditions[:0]
	for _, cond := range c.Conditions {
		if !strings.EqualFold(cond, name) {
			kept = append(kept, cond)
		}
	}
	c.Conditions = kept
}

// Incapacitated reports whether the character cannot take actions.
func (c *Character) Incapacitated() bool {
	return c.HasCondition("unconscious") || c.HasCondition("paralyzed") || c.HasCondition("stunned")
}

// ApplyDamage reduces current HP, clamping at zero.
func (c *Character) ApplyDamage(amount int) {
	if amount < 0 {
		amount = 0
	}
	c.HitPoints.Current -= amount
	if c.HitPoints.Current < 0 {
		c.HitPoints.Current = 0
	}
}

// ApplyHealing raises current HP, clamping at the maximum.
func (c *Character) ApplyHealing(amount int) {
	if amount < 0 {
		amount = 0
	}
	c.HitPoints.Current += amount
	if c.HitPoints.Current > c.HitPoints.Max {
		c.HitPoints.Current = c.HitPoints.Max
	}
}

// FindSpell returns the spell with the given name (case-insensitive), or nil.
func (c *Character) FindSpell(name string) *Spell {
	for i := range c.Spellcasting.Spells {
		if strings.EqualFold(c.Spellcasting.Spells[i].Name, name) {
			return &c.Spellcasting.Spells[i]
		}
	}
	return nil
}

// FindFeature returns the feature with the given name (case-insensitive), or nil.
func (c *Character) FindFeature(name string) *Feature {
	for i := range c.Features {
		if strings.EqualFold(c.Features[i].Name, name) {
			return &c.Features[i]
		}
	}
	return nil
}

// FindItem returns the inventory item with the given name (case-insensitive),
// or nil.
func (c *Character) FindItem(name string) *Item {
	for i := range c.Equipment.Inventory {
		if strings.EqualFold(c.Equipment.Inventory[i].Name, name) {
			return &c.Equipment.Inventory[i]
		}
	}
	return nil
}
