// Package campaign defines the read-only world model a game session plays
// in: locations, NPCs, items, quests, and triggered events. Content is
// authored as YAML module files and loaded through a [Library], which caches
// parsed modules per (module_id, world_id).
//
// The campaign layer is static. Everything that changes during play (quest
// stages, dispositions, flags) lives in the session's tracked state, not
// here.
package campaign

// Location is a place the player can occupy. Connections describe where the
// player can travel to and how far it is.
type Location struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Region groups locations for area-wide environmental flags.
	Region string `yaml:"region,omitempty"`

	// AreaFlags are the location's initial environmental flags, such as
	// "hostile", "unsafe", or "dark". They seed the session's environment
	// state on first visit.
	AreaFlags []string `yaml:"area_flags,omitempty"`

	Connections []Connection `yaml:"connections,omitempty"`

	// NPCIDs, ItemIDs and EventIDs list content initially present here.
	NPCIDs   []string `yaml:"npc_ids,omitempty"`
	ItemIDs  []string `yaml:"item_ids,omitempty"`
	EventIDs []string `yaml:"event_ids,omitempty"`
}

// Connection is a traversable edge between two locations.
type Connection struct {
	LocationID    string  `yaml:"location_id"`
	DistanceMiles float64 `yaml:"distance_miles"`

	// TravelMode optionally fixes the mode for this edge ("boat" across a
	// lake, say). Empty means the player's stated or default mode applies.
	TravelMode string `yaml:"travel_mode,omitempty"`
}

// NPC is a non-player character defined by the module.
type NPC struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Disposition is the NPC's starting attitude ("friendly", "neutral",
	// "hostile"). Session state overrides it once play begins.
	Disposition string `yaml:"disposition,omitempty"`

	// LocationID is where the NPC starts. Spawn outcomes can move them.
	LocationID string `yaml:"location_id,omitempty"`

	// DialogueKeywords extend the NPC's name when matching speak_to_npc
	// triggers against player messages.
	DialogueKeywords []string `yaml:"dialogue_keywords,omitempty"`
}

// Item is an object the player can find, carry, or use.
type Item struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Consumable  bool   `yaml:"consumable,omitempty"`
}

// Quest is a multi-stage objective. Stage order in the slice is narrative
// order, but stage advancement is driven entirely by event outcomes.
type Quest struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Stages      []QuestStage `yaml:"stages"`
}

// QuestStage is one step of a quest. EventIDs are evaluated while the quest
// sits on this stage.
type QuestStage struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	EventIDs    []string `yaml:"event_ids,omitempty"`
}

// Event pairs a trigger condition with the outcomes applied when it fires.
type Event struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`

	// FirstTime events fire once per session; firing records an
	// event_fired_<id> global flag that suppresses re-evaluation.
	FirstTime bool `yaml:"first_time,omitempty"`

	// Global events are evaluated every turn regardless of location.
	Global bool `yaml:"global,omitempty"`

	Trigger  Trigger   `yaml:"trigger"`
	Outcomes []Outcome `yaml:"outcomes"`
}

// TriggerType enumerates the supported trigger conditions.
type TriggerType string

const (
	TriggerEnterLocation   TriggerType = "enter_location"
	TriggerSpeakToNPC      TriggerType = "speak_to_npc"
	TriggerUseItemOnTarget TriggerType = "use_item_on_target"
	TriggerQuestStage      TriggerType = "quest_stage_reached"
	TriggerFlagSet         TriggerType = "flag_set"
	TriggerTimeBased       TriggerType = "time_based"
	TriggerInventoryChange TriggerType = "inventory_change"
	TriggerCombatStart     TriggerType = "combat_start"
	TriggerCombatEnd       TriggerType = "combat_end"
	TriggerHealthThreshold TriggerType = "health_threshold"
	TriggerKeywordInInput  TriggerType = "keyword_in_input"
)

// IsValid reports whether t is a recognised trigger type.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerEnterLocation, TriggerSpeakToNPC, TriggerUseItemOnTarget,
		TriggerQuestStage, TriggerFlagSet, TriggerTimeBased,
		TriggerInventoryChange, TriggerCombatStart, TriggerCombatEnd,
		TriggerHealthThreshold, TriggerKeywordInInput:
		return true
	}
	return false
}

// Trigger is a typed condition. Only the parameters relevant to Type are
// populated; the rest stay at their zero values.
type Trigger struct {
	Type TriggerType `yaml:"type"`

	// enter_location
	LocationID string `yaml:"location_id,omitempty"`

	// speak_to_npc
	NPCID string `yaml:"npc_id,omitempty"`

	// speak_to_npc, keyword_in_input
	Keywords []string `yaml:"keywords,omitempty"`
	MatchAll bool     `yaml:"match_all,omitempty"`

	// use_item_on_target, inventory_change
	ItemID   string `yaml:"item_id,omitempty"`
	TargetID string `yaml:"target_id,omitempty"`

	// quest_stage_reached
	QuestID string `yaml:"quest_id,omitempty"`
	StageID string `yaml:"stage_id,omitempty"`

	// flag_set
	RequiredFlags []string `yaml:"required_flags,omitempty"`

	// time_based; any combination of the three constraints.
	DayPhase     string     `yaml:"day_phase,omitempty"`
	TimeRange    *TimeRange `yaml:"time_range,omitempty"`
	SpecificDate string     `yaml:"specific_date,omitempty"` // YYYY-MM-DD

	// inventory_change; "acquire" or "lose".
	InventoryAction string `yaml:"inventory_action,omitempty"`

	// health_threshold; Threshold is a fraction of max HP.
	Threshold  float64 `yaml:"threshold,omitempty"`
	Comparison string  `yaml:"comparison,omitempty"` // "below" or "above"
}

// TimeRange bounds a time_based trigger by hour of day. Start is inclusive,
// End exclusive. A range with Start > End wraps past midnight.
type TimeRange struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// Contains reports whether hour falls inside the range.
func (r TimeRange) Contains(hour int) bool {
	if r.StartHour <= r.EndHour {
		return hour >= r.StartHour && hour < r.EndHour
	}
	return hour >= r.StartHour || hour < r.EndHour
}

// OutcomeType enumerates the mutations an event can apply to tracked state.
type OutcomeType string

const (
	OutcomeUpdateQuest       OutcomeType = "update_quest"
	OutcomeSetGlobalFlag     OutcomeType = "set_global_flag"
	OutcomeSetAreaFlag       OutcomeType = "set_area_flag"
	OutcomeChangeDisposition OutcomeType = "change_disposition"
	OutcomeInventoryFlag     OutcomeType = "inventory_flag"
	OutcomeSpawnNPC          OutcomeType = "spawn_npc"
)

// IsValid reports whether t is a recognised outcome type.
func (t OutcomeType) IsValid() bool {
	switch t {
	case OutcomeUpdateQuest, OutcomeSetGlobalFlag, OutcomeSetAreaFlag,
		OutcomeChangeDisposition, OutcomeInventoryFlag, OutcomeSpawnNPC:
		return true
	}
	return false
}

// Outcome is one parameterized state mutation.
type Outcome struct {
	Type OutcomeType `yaml:"type"`

	// update_quest
	QuestID string `yaml:"quest_id,omitempty"`
	StageID string `yaml:"stage_id,omitempty"`

	// set_global_flag, inventory_flag
	Flag string `yaml:"flag,omitempty"`

	// set_area_flag
	RegionID string `yaml:"region_id,omitempty"`

	// change_disposition, spawn_npc
	NPCID       string `yaml:"npc_id,omitempty"`
	Disposition string `yaml:"disposition,omitempty"`
	LocationID  string `yaml:"location_id,omitempty"`

	// inventory_flag
	ItemID string `yaml:"item_id,omitempty"`
}
