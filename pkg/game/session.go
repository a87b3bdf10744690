package game

import "time"

// Sender identifies who produced a history entry.
type Sender string

const (
	SenderPlayer Sender = "player"
	SenderDM     Sender = "dm"
)

// HistoryEntry is a single exchange line in the session transcript.
// History never loses entries; only the most recent slice is fed to the
// generator when building prompts.
type HistoryEntry struct {
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PinnedMemory marks a memory the player wants always included in context.
type PinnedMemory struct {
	MemoryID   string `json:"memory_id"`
	Importance int    `json:"importance"`
	Note       string `json:"note,omitempty"`
}

// EnvironmentState is the in-world clock and ambient condition model.
type EnvironmentState struct {
	// CurrentDateTime is the absolute game-clock instant.
	CurrentDateTime time.Time `json:"current_datetime"`

	// CurrentDayPhase is always PhaseForTime(CurrentDateTime). It is stored
	// redundantly so prompts and triggers can read it without recomputing.
	CurrentDayPhase DayPhase `json:"current_day_phase"`

	// AreaFlags maps a region ID to its set of environmental flags
	// (e.g. "hostile", "raining", "unsafe").
	AreaFlags map[string][]string `json:"area_flags,omitempty"`
}

// AdvanceTime moves the game clock forward by d and rederives the day phase.
func (e *EnvironmentState) AdvanceTime(d time.Duration) {
	e.CurrentDateTime = e.CurrentDateTime.Add(d)
	e.CurrentDayPhase = PhaseForTime(e.CurrentDateTime)
}

// AreaHasFlag reports whether the region carries the given flag.
func (e *EnvironmentState) AreaHasFlag(regionID, flag string) bool {
	for _, f := range e.AreaFlags[regionID] {
		if f == flag {
			return true
		}
	}
	return false
}

// TrackedState is the persistent per-session world state distinct from the
// conversational history.
type TrackedState struct {
	// QuestStatus maps quest ID to its current stage ID, or the terminal
	// markers "completed" / "failed". A terminal value stays until a trigger
	// explicitly overwrites it.
	QuestStatus map[string]string `json:"quest_status,omitempty"`

	// NPCDispositions maps NPC ID to a disposition label, or "dead".
	NPCDispositions map[string]string `json:"npc_dispositions,omitempty"`

	// LocationStates holds free-form flags and counters per location.
	LocationStates map[string]map[string]any `json:"location_states,omitempty"`

	// GlobalFlags is the set of campaign-wide flags. Includes
	// "event_fired_<id>" markers for first-time events.
	GlobalFlags []string `json:"global_flags,omitempty"`

	// FeatureUseCounts and SpellCastCounts track per-name usage counters.
	FeatureUseCounts map[string]int `json:"feature_use_counts,omitempty"`
	SpellCastCounts  map[string]int `json:"spell_cast_counts,omitempty"`

	// Environment is the in-world clock and area conditions.
	Environment EnvironmentState `json:"environment_state"`
}

// HasFlag reports whether flag is present in GlobalFlags.
func (t *TrackedState) HasFlag(flag string) bool {
	for _, f := range t.GlobalFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// SetFlag adds flag to GlobalFlags if absent.
func (t *TrackedState) SetFlag(flag string) {
	if !t.HasFlag(flag) {
		t.GlobalFlags = append(t.GlobalFlags, flag)
	}
}

// LocationState returns the mutable flag map for locationID, creating it on
// first use.
func (t *TrackedState) LocationState(locationID string) map[string]any {
	if t.LocationStates == nil {
		t.LocationStates = make(map[string]map[string]any)
	}
	ls, ok := t.LocationStates[locationID]
	if !ok {
		ls = make(map[string]any)
		t.LocationStates[locationID] = ls
	}
	return ls
}

// Session is the full persistent state of one campaign playthrough for one
// character. It is the unit the checkpointer saves and loads.
type Session struct {
	SessionID        string `json:"session_id"`
	UserID           string `json:"user_id"`
	CharacterID      string `json:"character_id"`
	WorldID          string `json:"world_id,omitempty"`
	CampaignModuleID string `json:"campaign_module_id,omitempty"`

	// GameMode is the current narrative mode; PreviousGameMode is the last
	// distinct mode before the most recent transition.
	GameMode         Mode `json:"game_mode"`
	PreviousGameMode Mode `json:"previous_game_mode,omitempty"`

	// CurrentLocationID is the location the player currently occupies.
	CurrentLocationID string `json:"current_location_id,omitempty"`

	History []HistoryEntry `json:"history"`

	Tracked TrackedState `json:"tracked_narrative_state"`

	// Summary is the latest rolling summary produced by the summarization
	// worker, if any.
	Summary string `json:"summary,omitempty"`

	PinnedMemories []PinnedMemory `json:"pinned_memories,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession constructs a fresh session in intro mode with the game clock
// set to now.
func NewSession(sessionID, userID, characterID, worldID, moduleID string, now time.Time) *Session {
	return &Session{
		SessionID:        sessionID,
		UserID:           userID,
		CharacterID:      characterID,
		WorldID:          worldID,
		CampaignModuleID: moduleID,
		GameMode:         ModeIntro,
		Tracked: TrackedState{
			QuestStatus:      map[string]string{},
			NPCDispositions:  map[string]string{},
			LocationStates:   map[string]map[string]any{},
			FeatureUseCounts: map[string]int{},
			SpellCastCounts:  map[string]int{},
			Environment: EnvironmentState{
				CurrentDateTime: now,
				CurrentDayPhase: PhaseForTime(now),
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionMode moves the session to mode, recording the old mode in
// PreviousGameMode when the mode actually changes. Returns true when a
// transition happened.
func (s *Session) TransitionMode(mode Mode) bool {
	if mode == s.GameMode || !mode.IsValid() {
		return false
	}
	s.PreviousGameMode = s.GameMode
	s.GameMode = mode
	return true
}

// AppendHistory appends one entry to the transcript.
func (s *Session) AppendHistory(sender Sender, message string, at time.Time) {
	s.History = append(s.History, HistoryEntry{Sender: sender, Message: message, Timestamp: at})
}

// RecentHistory returns the last n history entries (all of them when the
// transcript is shorter).
func (s *Session) RecentHistory(n int) []HistoryEntry {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
