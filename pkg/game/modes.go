// Package game defines the persistent data model of the Loremaster engine:
// the per-session game state, the tracked narrative state, the game-mode
// state machine, the in-game clock, and the read-mostly character view.
//
// Types in this package are plain data. All behaviour that mutates them
// lives in the pipeline nodes; the only logic kept here is derivation that
// must stay consistent everywhere it is used (day-phase bucketing, mode
// transition bookkeeping, hit-point clamping).
package game

import "time"

// Mode is the narrative mode a session is in. It governs system-prompt
// selection and which player actions are allowed.
type Mode string

const (
	// ModeIntro is the entry state of every fresh session.
	ModeIntro Mode = "intro"

	// ModeExploration is free-form travel, searching, and discovery.
	ModeExploration Mode = "exploration"

	// ModeCombat is initiative-ordered fighting. Ritual casting and resting
	// are disallowed while in this mode.
	ModeCombat Mode = "combat"

	// ModeSocial is focused conversation with one or more NPCs.
	ModeSocial Mode = "social"

	// ModeResting covers short and long rests.
	ModeResting Mode = "resting"
)

// IsValid reports whether m is a recognised game mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeIntro, ModeExploration, ModeCombat, ModeSocial, ModeResting:
		return true
	}
	return false
}

// DayPhase is the coarse time-of-day bucket derived from the game clock.
type DayPhase string

const (
	PhaseMorning   DayPhase = "Morning"
	PhaseAfternoon DayPhase = "Afternoon"
	PhaseEvening   DayPhase = "Evening"
	PhaseNight     DayPhase = "Night"
)

// PhaseForHour derives the day phase from an hour in [0, 24):
// [5,12) Morning, [12,17) Afternoon, [17,21) Evening, else Night.
func PhaseForHour(hour int) DayPhase {
	switch {
	case hour >= 5 && hour < 12:
		return PhaseMorning
	case hour >= 12 && hour < 17:
		return PhaseAfternoon
	case hour >= 17 && hour < 21:
		return PhaseEvening
	default:
		return PhaseNight
	}
}

// PhaseForTime derives the day phase from the game-clock instant t.
func PhaseForTime(t time.Time) DayPhase {
	return PhaseForHour(t.Hour())
}
