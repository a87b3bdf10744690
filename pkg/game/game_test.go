package game_test

import (
	"testing"
	"time"

	"github.com/loremaster-ai/loremaster/pkg/game"
)

func TestPhaseForHour(t *testing.T) {
	tests := []struct {
		hour int
		want game.DayPhase
	}{
		{0, game.PhaseNight},
		{4, game.PhaseNight},
		{5, game.PhaseMorning},
		{11, game.PhaseMorning},
		{12, game.PhaseAfternoon},
		{16, game.PhaseAfternoon},
		{17, game.PhaseEvening},
		{20, game.PhaseEvening},
		{21, game.PhaseNight},
		{23, game.PhaseNight},
	}
	for _, tt := range tests {
		if got := game.PhaseForHour(tt.hour); got != tt.want {
			t.Errorf("PhaseForHour(%d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestAdvanceTime_RederivesPhase(t *testing.T) {
	env := game.EnvironmentState{
		CurrentDateTime: time.Date(1491, 6, 20, 11, 30, 0, 0, time.UTC),
		CurrentDayPhase: game.PhaseMorning,
	}
	env.AdvanceTime(time.Hour)
	if env.CurrentDayPhase != game.PhaseAfternoon {
		t.Errorf("CurrentDayPhase = %q, want %q", env.CurrentDayPhase, game.PhaseAfternoon)
	}
	if got := env.CurrentDateTime.Hour(); got != 12 {
		t.Errorf("hour = %d, want 12", got)
	}
}

func TestTransitionMode(t *testing.T) {
	s := game.NewSession("s1", "u1", "c1", "", "", time.Now())
	if s.GameMode != game.ModeIntro {
		t.Fatalf("fresh session mode = %q, want intro", s.GameMode)
	}

	if !s.TransitionMode(game.ModeCombat) {
		t.Fatal("TransitionMode(combat) = false, want true")
	}
	if s.PreviousGameMode != game.ModeIntro {
		t.Errorf("PreviousGameMode = %q, want intro", s.PreviousGameMode)
	}

	// Same-mode transition is a no-op and must not touch previous mode.
	if s.TransitionMode(game.ModeCombat) {
		t.Error("TransitionMode(combat) while in combat should be false")
	}
	if s.PreviousGameMode != game.ModeIntro {
		t.Errorf("PreviousGameMode changed on no-op transition: %q", s.PreviousGameMode)
	}

	// Invalid mode is rejected.
	if s.TransitionMode(game.Mode("limbo")) {
		t.Error("TransitionMode with invalid mode should be false")
	}
}

func TestRecentHistory(t *testing.T) {
	s := game.NewSession("s1", "u1", "c1", "", "", time.Now())
	for i := 0; i < 10; i++ {
		s.AppendHistory(game.SenderPlayer, "msg", time.Now())
	}
	if got := len(s.RecentHistory(4)); got != 4 {
		t.Errorf("len(RecentHistory(4)) = %d, want 4", got)
	}
	if got := len(s.RecentHistory(50)); got != 10 {
		t.Errorf("len(RecentHistory(50)) = %d, want 10", got)
	}
	if got := len(s.RecentHistory(0)); got != 10 {
		t.Errorf("len(RecentHistory(0)) = %d, want 10", got)
	}
}

func TestCharacter_DamageAndHealing(t *testing.T) {
	c := &game.Character{HitPoints: game.HitPoints{Current: 10, Max: 20}}

	c.ApplyDamage(25)
	if c.HitPoints.Current != 0 {
		t.Errorf("HP after overkill = %d, want 0", c.HitPoints.Current)
	}

	c.ApplyHealing(100)
	if c.HitPoints.Current != 20 {
		t.Errorf("HP after overheal = %d, want 20", c.HitPoints.Current)
	}

	c.ApplyDamage(-5)
	if c.HitPoints.Current != 20 {
		t.Errorf("negative damage mutated HP: %d", c.HitPoints.Current)
	}
}

func TestCharacter_Conditions(t *testing.T) {
	c := &game.Character{}
	c.AddCondition("Poisoned")
	c.AddCondition("poisoned") // set semantics, case-insensitive
	if len(c.Conditions) != 1 {
		t.Fatalf("len(Conditions) = %d, want 1", len(c.Conditions))
	}
	if !c.HasCondition("POISONED") {
		t.Error("HasCondition should be case-insensitive")
	}
	c.RemoveCondition("Poisoned")
	if len(c.Conditions) != 0 {
		t.Errorf("len(Conditions) after remove = %d, want 0", len(c.Conditions))
	}

	c.AddCondition("stunned")
	if !c.Incapacitated() {
		t.Error("stunned character should be incapacitated")
	}
}

func TestAbilityModifier(t *testing.T) {
	tests := []struct{ score, want int }{
		{1, -5}, {8, -1}, {9, -1}, {10, 0}, {11, 0}, {12, 1}, {15, 2}, {20, 5},
	}
	for _, tt := range tests {
		if got := game.AbilityModifier(tt.score); got != tt.want {
			t.Errorf("AbilityModifier(%d) = %d, want %d", tt.score, got, tt.want)
		}
	}
}

func TestTrackedState_Flags(t *testing.T) {
	ts := &game.TrackedState{}
	ts.SetFlag("tomb_opened")
	ts.SetFlag("tomb_opened")
	if len(ts.GlobalFlags) != 1 {
		t.Errorf("len(GlobalFlags) = %d, want 1", len(ts.GlobalFlags))
	}
	if !ts.HasFlag("tomb_opened") {
		t.Error("HasFlag(tomb_opened) = false")
	}

	ls := ts.LocationState("crypt")
	ls["explored_visual"] = true
	if v, ok := ts.LocationStates["crypt"]["explored_visual"]; !ok || v != true {
		t.Error("LocationState did not persist writes")
	}
}
