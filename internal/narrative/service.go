// Package narrative applies the world-state consequences of a validated
// player action: game-mode transitions, direct state edits, time
// advancement, and module event triggers. It runs before the DM response
// is generated, so the prompt reflects the post-action world.
package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loremaster-ai/loremaster/internal/intent"
	"github.com/loremaster-ai/loremaster/internal/observe"
	"github.com/loremaster-ai/loremaster/pkg/campaign"
	"github.com/loremaster-ai/loremaster/pkg/game"
)

// Delta summarizes what the narrative node changed this turn.
type Delta struct {
	ModeChanged  bool
	NewMode      game.Mode
	TimeAdvanced time.Duration
	// Moved is set when travel resolved to a new location.
	Moved         bool
	DestinationID string
	FiredEvents   []FiredEvent
}

// Service is the narrative node. campaigns may be nil for freeform play
// without a module; trigger evaluation and destination resolution then do
// nothing.
type Service struct {
	campaigns campaign.Store
}

// NewService builds the narrative service.
func NewService(campaigns campaign.Store) *Service {
	return &Service{campaigns: campaigns}
}

// Apply runs the narrative sub-steps in order for a validated action.
// Sub-step failures are isolated: a failing lookup logs and the remaining
// steps still run.
func (s *Service) Apply(ctx context.Context, session *game.Session, ch *game.Character, playerMessage string, res intent.Result, combatInitiating bool) Delta {
	var delta Delta

	npcPresent := s.anyNPCPresent(ctx, session, res)
	if mode, changed := PlayerTransition(session.GameMode, ch, res, combatInitiating, npcPresent); changed {
		if session.TransitionMode(mode) {
			delta.ModeChanged = true
			delta.NewMode = mode
		}
	}

	s.applyStateEdits(session, res)

	delta.TimeAdvanced, delta.DestinationID, delta.Moved = s.advanceTime(ctx, session, res)
	session.Tracked.Environment.AdvanceTime(delta.TimeAdvanced)

	delta.FiredEvents = EvaluateTriggers(ctx, s.campaigns, TurnInput{
		Session:       session,
		Character:     ch,
		PlayerMessage: playerMessage,
		Intent:        res,
	})

	return delta
}

// applyStateEdits writes the per-intent tracked-state deltas.
func (s *Service) applyStateEdits(session *game.Session, res intent.Result) {
	t := &session.Tracked
	switch res.Intent {
	case intent.IntentManageItem:
		action := res.Slots[intent.SlotActionType]
		item := res.Slots[intent.SlotItemName]
		if item == "" || action == "inventory" {
			return
		}
		flag := fmt.Sprintf("item_%s_%s", pastTense(action), slug(item))
		switch action {
		case "take", "drop":
			if session.CurrentLocationID != "" {
				session.Tracked.LocationState(session.CurrentLocationID)[flag] = true
			}
			t.SetFlag(flag)
		case "equip", "unequip":
			t.SetFlag(flag)
		}

	case intent.IntentExplore:
		if session.CurrentLocationID == "" {
			return
		}
		sensory := res.Slots[intent.SlotSensory]
		if sensory == "" {
			sensory = "visual"
		}
		ls := t.LocationState(session.CurrentLocationID)
		ls["explored_"+sensory] = true
		ls["explored_"+sensory+"_at"] = t.Environment.CurrentDateTime.Format(time.RFC3339)

	case intent.IntentUseFeature:
		name := res.Slots[intent.SlotFeature]
		if name == "" {
			return
		}
		t.SetFlag("feature_used_" + slug(name))
		if t.FeatureUseCounts == nil {
			t.FeatureUseCounts = make(map[string]int)
		}
		t.FeatureUseCounts[slug(name)]++

	case intent.IntentUseItem:
		if name := res.Slots[intent.SlotItemName]; name != "" {
			t.SetFlag("item_used_" + slug(name))
		}

	case intent.IntentCastSpell:
		name := res.Slots[intent.SlotSpellName]
		if name == "" {
			return
		}
		t.SetFlag("spell_cast_" + slug(name))
		if t.SpellCastCounts == nil {
			t.SpellCastCounts = make(map[string]int)
		}
		t.SpellCastCounts[slug(name)]++

	case intent.IntentAction:
		if verb := res.Slots[intent.SlotAction]; verb != "" {
			t.SetFlag("action_performed_" + slug(verb))
		}
		if skill := res.Slots[intent.SlotSkill]; skill != "" {
			t.SetFlag("skill_used_" + slug(skill))
		}
	}
}

// advanceTime computes the game-clock advancement for the action and
// resolves travel destinations. Unresolvable destinations still advance
// the default time; the location stays put.
func (s *Service) advanceTime(ctx context.Context, session *game.Session, res intent.Result) (time.Duration, string, bool) {
	switch res.Intent {
	case intent.IntentRest:
		if res.Slots[intent.SlotDuration] == "long" {
			return LongRestAdvance, "", false
		}
		return ShortRestAdvance, "", false

	case intent.IntentExplore:
		return ExploreAdvance, "", false

	case intent.IntentAction:
		dest := res.Slots[intent.SlotDestination]
		mode := res.Slots[intent.SlotTravelMode]
		if dest == "" && mode == "" {
			return DefaultAdvance, "", false
		}

		conn, target, err := ResolveDestination(ctx, s.campaigns, session.CurrentLocationID, dest)
		if err != nil {
			observe.Logger(ctx).Debug("destination not resolved",
				"destination", dest, "error", err)
			return DefaultAdvance, "", false
		}
		if conn.TravelMode != "" {
			mode = conn.TravelMode
		}
		session.CurrentLocationID = target.ID
		s.seedAreaFlags(session, target)
		return TravelDuration(conn.DistanceMiles, mode), target.ID, true
	}
	return DefaultAdvance, "", false
}

// seedAreaFlags copies the module's initial area flags for a newly entered
// location into the session environment, without overwriting flags play
// has already set.
func (s *Service) seedAreaFlags(session *game.Session, loc *campaign.Location) {
	if len(loc.AreaFlags) == 0 {
		return
	}
	env := &session.Tracked.Environment
	if env.AreaFlags == nil {
		env.AreaFlags = make(map[string][]string)
	}
	key := loc.Region
	if key == "" {
		key = loc.ID
	}
	for _, flag := range loc.AreaFlags {
		if !env.AreaHasFlag(key, flag) {
			env.AreaFlags[key] = append(env.AreaFlags[key], flag)
		}
	}
}

// anyNPCPresent reports whether an NPC is at the current location or named
// in the action's target slot.
func (s *Service) anyNPCPresent(ctx context.Context, session *game.Session, res intent.Result) bool {
	if s.campaigns == nil || session.CurrentLocationID == "" {
		// Freeform play: assume the DM can always supply an interlocutor.
		return res.Slots[intent.SlotTarget] != ""
	}
	npcs, err := s.campaigns.NPCsAtLocation(ctx, session.CurrentLocationID)
	if err != nil || len(npcs) == 0 {
		return false
	}
	return true
}

// slug lowercases a name and replaces spaces for use inside flag tokens.
func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// pastTense maps a manage_item action to its flag form.
func pastTense(action string) string {
	switch action {
	case "take":
		return "taken"
	case "drop":
		return "dropped"
	case "equip":
		return "equipped"
	case "unequip":
		return "unequipped"
	}
	return action
}
