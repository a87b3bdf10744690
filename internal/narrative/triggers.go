package narrative

import (
	"context"
	"strings"

	"github.com/loremaster-ai/loremaster/internal/intent"
	"github.com/loremaster-ai/loremaster/internal/observe"
	"github.com/loremaster-ai/loremaster/pkg/campaign"
	"github.com/loremaster-ai/loremaster/pkg/game"
)

// EventFiredFlagPrefix marks first-time events in the session's global
// flags: "event_fired_<event_id>".
const EventFiredFlagPrefix = "event_fired_"

// TurnInput is the per-turn context the trigger evaluator reads.
type TurnInput struct {
	Session       *game.Session
	Character     *game.Character
	PlayerMessage string
	Intent        intent.Result
}

// FiredEvent records one event that fired this turn.
type FiredEvent struct {
	EventID string
	Name    string
}

// EvaluateTriggers collects the events reachable this turn (current
// location, active quest stages, NPC dialogue, global), evaluates each
// condition, and applies the outcomes of every event that fires. Each
// event fires at most once per turn; first_time events that already fired
// this session are skipped. A failing event is logged and skipped without
// aborting the rest.
func EvaluateTriggers(ctx context.Context, store campaign.Store, in TurnInput) []FiredEvent {
	if store == nil || in.Session == nil {
		return nil
	}

	var fired []FiredEvent
	seen := make(map[string]bool)

	for _, ev := range reachableEvents(ctx, store, in.Session) {
		if seen[ev.ID] {
			continue
		}
		seen[ev.ID] = true

		if ev.FirstTime && in.Session.Tracked.HasFlag(EventFiredFlagPrefix+ev.ID) {
			continue
		}
		if !evaluateCondition(ctx, store, in, ev.Trigger) {
			continue
		}

		for _, out := range ev.Outcomes {
			applyOutcome(in.Session, out)
		}
		if ev.FirstTime {
			in.Session.Tracked.SetFlag(EventFiredFlagPrefix + ev.ID)
		}
		fired = append(fired, FiredEvent{EventID: ev.ID, Name: ev.Name})
	}
	return fired
}

// reachableEvents gathers candidate events in evaluation order: location,
// active quest stages, NPC dialogue at the location, then global. Dialogue
// events are authored on locations; they are split out so they evaluate
// after quest-stage events.
func reachableEvents(ctx context.Context, store campaign.Store, session *game.Session) []campaign.Event {
	var events, dialogue []campaign.Event
	logger := observe.Logger(ctx)

	if session.CurrentLocationID != "" {
		locEvents, err := store.EventsForLocation(ctx, session.CurrentLocationID)
		if err != nil {
			logger.Warn("location events lookup failed",
				"location_id", session.CurrentLocationID, "error", err)
		}
		for _, ev := range locEvents {
			if ev.Trigger.Type == campaign.TriggerSpeakToNPC {
				dialogue = append(dialogue, ev)
			} else {
				events = append(events, ev)
			}
		}
	}

	for questID, stageID := range session.Tracked.QuestStatus {
		stageEvents, err := store.EventsForQuestStage(ctx, questID, stageID)
		if err != nil {
			logger.Warn("quest stage events lookup failed",
				"quest_id", questID, "stage_id", stageID, "error", err)
			continue
		}
		events = append(events, stageEvents...)
	}

	events = append(events, dialogue...)

	global, err := store.GlobalEvents(ctx)
	if err != nil {
		logger.Warn("global events lookup failed", "error", err)
	}
	events = append(events, global...)

	return events
}

// evaluateCondition checks one trigger against the turn. Unknown types are
// false, never an error.
func evaluateCondition(ctx context.Context, store campaign.Store, in TurnInput, trg campaign.Trigger) bool {
	session := in.Session
	message := strings.ToLower(in.PlayerMessage)

	switch trg.Type {
	case campaign.TriggerEnterLocation:
		return session.CurrentLocationID == trg.LocationID

	case campaign.TriggerSpeakToNPC:
		npc, err := store.NPC(ctx, trg.NPCID)
		if err != nil {
			return false
		}
		if !npcPresent(ctx, store, session, trg.NPCID) {
			return false
		}
		if strings.Contains(message, strings.ToLower(npc.Name)) {
			return true
		}
		for _, kw := range trg.Keywords {
			if strings.Contains(message, strings.ToLower(kw)) {
				return true
			}
		}
		return false

	case campaign.TriggerUseItemOnTarget:
		if in.Intent.Intent != intent.IntentUseItem || in.Character == nil {
			return false
		}
		item, err := store.Item(ctx, trg.ItemID)
		if err != nil {
			return false
		}
		slotName := in.Intent.Slots[intent.SlotItemName]
		if !strings.EqualFold(slotName, item.Name) || in.Character.FindItem(item.Name) == nil {
			return false
		}
		return strings.Contains(message, strings.ToLower(targetName(ctx, store, trg.TargetID)))

	case campaign.TriggerQuestStage:
		return session.Tracked.QuestStatus[trg.QuestID] == trg.StageID

	case campaign.TriggerFlagSet:
		for _, flag := range trg.RequiredFlags {
			if !session.Tracked.HasFlag(flag) {
				return false
			}
		}
		return len(trg.RequiredFlags) > 0

	case campaign.TriggerTimeBased:
		env := session.Tracked.Environment
		if trg.DayPhase != "" && !strings.EqualFold(trg.DayPhase, string(env.CurrentDayPhase)) {
			return false
		}
		if trg.TimeRange != nil && !trg.TimeRange.Contains(env.CurrentDateTime.Hour()) {
			return false
		}
		if trg.SpecificDate != "" && trg.SpecificDate != env.CurrentDateTime.Format("2006-01-02") {
			return false
		}
		return trg.DayPhase != "" || trg.TimeRange != nil || trg.SpecificDate != ""

	case campaign.TriggerInventoryChange:
		if in.Character == nil {
			return false
		}
		item, err := store.Item(ctx, trg.ItemID)
		if err != nil {
			return false
		}
		holds := in.Character.FindItem(item.Name) != nil
		if trg.InventoryAction == "lose" {
			return !holds
		}
		return holds

	case campaign.TriggerCombatStart:
		return session.GameMode == game.ModeCombat

	case campaign.TriggerCombatEnd:
		return session.PreviousGameMode == game.ModeCombat && session.GameMode != game.ModeCombat

	case campaign.TriggerHealthThreshold:
		if in.Character == nil || in.Character.HitPoints.Max <= 0 {
			return false
		}
		ratio := float64(in.Character.HitPoints.Current) / float64(in.Character.HitPoints.Max)
		if trg.Comparison == "above" {
			return ratio > trg.Threshold
		}
		return ratio < trg.Threshold

	case campaign.TriggerKeywordInInput:
		if len(trg.Keywords) == 0 {
			return false
		}
		matched := 0
		for _, kw := range trg.Keywords {
			if strings.Contains(message, strings.ToLower(kw)) {
				matched++
			}
		}
		if trg.MatchAll {
			return matched == len(trg.Keywords)
		}
		return matched > 0
	}
	return false
}

// npcPresent reports whether the NPC is at the session's current location,
// either placed there by the module or spawned during play.
func npcPresent(ctx context.Context, store campaign.Store, session *game.Session, npcID string) bool {
	if session.CurrentLocationID == "" {
		return false
	}
	npcs, err := store.NPCsAtLocation(ctx, session.CurrentLocationID)
	if err == nil {
		for _, npc := range npcs {
			if npc.ID == npcID {
				return true
			}
		}
	}
	ls, ok := session.Tracked.LocationStates[session.CurrentLocationID]
	if !ok {
		return false
	}
	present, _ := ls["npc_present_"+npcID].(bool)
	return present
}

// targetName resolves a trigger target ID to a display name, trying NPCs
// then items.
func targetName(ctx context.Context, store campaign.Store, targetID string) string {
	if npc, err := store.NPC(ctx, targetID); err == nil {
		return npc.Name
	}
	if item, err := store.Item(ctx, targetID); err == nil {
		return item.Name
	}
	return targetID
}

// applyOutcome writes one event outcome into the session's tracked state.
func applyOutcome(session *game.Session, out campaign.Outcome) {
	t := &session.Tracked
	switch out.Type {
	case campaign.OutcomeUpdateQuest:
		if t.QuestStatus == nil {
			t.QuestStatus = make(map[string]string)
		}
		t.QuestStatus[out.QuestID] = out.StageID

	case campaign.OutcomeSetGlobalFlag:
		t.SetFlag(out.Flag)

	case campaign.OutcomeSetAreaFlag:
		if t.Environment.AreaFlags == nil {
			t.Environment.AreaFlags = make(map[string][]string)
		}
		if !t.Environment.AreaHasFlag(out.RegionID, out.Flag) {
			t.Environment.AreaFlags[out.RegionID] = append(t.Environment.AreaFlags[out.RegionID], out.Flag)
		}

	case campaign.OutcomeChangeDisposition:
		if t.NPCDispositions == nil {
			t.NPCDispositions = make(map[string]string)
		}
		t.NPCDispositions[out.NPCID] = out.Disposition

	case campaign.OutcomeInventoryFlag:
		flag := out.Flag
		if flag == "" {
			flag = "inventory_" + out.ItemID
		}
		t.SetFlag(flag)

	case campaign.OutcomeSpawnNPC:
		loc := out.LocationID
		if loc == "" {
			loc = session.CurrentLocationID
		}
		if loc != "" {
			t.LocationState(loc)["npc_present_"+out.NPCID] = true
		}
		if out.Disposition != "" {
			if t.NPCDispositions == nil {
				t.NPCDispositions = make(map[string]string)
			}
			t.NPCDispositions[out.NPCID] = out.Disposition
		}
	}
}
