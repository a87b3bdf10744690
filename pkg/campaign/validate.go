package campaign

import (
	"errors"
	"fmt"
)

// ValidateModule checks a parsed [ModuleFile] for structural problems. All
// problems are collected and returned as a single joined error so authors
// can fix a file in one pass.
//
// Rules:
//   - Module ID must be non-empty.
//   - Every location, NPC, item, quest, and event must have a non-empty ID,
//     unique within its kind.
//   - Triggers and outcomes must carry recognised types.
//   - References between records (connections, event lists, NPC homes) must
//     resolve.
func ValidateModule(mf *ModuleFile) error {
	var errs []error

	if mf.Module.ID == "" {
		errs = append(errs, errors.New("module id must not be empty"))
	}

	locations := map[string]bool{}
	for i, loc := range mf.Locations {
		if loc.ID == "" {
			errs = append(errs, fmt.Errorf("location[%d]: id must not be empty", i))
			continue
		}
		if locations[loc.ID] {
			errs = append(errs, fmt.Errorf("location %q: duplicate id", loc.ID))
		}
		locations[loc.ID] = true
	}

	npcs := map[string]bool{}
	for i, npc := range mf.NPCs {
		if npc.ID == "" {
			errs = append(errs, fmt.Errorf("npc[%d]: id must not be empty", i))
			continue
		}
		if npcs[npc.ID] {
			errs = append(errs, fmt.Errorf("npc %q: duplicate id", npc.ID))
		}
		npcs[npc.ID] = true
	}

	items := map[string]bool{}
	for i, item := range mf.Items {
		if item.ID == "" {
			errs = append(errs, fmt.Errorf("item[%d]: id must not be empty", i))
			continue
		}
		if items[item.ID] {
			errs = append(errs, fmt.Errorf("item %q: duplicate id", item.ID))
		}
		items[item.ID] = true
	}

	quests := map[string]bool{}
	for i, q := range mf.Quests {
		if q.ID == "" {
			errs = append(errs, fmt.Errorf("quest[%d]: id must not be empty", i))
			continue
		}
		if quests[q.ID] {
			errs = append(errs, fmt.Errorf("quest %q: duplicate id", q.ID))
		}
		quests[q.ID] = true
	}

	events := map[string]bool{}
	for i, ev := range mf.Events {
		if ev.ID == "" {
			errs = append(errs, fmt.Errorf("event[%d]: id must not be empty", i))
			continue
		}
		if events[ev.ID] {
			errs = append(errs, fmt.Errorf("event %q: duplicate id", ev.ID))
		}
		events[ev.ID] = true

		if !ev.Trigger.Type.IsValid() {
			errs = append(errs, fmt.Errorf("event %q: trigger type %q is not recognised", ev.ID, ev.Trigger.Type))
		}
		if len(ev.Outcomes) == 0 {
			errs = append(errs, fmt.Errorf("event %q: must have at least one outcome", ev.ID))
		}
		for j, out := range ev.Outcomes {
			if !out.Type.IsValid() {
				errs = append(errs, fmt.Errorf("event %q: outcome[%d]: type %q is not recognised", ev.ID, j, out.Type))
			}
		}
	}

	// Cross-reference checks run after the ID sets are complete.
	for _, loc := range mf.Locations {
		for _, conn := range loc.Connections {
			if !locations[conn.LocationID] {
				errs = append(errs, fmt.Errorf("location %q: connection to unknown location %q", loc.ID, conn.LocationID))
			}
		}
		for _, id := range loc.NPCIDs {
			if !npcs[id] {
				errs = append(errs, fmt.Errorf("location %q: unknown npc %q", loc.ID, id))
			}
		}
		for _, id := range loc.ItemIDs {
			if !items[id] {
				errs = append(errs, fmt.Errorf("location %q: unknown item %q", loc.ID, id))
			}
		}
		for _, id := range loc.EventIDs {
			if !events[id] {
				errs = append(errs, fmt.Errorf("location %q: unknown event %q", loc.ID, id))
			}
		}
	}

	for _, npc := range mf.NPCs {
		if npc.LocationID != "" && !locations[npc.LocationID] {
			errs = append(errs, fmt.Errorf("npc %q: unknown home location %q", npc.ID, npc.LocationID))
		}
	}

	for _, q := range mf.Quests {
		for _, stage := range q.Stages {
			if stage.ID == "" {
				errs = append(errs, fmt.Errorf("quest %q: stage with empty id", q.ID))
			}
			for _, id := range stage.EventIDs {
				if !events[id] {
					errs = append(errs, fmt.Errorf("quest %q: stage %q: unknown event %q", q.ID, stage.ID, id))
				}
			}
		}
	}

	if mf.Module.StartingLocation != "" && !locations[mf.Module.StartingLocation] {
		errs = append(errs, fmt.Errorf("module: unknown starting location %q", mf.Module.StartingLocation))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("campaign: invalid module %q: %w", mf.Module.ID, errors.Join(errs...))
}
