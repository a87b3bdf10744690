package campaign

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookup methods when no record with the given ID
// exists in the loaded module.
var ErrNotFound = errors.New("campaign: not found")

// Store is the read-only lookup surface the pipeline consumes. All
// implementations must be safe for concurrent use.
type Store interface {
	// Location returns the location with the given ID.
	// Returns [ErrNotFound] when it does not exist.
	Location(ctx context.Context, id string) (Location, error)

	// NPC returns the NPC with the given ID.
	NPC(ctx context.Context, id string) (NPC, error)

	// Item returns the item with the given ID.
	Item(ctx context.Context, id string) (Item, error)

	// Quest returns the quest with the given ID.
	Quest(ctx context.Context, id string) (Quest, error)

	// Event returns the event with the given ID.
	Event(ctx context.Context, id string) (Event, error)

	// EventsForLocation returns the events attached to a location, in
	// module order. Unknown location IDs yield an empty slice, not an
	// error, so trigger evaluation stays total.
	EventsForLocation(ctx context.Context, locationID string) ([]Event, error)

	// EventsForQuestStage returns the events attached to one stage of a
	// quest. Unknown quest or stage IDs yield an empty slice.
	EventsForQuestStage(ctx context.Context, questID, stageID string) ([]Event, error)

	// GlobalEvents returns the events evaluated on every turn.
	GlobalEvents(ctx context.Context) ([]Event, error)

	// NPCsAtLocation returns the NPCs whose home is the given location.
	NPCsAtLocation(ctx context.Context, locationID string) ([]NPC, error)
}

// Compile-time assertion that Campaign satisfies the Store interface.
var _ Store = (*Campaign)(nil)

// Campaign is an immutable, index-backed implementation of [Store] built
// from a parsed [ModuleFile]. Because it never mutates after construction it
// needs no locking.
type Campaign struct {
	meta ModuleMeta

	locations map[string]Location
	npcs      map[string]NPC
	items     map[string]Item
	quests    map[string]Quest
	events    map[string]Event

	globalEvents []Event
	npcsByLoc    map[string][]NPC
}

// NewCampaign validates and indexes a parsed module file.
func NewCampaign(mf *ModuleFile) (*Campaign, error) {
	if mf == nil {
		return nil, errors.New("campaign: module file must not be nil")
	}
	if err := ValidateModule(mf); err != nil {
		return nil, err
	}

	c := &Campaign{
		meta:      mf.Module,
		locations: make(map[string]Location, len(mf.Locations)),
		npcs:      make(map[string]NPC, len(mf.NPCs)),
		items:     make(map[string]Item, len(mf.Items)),
		quests:    make(map[string]Quest, len(mf.Quests)),
		events:    make(map[string]Event, len(mf.Events)),
		npcsByLoc: make(map[string][]NPC),
	}

	for _, loc := range mf.Locations {
		c.locations[loc.ID] = loc
	}
	for _, npc := range mf.NPCs {
		c.npcs[npc.ID] = npc
		if npc.LocationID != "" {
			c.npcsByLoc[npc.LocationID] = append(c.npcsByLoc[npc.LocationID], npc)
		}
	}
	for _, item := range mf.Items {
		c.items[item.ID] = item
	}
	for _, q := range mf.Quests {
		c.quests[q.ID] = q
	}
	for _, ev := range mf.Events {
		c.events[ev.ID] = ev
		if ev.Global {
			c.globalEvents = append(c.globalEvents, ev)
		}
	}

	return c, nil
}

// Meta returns the module's metadata.
func (c *Campaign) Meta() ModuleMeta { return c.meta }

// Location implements [Store.Location].
func (c *Campaign) Location(_ context.Context, id string) (Location, error) {
	loc, ok := c.locations[id]
	if !ok {
		return Location{}, ErrNotFound
	}
	return loc, nil
}

// NPC implements [Store.NPC].
func (c *Campaign) NPC(_ context.Context, id string) (NPC, error) {
	npc, ok := c.npcs[id]
	if !ok {
		return NPC{}, ErrNotFound
	}
	return npc, nil
}

// Item implements [Store.Item].
func (c *Campaign) Item(_ context.Context, id string) (Item, error) {
	item, ok := c.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

// Quest implements [Store.Quest].
func (c *Campaign) Quest(_ context.Context, id string) (Quest, error) {
	q, ok := c.quests[id]
	if !ok {
		return Quest{}, ErrNotFound
	}
	return q, nil
}

// Event implements [Store.Event].
func (c *Campaign) Event(_ context.Context, id string) (Event, error) {
	ev, ok := c.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return ev, nil
}

// EventsForLocation implements [Store.EventsForLocation].
func (c *Campaign) EventsForLocation(_ context.Context, locationID string) ([]Event, error) {
	loc, ok := c.locations[locationID]
	if !ok {
		return []Event{}, nil
	}
	return c.resolveEvents(loc.EventIDs), nil
}

// EventsForQuestStage implements [Store.EventsForQuestStage].
func (c *Campaign) EventsForQuestStage(_ context.Context, questID, stageID string) ([]Event, error) {
	q, ok := c.quests[questID]
	if !ok {
		return []Event{}, nil
	}
	for _, stage := range q.Stages {
		if stage.ID == stageID {
			return c.resolveEvents(stage.EventIDs), nil
		}
	}
	return []Event{}, nil
}

// GlobalEvents implements [Store.GlobalEvents].
func (c *Campaign) GlobalEvents(_ context.Context) ([]Event, error) {
	out := make([]Event, len(c.globalEvents))
	copy(out, c.globalEvents)
	return out, nil
}

// NPCsAtLocation implements [Store.NPCsAtLocation].
func (c *Campaign) NPCsAtLocation(_ context.Context, locationID string) ([]NPC, error) {
	npcs := c.npcsByLoc[locationID]
	out := make([]NPC, len(npcs))
	copy(out, npcs)
	return out, nil
}

// resolveEvents maps event IDs to their definitions, silently skipping
// dangling references. ValidateModule reports those at load time.
func (c *Campaign) resolveEvents(ids []string) []Event {
	out := make([]Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := c.events[id]; ok {
			out = append(out, ev)
		}
	}
	return out
}
