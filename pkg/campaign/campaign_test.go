package campaign_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loremaster-ai/loremaster/pkg/campaign"
)

const validModuleYAML = `
module:
  id: "lost_tomb"
  name: "The Lost Tomb of Karavek"
  world_id: "ardenvale"
  starting_location: "village_square"
locations:
  - id: village_square
    name: "Village Square"
    description: "A muddy square ringed by timber houses."
    npc_ids: [elder_mira]
    connections:
      - location_id: tomb_entrance
        distance_miles: 6
  - id: tomb_entrance
    name: "Tomb Entrance"
    description: "A cracked stone door half-buried in the hillside."
    area_flags: [dark]
    event_ids: [open_tomb]
    connections:
      - location_id: village_square
        distance_miles: 6
npcs:
  - id: elder_mira
    name: "Elder Mira"
    description: "The village elder, worn but sharp-eyed."
    disposition: friendly
    location_id: village_square
    dialogue_keywords: [tomb, karavek]
items:
  - id: rusty_key
    name: "Rusty Key"
    description: "An iron key pitted with age."
quests:
  - id: tomb_quest
    name: "Open the Tomb"
    description: "Find a way into the tomb of Karavek."
    stages:
      - id: stage_1
        description: "Learn about the tomb from Elder Mira."
      - id: stage_2
        description: "Reach the tomb entrance."
        event_ids: [open_tomb]
events:
  - id: open_tomb
    first_time: true
    trigger:
      type: enter_location
      location_id: tomb_entrance
    outcomes:
      - type: update_quest
        quest_id: tomb_quest
        stage_id: stage_3
      - type: set_global_flag
        flag: tomb_opened
`

func mustLoadCampaign(t *testing.T) *campaign.Campaign {
	t.Helper()
	mf, err := campaign.LoadModuleFromReader(strings.NewReader(validModuleYAML))
	if err != nil {
		t.Fatalf("LoadModuleFromReader: %v", err)
	}
	c, err := campaign.NewCampaign(mf)
	if err != nil {
		t.Fatalf("NewCampaign: %v", err)
	}
	return c
}

func TestLoadModuleFromReader(t *testing.T) {
	t.Parallel()

	mf, err := campaign.LoadModuleFromReader(strings.NewReader(validModuleYAML))
	if err != nil {
		t.Fatalf("LoadModuleFromReader: unexpected error: %v", err)
	}
	if mf.Module.ID != "lost_tomb" {
		t.Errorf("module id: expected %q, got %q", "lost_tomb", mf.Module.ID)
	}
	if len(mf.Locations) != 2 || len(mf.NPCs) != 1 || len(mf.Events) != 1 {
		t.Errorf("unexpected counts: locations=%d npcs=%d events=%d",
			len(mf.Locations), len(mf.NPCs), len(mf.Events))
	}
}

func TestLoadModuleFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "completely invalid YAML",
			input: ":::not valid yaml:::",
		},
		{
			name:  "unknown top-level key",
			input: "module:\n  id: x\nunknown_key: true\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := campaign.LoadModuleFromReader(strings.NewReader(tc.input))
			if err == nil {
				t.Fatal("LoadModuleFromReader: expected error for invalid input, got nil")
			}
		})
	}
}

func TestValidateModule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(mf *campaign.ModuleFile)
		wantErr string
	}{
		{
			name:    "valid module passes",
			mutate:  func(mf *campaign.ModuleFile) {},
			wantErr: "",
		},
		{
			name: "empty module id",
			mutate: func(mf *campaign.ModuleFile) {
				mf.Module.ID = ""
			},
			wantErr: "module id must not be empty",
		},
		{
			name: "duplicate location id",
			mutate: func(mf *campaign.ModuleFile) {
				mf.Locations = append(mf.Locations, mf.Locations[0])
			},
			wantErr: "duplicate id",
		},
		{
			name: "connection to unknown location",
			mutate: func(mf *campaign.ModuleFile) {
				mf.Locations[0].Connections = append(mf.Locations[0].Connections,
					campaign.Connection{LocationID: "nowhere", DistanceMiles: 1})
			},
			wantErr: `unknown location "nowhere"`,
		},
		{
			name: "unrecognised trigger type",
			mutate: func(mf *campaign.ModuleFile) {
				mf.Events[0].Trigger.Type = "wish_upon_a_star"
			},
			wantErr: "trigger type",
		},
		{
			name: "event without outcomes",
			mutate: func(mf *campaign.ModuleFile) {
				mf.Events[0].Outcomes = nil
			},
			wantErr: "at least one outcome",
		},
		{
			name: "unknown starting location",
			mutate: func(mf *campaign.ModuleFile) {
				mf.Module.StartingLocation = "the_moon"
			},
			wantErr: "unknown starting location",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mf, err := campaign.LoadModuleFromReader(strings.NewReader(validModuleYAML))
			if err != nil {
				t.Fatalf("LoadModuleFromReader: %v", err)
			}
			tc.mutate(mf)

			err = campaign.ValidateModule(mf)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateModule: unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateModule: expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("ValidateModule: error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestCampaignLookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := mustLoadCampaign(t)

	loc, err := c.Location(ctx, "tomb_entrance")
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.Name != "Tomb Entrance" {
		t.Errorf("location name: expected %q, got %q", "Tomb Entrance", loc.Name)
	}

	if _, err := c.Location(ctx, "missing"); !errors.Is(err, campaign.ErrNotFound) {
		t.Errorf("Location(missing): expected ErrNotFound, got %v", err)
	}

	npc, err := c.NPC(ctx, "elder_mira")
	if err != nil {
		t.Fatalf("NPC: %v", err)
	}
	if npc.Disposition != "friendly" {
		t.Errorf("npc disposition: expected friendly, got %q", npc.Disposition)
	}

	if _, err := c.Item(ctx, "rusty_key"); err != nil {
		t.Errorf("Item: %v", err)
	}
	if _, err := c.Quest(ctx, "tomb_quest"); err != nil {
		t.Errorf("Quest: %v", err)
	}
	if _, err := c.Event(ctx, "open_tomb"); err != nil {
		t.Errorf("Event: %v", err)
	}
}

func TestCampaignEventResolution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := mustLoadCampaign(t)

	evs, err := c.EventsForLocation(ctx, "tomb_entrance")
	if err != nil {
		t.Fatalf("EventsForLocation: %v", err)
	}
	if len(evs) != 1 || evs[0].ID != "open_tomb" {
		t.Fatalf("EventsForLocation: expected [open_tomb], got %+v", evs)
	}

	evs, err = c.EventsForLocation(ctx, "missing")
	if err != nil {
		t.Fatalf("EventsForLocation(missing): %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("EventsForLocation(missing): expected empty, got %d", len(evs))
	}

	evs, err = c.EventsForQuestStage(ctx, "tomb_quest", "stage_2")
	if err != nil {
		t.Fatalf("EventsForQuestStage: %v", err)
	}
	if len(evs) != 1 || evs[0].ID != "open_tomb" {
		t.Fatalf("EventsForQuestStage: expected [open_tomb], got %+v", evs)
	}

	evs, err = c.EventsForQuestStage(ctx, "tomb_quest", "stage_1")
	if err != nil {
		t.Fatalf("EventsForQuestStage(stage_1): %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("EventsForQuestStage(stage_1): expected empty, got %d", len(evs))
	}

	npcs, err := c.NPCsAtLocation(ctx, "village_square")
	if err != nil {
		t.Fatalf("NPCsAtLocation: %v", err)
	}
	if len(npcs) != 1 || npcs[0].ID != "elder_mira" {
		t.Fatalf("NPCsAtLocation: expected [elder_mira], got %+v", npcs)
	}
}

func TestTimeRangeContains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    campaign.TimeRange
		hour int
		want bool
	}{
		{"inside plain range", campaign.TimeRange{StartHour: 9, EndHour: 17}, 12, true},
		{"start inclusive", campaign.TimeRange{StartHour: 9, EndHour: 17}, 9, true},
		{"end exclusive", campaign.TimeRange{StartHour: 9, EndHour: 17}, 17, false},
		{"wrapping range late night", campaign.TimeRange{StartHour: 22, EndHour: 4}, 23, true},
		{"wrapping range early morning", campaign.TimeRange{StartHour: 22, EndHour: 4}, 2, true},
		{"wrapping range daytime", campaign.TimeRange{StartHour: 22, EndHour: 4}, 12, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.r.Contains(tc.hour); got != tc.want {
				t.Errorf("Contains(%d): expected %v, got %v", tc.hour, tc.want, got)
			}
		})
	}
}

func TestLibraryLoadAndCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "ardenvale"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ardenvale", "lost_tomb.yaml"), []byte(validModuleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	lib := campaign.NewLibrary(dir)

	c1, err := lib.Load("lost_tomb", "ardenvale")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c2, err := lib.Load("lost_tomb", "ardenvale")
	if err != nil {
		t.Fatalf("Load (cached): %v", err)
	}
	if c1 != c2 {
		t.Error("Load: expected cached campaign pointer on second load")
	}

	if _, err := lib.Load("missing_module", "ardenvale"); err == nil {
		t.Error("Load(missing): expected error, got nil")
	}
}

func TestLibraryWorldFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lost_tomb.yaml"), []byte(validModuleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	lib := campaign.NewLibrary(dir)

	// World-agnostic module resolves even when a world ID is supplied.
	c, err := lib.Load("lost_tomb", "some_other_world")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Meta().ID != "lost_tomb" {
		t.Errorf("module id: expected lost_tomb, got %q", c.Meta().ID)
	}
}
