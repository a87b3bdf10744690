package recall_test

import (
	"testing"

	"github.com/loremaster-ai/loremaster/internal/recall"
)

func findEntity(entities []recall.Entity, name, typ string) *recall.Entity {
	for i := range entities {
		if entities[i].Name == name && entities[i].Type == typ {
			return &entities[i]
		}
	}
	return nil
}

func TestExtractEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		wantName string
		wantType string
	}{
		{
			name:     "npc from is-description",
			text:     "Elder Mira is the leader of the village.",
			wantName: "Elder Mira",
			wantType: recall.EntityNPC,
		},
		{
			name:     "location from is-description",
			text:     "Thornbury is a small village nestled in the hills.",
			wantName: "Thornbury",
			wantType: recall.EntityLocation,
		},
		{
			name:     "npc from meet",
			text:     "You meet Garrick, a grizzled blacksmith.",
			wantName: "Garrick",
			wantType: recall.EntityNPC,
		},
		{
			name:     "npc from dialogue",
			text:     "Mira tells you that the tomb is cursed.",
			wantName: "Mira",
			wantType: recall.EntityNPC,
		},
		{
			name:     "location from arrival",
			text:     "You arrive at the Sunken Tomb as dusk falls.",
			wantName: "Sunken Tomb",
			wantType: recall.EntityLocation,
		},
		{
			name:     "quest from mission clause",
			text:     "Garrick offers you a mission to clear the old mine.",
			wantName: "clear the old mine",
			wantType: recall.EntityQuest,
		},
		{
			name:     "quest from request",
			text:     "She asks you to recover the stolen amulet.",
			wantName: "recover the stolen amulet",
			wantType: recall.EntityQuest,
		},
		{
			name:     "item trimmed at preposition",
			text:     "You find a rusted key beneath the altar.",
			wantName: "rusted key",
			wantType: recall.EntityItem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			entities := recall.ExtractEntities(tt.text)
			if findEntity(entities, tt.wantName, tt.wantType) == nil {
				t.Errorf("ExtractEntities(%q) = %+v, want %s %q", tt.text, entities, tt.wantType, tt.wantName)
			}
		})
	}
}

func TestExtractEntitiesFiltersPronouns(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"She is a tall woman with silver hair.",
		"They tell you that the road is washed out.",
	} {
		for _, ent := range recall.ExtractEntities(text) {
			if ent.Type == recall.EntityNPC {
				t.Errorf("ExtractEntities(%q) produced npc %q from a pronoun", text, ent.Name)
			}
		}
	}
}

func TestExtractEntitiesDeduplicates(t *testing.T) {
	t.Parallel()

	entities := recall.ExtractEntities("Mira is a healer. Mira is a swindler.")
	count := 0
	for _, ent := range entities {
		if ent.Name == "Mira" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Mira extracted %d times, want 1: %+v", count, entities)
	}
}
