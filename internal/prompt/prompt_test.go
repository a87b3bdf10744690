package prompt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/loremaster-ai/loremaster/internal/prompt"
	"github.com/loremaster-ai/loremaster/pkg/campaign"
	"github.com/loremaster-ai/loremaster/pkg/game"
	"github.com/loremaster-ai/loremaster/pkg/provider/llm"
)

func testCharacter() *game.Character {
	return &game.Character{
		Name:       "Kaelen",
		Race:       "elf",
		Class:      "wizard",
		Level:      3,
		Background: "sage",
		Abilities:  map[string]int{"strength": 8, "intelligence": 16},
		Skills:     []string{"arcana", "investigation"},
		HitPoints:  game.HitPoints{Current: 18, Max: 20},
	}
}

func TestSystemPromptCarriesHardRules(t *testing.T) {
	t.Parallel()

	for _, mode := range []game.Mode{game.ModeIntro, game.ModeExploration, game.ModeCombat, game.ModeSocial, game.ModeResting} {
		got := prompt.SystemPrompt(mode)
		if !strings.Contains(got, "Never simulate, assume, or invent a player dice roll") {
			t.Errorf("mode %s: missing dice-roll rule", mode)
		}
		if !strings.Contains(got, "published adventures") {
			t.Errorf("mode %s: missing published-adventure rule", mode)
		}
	}
}

func TestSystemPromptModeAddenda(t *testing.T) {
	t.Parallel()

	combat := prompt.SystemPrompt(game.ModeCombat)
	social := prompt.SystemPrompt(game.ModeSocial)
	if combat == social {
		t.Error("combat and social prompts should differ")
	}
	if !strings.Contains(combat, "Combat is underway") {
		t.Errorf("combat addendum missing: %q", combat)
	}
}

func TestBuildBlockOrder(t *testing.T) {
	t.Parallel()

	req := prompt.Build(prompt.Input{
		Mode:             game.ModeExploration,
		Character:        testCharacter(),
		NarrativeContext: "## SCENE\nLocation: Village Square",
		History: []game.HistoryEntry{
			{Sender: game.SenderPlayer, Message: "I look around."},
			{Sender: game.SenderDM, Message: "The square bustles with traders."},
		},
		Entities:         []string{"Known fact: Elder Mira leads the village."},
		Documents:        []string{"Recent memory: You arrived at dawn."},
		PlayerInput:      "I approach the well.",
		StructuredOutput: false,
		ContextWindow:    8192,
	})

	sys := req.SystemPrompt
	for _, want := range []string{"## CHARACTER", "## SCENE", "## CONFLICT RULES"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	charIdx := strings.Index(sys, "## CHARACTER")
	sceneIdx := strings.Index(sys, "## SCENE")
	conflictIdx := strings.Index(sys, "## CONFLICT RULES")
	if !(charIdx < sceneIdx && sceneIdx < conflictIdx) {
		t.Errorf("system block order wrong: char=%d scene=%d conflict=%d", charIdx, sceneIdx, conflictIdx)
	}

	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want history pair + final", len(req.Messages))
	}
	if req.Messages[0].Role != llm.RoleUser || req.Messages[1].Role != llm.RoleAssistant {
		t.Errorf("history roles = %s, %s", req.Messages[0].Role, req.Messages[1].Role)
	}

	last := req.Messages[2].Content
	entIdx := strings.Index(last, "## KNOWN ENTITIES")
	docIdx := strings.Index(last, "## RELEVANT MEMORIES")
	inputIdx := strings.Index(last, "## PLAYER INPUT:")
	if entIdx < 0 || docIdx < 0 || inputIdx < 0 {
		t.Fatalf("final message missing blocks: %q", last)
	}
	if !(entIdx < docIdx && docIdx < inputIdx) {
		t.Errorf("final block order wrong: ent=%d doc=%d input=%d", entIdx, docIdx, inputIdx)
	}
	if strings.Contains(last, "## MECHANICS OUTPUT") {
		t.Error("structured instruction present without being requested")
	}
	if !strings.Contains(last, "I approach the well.") {
		t.Error("player input lost")
	}
}

func TestBuildValidationFailureBlock(t *testing.T) {
	t.Parallel()

	req := prompt.Build(prompt.Input{
		Mode:                 game.ModeExploration,
		Character:            testCharacter(),
		PlayerInput:          "I take a long rest.",
		ValidationFailReason: "Area is unsafe; cannot long rest here.",
		ContextWindow:        8192,
	})

	last := req.Messages[len(req.Messages)-1].Content
	failIdx := strings.Index(last, "## ACTION FAILED:\nArea is unsafe; cannot long rest here.")
	inputIdx := strings.Index(last, "## PLAYER INPUT:")
	if failIdx < 0 {
		t.Fatalf("failure block missing: %q", last)
	}
	if failIdx > inputIdx {
		t.Error("failure block must precede the player input")
	}
}

func TestBuildStructuredInstruction(t *testing.T) {
	t.Parallel()

	req := prompt.Build(prompt.Input{
		Mode:             game.ModeCombat,
		Character:        testCharacter(),
		PlayerInput:      "I stab the goblin.",
		StructuredOutput: true,
		ContextWindow:    8192,
	})
	last := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(last, "[MECHANICS]") {
		t.Error("structured instruction missing")
	}
}

func TestBuildTrimsDocumentsBeforeHistory(t *testing.T) {
	t.Parallel()

	longDoc := strings.Repeat("The caravan passed through the gorge. ", 200)
	history := []game.HistoryEntry{
		{Sender: game.SenderPlayer, Message: "An early exchange that should be dropped last."},
		{Sender: game.SenderDM, Message: "A reply to the early exchange."},
	}

	// Window leaves ~100 tokens for the memory side after reserves.
	req := prompt.Build(prompt.Input{
		Mode:          game.ModeExploration,
		Character:     testCharacter(),
		History:       history,
		Documents:     []string{longDoc},
		PlayerInput:   "Onward.",
		ContextWindow: 3100,
	})

	// History survives; the oversized document is trimmed to fit.
	var historyMessages int
	for _, m := range req.Messages[:len(req.Messages)-1] {
		if m.Content != "" {
			historyMessages++
		}
	}
	if historyMessages != 2 {
		t.Errorf("history messages = %d, want 2", historyMessages)
	}
	last := req.Messages[len(req.Messages)-1].Content
	if strings.Contains(last, longDoc) {
		t.Error("oversized document was not trimmed")
	}
}

func TestBuildDropsOldestHistoryWhenStillOver(t *testing.T) {
	t.Parallel()

	var history []game.HistoryEntry
	for i := 0; i < 40; i++ {
		history = append(history, game.HistoryEntry{
			Sender:  game.SenderPlayer,
			Message: strings.Repeat("words and more words in this turn. ", 10),
		})
	}

	req := prompt.Build(prompt.Input{
		Mode:          game.ModeExploration,
		Character:     testCharacter(),
		History:       history,
		PlayerInput:   "Onward.",
		ContextWindow: 3500,
	})

	kept := len(req.Messages) - 1
	if kept >= len(history) {
		t.Fatalf("kept all %d history turns, expected the oldest dropped", kept)
	}
	if kept == 0 {
		t.Fatal("all history dropped; the newest turns should fit")
	}
	// The newest entry survives.
	if req.Messages[kept-1].Content != history[len(history)-1].Message {
		t.Error("newest history turn missing")
	}
}

func TestWantsStructuredOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		intentName string
		mode       game.Mode
		want       bool
	}{
		{"cast_spell", game.ModeExploration, true},
		{"rest", game.ModeResting, true},
		{"explore", game.ModeExploration, false},
		{"explore", game.ModeCombat, true},
		{"general", game.ModeSocial, false},
	}
	for _, tt := range tests {
		if got := prompt.WantsStructuredOutput(tt.intentName, tt.mode); got != tt.want {
			t.Errorf("WantsStructuredOutput(%s, %s) = %v, want %v", tt.intentName, tt.mode, got, tt.want)
		}
	}
}

func TestFormatCharacterModifierSigns(t *testing.T) {
	t.Parallel()

	got := prompt.FormatCharacter(testCharacter())
	if !strings.Contains(got, "STR 8 (-1)") {
		t.Errorf("negative modifier missing: %q", got)
	}
	if !strings.Contains(got, "INT 16 (+3)") {
		t.Errorf("positive modifier missing: %q", got)
	}
	if !strings.Contains(got, "Kaelen, level 3 elf wizard (sage)") {
		t.Errorf("identity line missing: %q", got)
	}
}

func TestFormatNarrativeContext(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	session := game.NewSession("s", "u", "c", "", "", now)
	session.CurrentLocationID = "tomb_entrance"
	session.Tracked.QuestStatus["tomb_quest"] = "stage_2"
	session.Tracked.Environment.AreaFlags = map[string][]string{
		"tomb_entrance": {"hostile", "dark"},
	}

	loc := &campaign.Location{ID: "tomb_entrance", Name: "Tomb Entrance", Description: "A cracked stone arch."}
	got := prompt.FormatNarrativeContext(session, loc, map[string]string{"tomb_quest": "The Lost Tomb"})

	for _, want := range []string{
		"Location: Tomb Entrance - A cracked stone arch.",
		"(Afternoon)",
		"Conditions: hostile, dark",
		"The Lost Tomb [stage_2]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestMemoryBudget(t *testing.T) {
	t.Parallel()

	if got := prompt.MemoryBudget(8192); got != 8192-3000 {
		t.Errorf("MemoryBudget(8192) = %d, want %d", got, 8192-3000)
	}
	if got := prompt.MemoryBudget(1000); got != 0 {
		t.Errorf("MemoryBudget(1000) = %d, want 0", got)
	}
}
