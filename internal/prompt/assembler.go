package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loremaster-ai/loremaster/pkg/campaign"
	"github.com/loremaster-ai/loremaster/pkg/game"
	"github.com/loremaster-ai/loremaster/pkg/provider/llm"
)

// Input carries everything the assembler folds into one generator request.
// Entities and Documents are preformatted memory lines from retrieval.
type Input struct {
	Mode             game.Mode
	Character        *game.Character
	NarrativeContext string
	History          []game.HistoryEntry
	Entities         []string
	Documents        []string
	PlayerInput      string

	// ValidationFailReason, when set, is surfaced to the model so the DM
	// narrates the refusal instead of the action.
	ValidationFailReason string

	// StructuredOutput requests [MECHANICS] blocks in the response.
	StructuredOutput bool

	// ContextWindow is the model's total token window.
	ContextWindow int
}

// Build assembles the completion request. Block order is fixed: system,
// character, narrative, conflict rules, history, entities, documents,
// mechanics instruction, failure notice, player input. When the memory
// side overflows its budget, documents are trimmed first, then entities,
// then the oldest history turns. The system prompt and character block are
// never dropped.
func Build(in Input) llm.CompletionRequest {
	system := strings.Join([]string{
		SystemPrompt(in.Mode),
		trimToBudget(FormatCharacter(in.Character), CharacterBudget),
		trimToBudget(in.NarrativeContext, NarrativeBudget),
		conflictRules,
	}, "\n\n")

	playerInput := trimToBudget(in.PlayerInput, InputBudget)

	history := in.History
	entBlock := joinBlock("## KNOWN ENTITIES", in.Entities)
	docBlock := joinBlock("## RELEVANT MEMORIES", in.Documents)

	budget := MemoryBudget(in.ContextWindow)
	historyTokens := historyTokenCount(history)

	if historyTokens+EstimateTokens(entBlock)+EstimateTokens(docBlock) > budget {
		docBlock = trimToBudget(docBlock, nonNegative(budget-historyTokens-EstimateTokens(entBlock)))
	}
	if historyTokens+EstimateTokens(entBlock)+EstimateTokens(docBlock) > budget {
		entBlock = trimToBudget(entBlock, nonNegative(budget-historyTokens-EstimateTokens(docBlock)))
	}
	for len(history) > 0 &&
		historyTokenCount(history)+EstimateTokens(entBlock)+EstimateTokens(docBlock) > budget {
		history = history[1:]
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, entry := range history {
		role := llm.RoleUser
		if entry.Sender == game.SenderDM {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: entry.Message})
	}

	var final []string
	if entBlock != "" {
		final = append(final, entBlock)
	}
	if docBlock != "" {
		final = append(final, docBlock)
	}
	if in.StructuredOutput {
		final = append(final, structuredInstruction)
	}
	if in.ValidationFailReason != "" {
		final = append(final, "## ACTION FAILED:\n"+in.ValidationFailReason)
	}
	final = append(final, "## PLAYER INPUT:\n"+playerInput)

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: strings.Join(final, "\n\n")})

	return llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     messages,
		MaxTokens:    ReplyReserve,
	}
}

// WantsStructuredOutput reports whether the turn should request
// [MECHANICS] blocks: mechanically loaded intents, or any combat turn.
func WantsStructuredOutput(intentName string, mode game.Mode) bool {
	if mode == game.ModeCombat {
		return true
	}
	switch intentName {
	case "cast_spell", "weapon_attack", "use_feature", "use_item", "rest":
		return true
	}
	return false
}

// FormatCharacter renders the character info block: identity line, ability
// scores with modifier signs, proficient skills, description.
func FormatCharacter(ch *game.Character) string {
	if ch == nil {
		return "## CHARACTER\nUnknown adventurer."
	}

	var sb strings.Builder
	sb.WriteString("## CHARACTER\n")
	fmt.Fprintf(&sb, "%s, level %d %s %s", ch.Name, ch.Level, ch.Race, ch.Class)
	if ch.Background != "" {
		fmt.Fprintf(&sb, " (%s)", ch.Background)
	}
	fmt.Fprintf(&sb, "\nHP: %d/%d", ch.HitPoints.Current, ch.HitPoints.Max)
	if len(ch.Conditions) > 0 {
		fmt.Fprintf(&sb, "\nConditions: %s", strings.Join(ch.Conditions, ", "))
	}

	if len(ch.Abilities) > 0 {
		names := make([]string, 0, len(ch.Abilities))
		for name := range ch.Abilities {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			abbrev := name
			if len(abbrev) > 3 {
				abbrev = abbrev[:3]
			}
			score := ch.Abilities[name]
			parts = append(parts, fmt.Sprintf("%s %d (%+d)", strings.ToUpper(abbrev), score, game.AbilityModifier(score)))
		}
		sb.WriteString("\nAbilities: " + strings.Join(parts, ", "))
	}
	if len(ch.Skills) > 0 {
		sb.WriteString("\nProficient skills: " + strings.Join(ch.Skills, ", "))
	}
	if ch.Description != "" {
		sb.WriteString("\n" + ch.Description)
	}
	return sb.String()
}

// FormatNarrativeContext renders the narrative block: where and when the
// scene is, the environmental conditions, and the active quests.
func FormatNarrativeContext(session *game.Session, loc *campaign.Location, questNames map[string]string) string {
	var sb strings.Builder
	sb.WriteString("## SCENE\n")

	if loc != nil {
		fmt.Fprintf(&sb, "Location: %s", loc.Name)
		if loc.Description != "" {
			fmt.Fprintf(&sb, " - %s", loc.Description)
		}
		sb.WriteString("\n")
	}

	env := session.Tracked.Environment
	fmt.Fprintf(&sb, "Time: %s (%s)", env.CurrentDateTime.Format(time.Kitchen), env.CurrentDayPhase)

	if flags := activeAreaFlags(session, loc); len(flags) > 0 {
		fmt.Fprintf(&sb, "\nConditions: %s", strings.Join(flags, ", "))
	}

	if len(session.Tracked.QuestStatus) > 0 {
		ids := make([]string, 0, len(session.Tracked.QuestStatus))
		for id := range session.Tracked.QuestStatus {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var quests []string
		for _, id := range ids {
			name := questNames[id]
			if name == "" {
				name = id
			}
			quests = append(quests, fmt.Sprintf("%s [%s]", name, session.Tracked.QuestStatus[id]))
		}
		sb.WriteString("\nActive quests: " + strings.Join(quests, ", "))
	}

	return sb.String()
}

// activeAreaFlags returns the environment flags applying to the current
// location, via its region and its own ID.
func activeAreaFlags(session *game.Session, loc *campaign.Location) []string {
	env := session.Tracked.Environment
	seen := make(map[string]bool)
	var flags []string

	keys := []string{session.CurrentLocationID}
	if loc != nil && loc.Region != "" {
		keys = append(keys, loc.Region)
	}
	for _, key := range keys {
		for _, f := range env.AreaFlags[key] {
			if !seen[f] {
				seen[f] = true
				flags = append(flags, f)
			}
		}
	}
	return flags
}

func joinBlock(header string, lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return header + "\n" + strings.Join(lines, "\n")
}

func historyTokenCount(history []game.HistoryEntry) int {
	total := 0
	for _, entry := range history {
		total += EstimateTokens(entry.Message) + 4
	}
	return total
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
