// Package pipeline is the turn engine: it takes one player message and
// drives it through classification, memory retrieval, validation, world
// mutation, generation and mechanics, then commits the whole turn as a
// single checkpoint. Turns for the same session are serialized; turns for
// different sessions run concurrently.
//
// Node failures never surface raw to the player: a failing node degrades
// the turn to a DM apology, a failing generator to a fixed fallback line.
// Only checkpoint failures and context cancellation abort the turn.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loremaster-ai/loremaster/internal/intent"
	"github.com/loremaster-ai/loremaster/internal/mechanics"
	"github.com/loremaster-ai/loremaster/internal/narrative"
	"github.com/loremaster-ai/loremaster/internal/observe"
	"github.com/loremaster-ai/loremaster/internal/prompt"
	"github.com/loremaster-ai/loremaster/internal/recall"
	"github.com/loremaster-ai/loremaster/internal/rules"
	"github.com/loremaster-ai/loremaster/pkg/campaign"
	"github.com/loremaster-ai/loremaster/pkg/game"
	"github.com/loremaster-ai/loremaster/pkg/memory"
	"github.com/loremaster-ai/loremaster/pkg/provider/llm"

	"github.com/google/uuid"
)

// generatorTimeout bounds one completion call. The turn degrades to the
// generator fallback when it elapses.
const generatorTimeout = 30 * time.Second

// recentHistoryTurns caps how much transcript feeds the prompt before
// token trimming.
const recentHistoryTurns = 20

// defaultContextWindow is assumed when the generator reports no window.
const defaultContextWindow = 8192

// Config wires an [Engine]. Campaigns, Summarizer and Metrics may be nil.
type Config struct {
	Sessions   memory.SessionStore
	Characters memory.CharacterStore
	Campaigns  campaign.Store
	Generator  llm.Provider
	Recall     *recall.Service
	Summarizer *recall.Summarizer
	Metrics    *observe.Metrics
}

// Engine processes turns. Construct with [New]; safe for concurrent use.
type Engine struct {
	sessions   memory.SessionStore
	characters memory.CharacterStore
	campaigns  campaign.Store
	generator  llm.Provider
	recall     *recall.Service
	summarizer *recall.Summarizer
	metrics    *observe.Metrics

	classifier *intent.Classifier
	validator  *rules.Validator
	narrative  *narrative.Service

	logger *slog.Logger
	now    func() time.Time

	locks sync.Map // session ID -> *sync.Mutex

	summaryMu sync.Mutex
	summaries map[string]string
}

// New builds an engine from cfg.
func New(cfg Config) *Engine {
	return &Engine{
		sessions:   cfg.Sessions,
		characters: cfg.Characters,
		campaigns:  cfg.Campaigns,
		generator:  cfg.Generator,
		recall:     cfg.Recall,
		summarizer: cfg.Summarizer,
		metrics:    cfg.Metrics,
		classifier: intent.NewClassifier(),
		validator:  rules.New(cfg.Characters, cfg.Campaigns),
		narrative:  narrative.NewService(cfg.Campaigns),
		logger:     slog.Default().With("component", "pipeline"),
		now:        time.Now,
		summaries:  make(map[string]string),
	}
}

// Request is one player turn.
type Request struct {
	SessionID string
	UserID    string
	Message   string
}

// TurnResult is what the transport returns to the player.
type TurnResult struct {
	SessionID        string                `json:"session_id"`
	Response         string                `json:"response"`
	Intent           intent.Intent         `json:"intent"`
	Slots            map[string]string     `json:"slots,omitempty"`
	ValidationOK     bool                  `json:"validation_ok"`
	ValidationReason string                `json:"validation_reason,omitempty"`
	GameMode         game.Mode             `json:"game_mode"`
	CurrentLocation  string                `json:"current_location,omitempty"`
	TimeAdvanced     time.Duration         `json:"time_advanced"`
	FiredEvents      []narrative.FiredEvent `json:"fired_events,omitempty"`
	EffectsApplied   int                   `json:"effects_applied"`
	// Character is the post-mechanics snapshot, when a character is bound.
	Character *game.Character `json:"character,omitempty"`
	// PendingActions lists rolls the DM is waiting on, e.g.
	// "combat_roll:attack" or "ability_check:perception".
	PendingActions []string `json:"pending_actions,omitempty"`
	Degraded       bool     `json:"degraded"`
}

// pendingActions renders the rolls a character owes the DM.
func pendingActions(ch *game.Character) []string {
	if ch == nil {
		return nil
	}
	var actions []string
	if ch.PendingCombatRoll != "" {
		actions = append(actions, "combat_roll:"+ch.PendingCombatRoll)
	}
	if ch.PendingAbilityCheck != "" {
		actions = append(actions, "ability_check:"+ch.PendingAbilityCheck)
	}
	return actions
}

// turnOutcome carries the intermediate state of one turn between nodes.
type turnOutcome struct {
	intent     intent.Result
	validation rules.Result
	character  *game.Character
	bundle     recall.Retrieved
	delta      narrative.Delta
	raw        string
	response   string
	// dmForMemory is the text fed to memory persistence; empty when the
	// turn degraded, so fallback prose never becomes a memory.
	dmForMemory    string
	effectsApplied int
	degraded       bool
	status         string
}

// CreateSession starts a new session in intro mode and persists its first
// checkpoint.
func (e *Engine) CreateSession(ctx context.Context, userID, characterID, worldID, moduleID string) (*game.Session, error) {
	session := game.NewSession(uuid.NewString(), userID, characterID, worldID, moduleID, e.now())
	cp := &memory.Checkpoint{Session: *session}
	if err := e.sessions.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("pipeline: create session: %w", err)
	}
	return session, nil
}

// ProcessMessage runs one full turn. The checkpoint write is the commit
// point: on any error return, no caller-visible state has changed.
func (e *Engine) ProcessMessage(ctx context.Context, req Request) (*TurnResult, error) {
	message := strings.TrimSpace(req.Message)

	unlock := e.lockSession(req.SessionID)
	defer unlock()

	start := time.Now()
	if e.metrics != nil {
		e.metrics.ActiveTurns.Add(ctx, 1)
		defer e.metrics.ActiveTurns.Add(ctx, -1)
	}
	ctx, span := observe.StartSpan(ctx, "pipeline.turn")
	defer span.End()

	cp, err := e.sessions.Load(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load session: %w", err)
	}
	if cp == nil {
		return nil, ErrSessionNotFound
	}
	session := &cp.Session
	if summary, ok := e.takeSummary(req.SessionID); ok {
		session.Summary = summary
	}

	var out *turnOutcome
	if message == "" {
		// A blank message is a general exchange with a fixed apology: no
		// classification, no mechanics, no time advance.
		out = &turnOutcome{
			intent:     intent.Result{Intent: intent.IntentGeneral, Slots: map[string]string{}, OK: true},
			validation: rules.Result{OK: true},
			response:   emptyInputResponse,
			status:     "empty",
		}
	} else {
		out, err = e.runTurn(ctx, session, message)
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.now()
	session.AppendHistory(game.SenderPlayer, message, now)
	session.AppendHistory(game.SenderDM, out.response, now)
	session.UpdatedAt = now

	// Character changes commit before memory persistence; a failed commit
	// aborts the turn so the checkpoint never references lost state.
	if out.character != nil && out.effectsApplied > 0 {
		if err := e.characters.Save(ctx, out.character); err != nil {
			return nil, fmt.Errorf("pipeline: save character: %w", err)
		}
	}

	_ = e.node(ctx, "persist", func() error {
		if err := e.recall.PersistTurn(ctx, session, message, out.dmForMemory); err != nil {
			e.logger.Warn("memory persistence failed", "session_id", session.SessionID, "error", err)
		}
		return nil
	})

	cp.LastTurn = memory.TurnRecord{
		Intent:           string(out.intent.Intent),
		Slots:            out.intent.Slots,
		ValidationOK:     out.validation.OK,
		ValidationReason: out.validation.Reason,
		DMResponse:       out.response,
	}
	if err := e.sessions.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("pipeline: checkpoint: %w", err)
	}

	if e.summarizer != nil {
		sessionID := session.SessionID
		e.summarizer.MaybeRun(ctx, sessionID, func(summary string) {
			e.setSummary(sessionID, summary)
		})
	}

	if e.metrics != nil {
		e.metrics.RecordTurn(ctx, string(out.intent.Intent), out.status, time.Since(start))
		for range out.delta.FiredEvents {
			e.metrics.EventsFired.Add(ctx, 1)
		}
	}

	return &TurnResult{
		SessionID:        session.SessionID,
		Response:         out.response,
		Intent:           out.intent.Intent,
		Slots:            out.intent.Slots,
		ValidationOK:     out.validation.OK,
		ValidationReason: out.validation.Reason,
		GameMode:         session.GameMode,
		CurrentLocation:  session.CurrentLocationID,
		TimeAdvanced:     out.delta.TimeAdvanced,
		FiredEvents:      out.delta.FiredEvents,
		EffectsApplied:   out.effectsApplied,
		Character:        out.character,
		PendingActions:   pendingActions(out.character),
		Degraded:         out.degraded,
	}, nil
}

// runTurn drives the nodes up to (but not including) the commit. It
// returns an error only for cancellation; node failures degrade instead.
func (e *Engine) runTurn(ctx context.Context, session *game.Session, message string) (*turnOutcome, error) {
	out := &turnOutcome{validation: rules.Result{OK: true}, status: "ok"}

	if err := e.node(ctx, "classify", func() error {
		out.intent = e.classifier.Classify(message)
		return nil
	}); err != nil {
		return e.degrade(out), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	window := e.contextWindow()

	// Retrieval failures degrade to a memory-light turn, not an apology.
	_ = e.node(ctx, "recall", func() error {
		bundle, err := e.recall.BuildContext(ctx, session, message, prompt.MemoryBudget(window))
		out.bundle = bundle
		if err != nil {
			e.logger.Warn("memory retrieval failed", "session_id", session.SessionID, "error", err)
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	skip := skipsValidation(out.intent.Intent)
	if skip {
		// Conversational intents bypass validation, but the prompt still
		// wants the character sheet when one exists.
		if session.CharacterID != "" {
			if ch, err := e.characters.Load(ctx, session.CharacterID); err == nil {
				out.character = ch
			}
		}
	} else {
		if err := e.node(ctx, "validate", func() error {
			vres, ch, err := e.validator.Validate(ctx, session, out.intent)
			if err != nil {
				return err
			}
			out.validation = vres
			out.character = ch
			return nil
		}); err != nil {
			return e.degrade(out), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !skip && out.validation.OK {
		if err := e.node(ctx, "narrative", func() error {
			out.delta = e.narrative.Apply(ctx, session, out.character, message, out.intent, out.validation.CombatInitiating)
			return nil
		}); err != nil {
			return e.degrade(out), nil
		}
	} else if !skip {
		// A refused action still costs the default turn time; the world
		// does not freeze while the DM narrates the refusal.
		out.delta = narrative.Delta{TimeAdvanced: narrative.DefaultAdvance}
		session.Tracked.Environment.AdvanceTime(narrative.DefaultAdvance)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	genErr := e.node(ctx, "generate", func() error {
		req := e.buildPrompt(ctx, session, out, message, window)
		gctx, cancel := context.WithTimeout(ctx, generatorTimeout)
		defer cancel()

		genStart := time.Now()
		resp, err := e.generator.Complete(gctx, req)
		if e.metrics != nil {
			e.metrics.GeneratorDuration.Record(ctx, time.Since(genStart).Seconds())
		}
		if err != nil {
			return err
		}
		out.raw = resp.Content
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if genErr != nil {
		if e.metrics != nil {
			e.metrics.RecordProviderError(ctx, "generator", "completion")
		}
		e.logger.Error("generator failed", "session_id", session.SessionID, "error", genErr)
		out.response = generatorFallback
		out.degraded = true
		out.status = "fallback"
		return out, nil
	}

	if err := e.node(ctx, "mechanics", func() error {
		clean, effects := mechanics.Parse(ctx, out.raw)
		out.response = clean
		if out.character != nil && len(effects) > 0 {
			out.effectsApplied = mechanics.Apply(ctx, out.character, effects, session.Tracked.Environment.CurrentDateTime)
		}
		// The DM's own prose can move the mode, e.g. narrating combat
		// ending after the killing blow.
		if mode, changed := narrative.ProseTransition(session.GameMode, clean); changed {
			session.TransitionMode(mode)
		}
		return nil
	}); err != nil {
		out.response = strings.TrimSpace(out.raw)
		out.effectsApplied = 0
	}
	if out.response == "" {
		out.response = strings.TrimSpace(out.raw)
	}
	out.dmForMemory = out.response
	return out, nil
}

// degrade turns a node failure into the apology turn: general intent,
// valid, fixed response, nothing fed to memory.
func (e *Engine) degrade(out *turnOutcome) *turnOutcome {
	out.intent = intent.Result{Intent: intent.IntentGeneral, Slots: map[string]string{}, OK: true}
	out.validation = rules.Result{OK: true}
	out.delta = narrative.Delta{}
	out.response = degradedResponse
	out.dmForMemory = ""
	out.effectsApplied = 0
	out.degraded = true
	out.status = "fallback"
	return out
}

// node runs one pipeline node with latency recording and panic recovery.
func (e *Engine) node(ctx context.Context, name string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordNode(ctx, name, time.Since(start))
		}
		if r := recover(); r != nil {
			e.logger.Error("pipeline node panicked", "node", name, "panic", r)
			err = fmt.Errorf("pipeline: node %s panicked", name)
		}
	}()
	return fn()
}

// buildPrompt folds the turn state into one generator request.
func (e *Engine) buildPrompt(ctx context.Context, session *game.Session, out *turnOutcome, message string, window int) llm.CompletionRequest {
	var loc *campaign.Location
	questNames := map[string]string{}
	if e.campaigns != nil {
		if l, err := e.campaigns.Location(ctx, session.CurrentLocationID); err == nil {
			loc = &l
		}
		for id := range session.Tracked.QuestStatus {
			if q, err := e.campaigns.Quest(ctx, id); err == nil {
				questNames[id] = q.Name
			}
		}
	}

	reason := ""
	if !out.validation.OK {
		reason = out.validation.Reason
	}
	return prompt.Build(prompt.Input{
		Mode:                 session.GameMode,
		Character:            out.character,
		NarrativeContext:     prompt.FormatNarrativeContext(session, loc, questNames),
		History:              session.RecentHistory(recentHistoryTurns),
		Entities:             out.bundle.Entities,
		Documents:            out.bundle.Documents,
		PlayerInput:          message,
		ValidationFailReason: reason,
		StructuredOutput:     prompt.WantsStructuredOutput(string(out.intent.Intent), session.GameMode),
		ContextWindow:        window,
	})
}

// skipsValidation reports whether the intent bypasses the validation and
// narrative nodes entirely.
func skipsValidation(i intent.Intent) bool {
	switch i {
	case intent.IntentGeneral, intent.IntentRecall, intent.IntentAskRule:
		return true
	}
	return false
}

// contextWindow returns the generator's window, or a safe default.
func (e *Engine) contextWindow() int {
	if caps := e.generator.Capabilities(); caps.ContextWindow > 0 {
		return caps.ContextWindow
	}
	return defaultContextWindow
}

// lockSession serializes turns per session.
func (e *Engine) lockSession(id string) func() {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (e *Engine) setSummary(sessionID, summary string) {
	e.summaryMu.Lock()
	defer e.summaryMu.Unlock()
	e.summaries[sessionID] = summary
}

// takeSummary pops a pending rolling summary produced by a background
// summarization run; it is folded into the session at the next turn.
func (e *Engine) takeSummary(sessionID string) (string, bool) {
	e.summaryMu.Lock()
	defer e.summaryMu.Unlock()
	summary, ok := e.summaries[sessionID]
	if ok {
		delete(e.summaries, sessionID)
	}
	return summary, ok
}
