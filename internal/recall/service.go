// Package recall is the memory side of the turn pipeline: it persists what
// happened this turn into the tiered memory store, mines entity facts out
// of DM prose, assembles the retrieval context for the next generator call,
// and compacts old episodic memories into summaries in the background.
package recall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loremaster-ai/loremaster/internal/observe"
	"github.com/loremaster-ai/loremaster/internal/prompt"
	"github.com/loremaster-ai/loremaster/internal/significance"
	"github.com/loremaster-ai/loremaster/pkg/game"
	"github.com/loremaster-ai/loremaster/pkg/memory"
	"github.com/loremaster-ai/loremaster/pkg/provider/embeddings"
)

// Retrieval tuning. Each tier contributes up to tierK candidates at or
// above minSimilarity; the final ranking blends similarity, recency and
// importance.
const (
	tierK         = 5
	minSimilarity = 0.7
	maxPinned     = 5

	similarityWeight = 0.6
	recencyWeight    = 0.2
	importanceWeight = 0.2
)

// summaryBudgetShare caps the rolling session summary at a quarter of the
// memory block.
const summaryBudgetShare = 4

// Tier prefixes on packed memory lines. The generator sees these verbatim.
const (
	prefixShortTerm = "Recent memory: "
	prefixEpisodic  = "Important memory: "
	prefixFact      = "Known fact: "
	prefixPinned    = "PINNED: "
	prefixSummary   = "Summary: "
)

// Retrieved is the memory context for one turn, already formatted into the
// lines the prompt assembler packs.
type Retrieved struct {
	// Entities are entity-fact lines for the known-entities block.
	Entities []string

	// Documents are summary, pinned and tiered memory lines for the
	// relevant-memories block.
	Documents []string
}

// Service owns memory persistence and retrieval for the turn pipeline.
// Safe for concurrent use; all state lives in the backing store.
type Service struct {
	memories memory.Store
	embedder embeddings.Provider
	scorer   *significance.Classifier
	metrics  *observe.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a recall service over the given store and embedder.
// metrics may be nil.
func NewService(memories memory.Store, embedder embeddings.Provider, metrics *observe.Metrics) *Service {
	return &Service{
		memories: memories,
		embedder: embedder,
		scorer:   significance.New(),
		metrics:  metrics,
		logger:   slog.Default().With("component", "recall"),
		now:      time.Now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Persistence
// ─────────────────────────────────────────────────────────────────────────────

// PersistTurn writes this turn's messages into the memory tiers: both
// messages land in short-term, significant ones additionally become
// episodic events, and entity facts mined from the DM response go to the
// semantic tier. Individual write failures are collected, not fatal to the
// rest of the batch.
func (s *Service) PersistTurn(ctx context.Context, session *game.Session, playerMessage, dmResponse string) error {
	var errs []error
	narrative := s.narrativeSnapshot(session)

	for _, msg := range []struct {
		sender string
		text   string
	}{
		{string(game.SenderPlayer), playerMessage},
		{string(game.SenderDM), dmResponse},
	} {
		if msg.text == "" {
			continue
		}
		res := s.scorer.Score(msg.text, significance.Context{
			GameMode: string(session.GameMode),
			Sender:   msg.sender,
		})

		if err := s.write(ctx, memory.Memory{
			SessionID:   session.SessionID,
			Content:     msg.text,
			MemoryType:  memory.TypeShortTerm,
			CharacterID: session.CharacterID,
			UserID:      session.UserID,
			Importance:  res.Importance,
			Narrative:   narrative,
			Metadata:    map[string]string{"sender": msg.sender},
		}); err != nil {
			errs = append(errs, fmt.Errorf("recall: short-term write: %w", err))
		}

		if !res.Significant {
			continue
		}
		if err := s.write(ctx, memory.Memory{
			SessionID:   session.SessionID,
			Content:     msg.text,
			MemoryType:  memory.TypeEpisodic,
			CharacterID: session.CharacterID,
			UserID:      session.UserID,
			Importance:  res.Importance,
			Narrative:   narrative,
			Metadata:    map[string]string{"sender": msg.sender},
		}); err != nil {
			errs = append(errs, fmt.Errorf("recall: episodic write: %w", err))
		}
	}

	for _, ent := range ExtractEntities(dmResponse) {
		if err := s.write(ctx, memory.Memory{
			SessionID:  memory.SemanticSessionID,
			Content:    ent.Fact,
			MemoryType: memory.TypeEntityFact,
			UserID:     session.UserID,
			Importance: entityImportance[ent.Type],
			Narrative:  narrative,
			EntityReferences: []memory.EntityReference{
				{EntityName: ent.Name, EntityType: ent.Type},
			},
		}); err != nil {
			errs = append(errs, fmt.Errorf("recall: entity fact write: %w", err))
		}
	}

	return errors.Join(errs...)
}

// write embeds the content, stamps identity and timestamps, and upserts.
func (s *Service) write(ctx context.Context, mem memory.Memory) error {
	embedding, err := s.embedder.Embed(ctx, mem.Content)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	now := s.now()
	mem.MemoryID = uuid.NewString()
	mem.Embedding = embedding
	mem.CreatedAt = now
	mem.LastAccessed = now
	if err := s.memories.Upsert(ctx, mem); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordMemoryWrite(ctx, string(mem.MemoryType))
	}
	return nil
}

// narrativeSnapshot captures where and when the session is right now.
func (s *Service) narrativeSnapshot(session *game.Session) memory.NarrativeContext {
	env := session.Tracked.Environment
	return memory.NarrativeContext{
		LocationID: session.CurrentLocationID,
		GameMode:   session.GameMode,
		DayPhase:   env.CurrentDayPhase,
		GameTime:   env.CurrentDateTime,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Retrieval
// ─────────────────────────────────────────────────────────────────────────────

// scored pairs a candidate memory with its blended ranking score.
type scored struct {
	mem   memory.Memory
	score float64
}

// BuildContext assembles the memory block for one turn, within tokenBudget
// estimated tokens. The rolling session summary goes first when it fits in
// a quarter of the budget, then up to five pinned memories, then tier
// candidates ranked by blended score. Packing stops at the budget.
//
// Retrieval failures degrade: whatever was assembled before the failure is
// returned alongside the error so the turn can proceed memory-light.
func (s *Service) BuildContext(ctx context.Context, session *game.Session, query string, tokenBudget int) (Retrieved, error) {
	var out Retrieved
	if tokenBudget <= 0 {
		return out, nil
	}
	used := 0

	if session.Summary != "" {
		line := prefixSummary + session.Summary
		if cost := prompt.EstimateTokens(line); cost <= tokenBudget/summaryBudgetShare {
			out.Documents = append(out.Documents, line)
			used += cost
		}
	}

	var touched []string
	packed := make(map[string]bool)

	for _, mem := range s.listPinned(ctx, session) {
		line := prefixPinned + mem.Content
		cost := prompt.EstimateTokens(line)
		if used+cost > tokenBudget {
			break
		}
		out.Documents = append(out.Documents, line)
		used += cost
		packed[mem.MemoryID] = true
		touched = append(touched, mem.MemoryID)
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.touch(ctx, touched)
		return out, fmt.Errorf("recall: embed query: %w", err)
	}

	candidates, err := s.searchTiers(ctx, session, embedding, packed)
	if err != nil {
		s.touch(ctx, touched)
		return out, err
	}

	for _, c := range candidates {
		line := tierLine(c.mem)
		cost := prompt.EstimateTokens(line)
		if used+cost > tokenBudget {
			break
		}
		if c.mem.MemoryType == memory.TypeEntityFact {
			out.Entities = append(out.Entities, line)
		} else {
			out.Documents = append(out.Documents, line)
		}
		used += cost
		touched = append(touched, c.mem.MemoryID)
	}

	s.touch(ctx, touched)
	return out, nil
}

// searchTiers queries the memory tiers concurrently and returns
// deduplicated candidates sorted by descending blended score. Dedupe runs
// in fixed tier order after the searches join, so results stay
// deterministic for equal scores.
func (s *Service) searchTiers(ctx context.Context, session *game.Session, embedding []float32, exclude map[string]bool) ([]scored, error) {
	queries := []memory.Filter{
		{SessionID: session.SessionID, MemoryType: memory.TypeShortTerm},
		{SessionID: session.SessionID, MemoryType: memory.TypeEpisodic},
		{SessionID: memory.SemanticSessionID, MemoryType: memory.TypeEntityFact},
	}

	tiers := make([][]memory.SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, filter := range queries {
		g.Go(func() error {
			results, err := s.memories.Search(gctx, embedding, filter, tierK, minSimilarity)
			if err != nil {
				return fmt.Errorf("recall: search %s: %w", filter.MemoryType, err)
			}
			tiers[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	var candidates []scored
	seen := make(map[string]bool)
	for _, results := range tiers {
		for _, r := range results {
			if seen[r.Memory.MemoryID] || exclude[r.Memory.MemoryID] {
				continue
			}
			seen[r.Memory.MemoryID] = true
			candidates = append(candidates, scored{
				mem:   r.Memory,
				score: blendedScore(r, now),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates, nil
}

// blendedScore ranks a search hit by similarity, recency and importance.
// Recency decays 10% per day and floors at 0.1 so old but highly relevant
// memories stay retrievable.
func blendedScore(r memory.SearchResult, now time.Time) float64 {
	days := now.Sub(r.Memory.CreatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	recency := math.Pow(0.9, days)
	if recency < 0.1 {
		recency = 0.1
	}
	importance := float64(r.Memory.Importance) / 10

	return r.Similarity*similarityWeight + recency*recencyWeight + importance*importanceWeight
}

// listPinned resolves the session's pinned memories by ID, in pin order,
// capped at maxPinned. Pins that no longer resolve are skipped; lookup
// failures degrade to no pins.
func (s *Service) listPinned(ctx context.Context, session *game.Session) []memory.Memory {
	pins := session.PinnedMemories
	if len(pins) > maxPinned {
		pins = pins[:maxPinned]
	}
	var pinned []memory.Memory
	for _, pin := range pins {
		mem, err := s.memories.Get(ctx, pin.MemoryID)
		if err != nil {
			s.logger.Warn("pinned memory lookup failed", "memory_id", pin.MemoryID, "error", err)
			continue
		}
		if mem == nil {
			continue
		}
		pinned = append(pinned, *mem)
	}
	return pinned
}

// touch bumps last_accessed on every packed memory. Best effort.
func (s *Service) touch(ctx context.Context, ids []string) {
	now := s.now()
	for _, id := range ids {
		if err := s.memories.UpdatePayload(ctx, id, map[string]any{"last_accessed": now}); err != nil {
			s.logger.Warn("last_accessed update failed", "memory_id", id, "error", err)
		}
	}
}

// tierLine renders one memory as a packed context line.
func tierLine(mem memory.Memory) string {
	switch mem.MemoryType {
	case memory.TypeShortTerm:
		return prefixShortTerm + mem.Content
	case memory.TypeEpisodic:
		return prefixEpisodic + mem.Content
	case memory.TypeEntityFact:
		return prefixFact + mem.Content
	case memory.TypeSummary:
		return prefixSummary + mem.Content
	}
	return mem.Content
}
