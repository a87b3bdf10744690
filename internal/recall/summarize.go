package recall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/loremaster-ai/loremaster/internal/observe"
	"github.com/loremaster-ai/loremaster/pkg/memory"
	"github.com/loremaster-ai/loremaster/pkg/provider/embeddings"
	"github.com/loremaster-ai/loremaster/pkg/provider/llm"
)

// Summarization thresholds. A session becomes due when it has accumulated
// countThreshold unsummarized memories, or when at least minBatch have been
// waiting longer than maxMemoryAge.
const (
	batchLimit     = 50
	countThreshold = 50
	minBatch       = 10
	maxMemoryAge   = time.Hour
)

// maxConcurrentRuns caps background summarization across all sessions so a
// burst of due sessions cannot monopolize the generator.
const maxConcurrentRuns = 4

// ErrSummarizationActive is returned by [Summarizer.Run] when a run for the
// same session is already in flight.
var ErrSummarizationActive = errors.New("recall: summarization already running for session")

// ErrBatchConflict is returned when a batch member was summarized by
// another run between selection and commit. The batch is abandoned; nothing
// is written.
var ErrBatchConflict = errors.New("recall: summarization batch member already summarized")

// summaryPrompt asks the model for a single compact paragraph.
const summaryPrompt = `You compress Dungeons and Dragons session memories. The user message lists memories in chronological order. Write ONE paragraph that preserves named characters, places, quest progress, promises made, and mechanical outcomes such as damage or items gained. Omit small talk and scenery. Do not number or list; respond with the paragraph only.`

// Summarizer compacts old unsummarized memories into single summary
// memories, one batch per run, at most one run per session at a time.
// Originals are never deleted; they are flagged and linked to the summary
// that owns them.
type Summarizer struct {
	memories  memory.Store
	generator llm.Provider
	embedder  embeddings.Provider
	metrics   *observe.Metrics
	logger    *slog.Logger
	now       func() time.Time
	jobs      *semaphore.Weighted

	mu     sync.Mutex
	active map[string]bool
}

// NewSummarizer wires a summarizer. metrics may be nil.
func NewSummarizer(memories memory.Store, generator llm.Provider, embedder embeddings.Provider, metrics *observe.Metrics) *Summarizer {
	return &Summarizer{
		memories:  memories,
		generator: generator,
		embedder:  embedder,
		metrics:   metrics,
		logger:    slog.Default().With("component", "summarizer"),
		now:       time.Now,
		jobs:      semaphore.NewWeighted(maxConcurrentRuns),
		active:    make(map[string]bool),
	}
}

// summarizableTiers are the tiers the worker compacts. Summaries and
// entity facts are never themselves summarized.
var summarizableTiers = []memory.Type{memory.TypeEpisodic, memory.TypeShortTerm}

// Due reports whether the session has accumulated enough unsummarized
// memories to be worth a summarization run.
func (s *Summarizer) Due(ctx context.Context, sessionID string) (bool, error) {
	notSummarized := false
	total := 0
	var oldest time.Time
	for _, tier := range summarizableTiers {
		filter := memory.Filter{SessionID: sessionID, MemoryType: tier, IsSummarized: &notSummarized}
		n, err := s.memories.Count(ctx, filter)
		if err != nil {
			return false, fmt.Errorf("recall: count %s: %w", tier, err)
		}
		total += n
		batch, err := s.memories.ListOldest(ctx, filter, 1)
		if err != nil {
			return false, fmt.Errorf("recall: oldest %s: %w", tier, err)
		}
		if len(batch) > 0 && (oldest.IsZero() || batch[0].CreatedAt.Before(oldest)) {
			oldest = batch[0].CreatedAt
		}
	}

	if total >= countThreshold {
		return true, nil
	}
	if total >= minBatch && !oldest.IsZero() && s.now().Sub(oldest) >= maxMemoryAge {
		return true, nil
	}
	return false, nil
}

// Run executes one summarization batch for the session and returns the
// summary text, or "" when there was nothing to do. Only one run per
// session may be in flight; concurrent callers get
// [ErrSummarizationActive].
func (s *Summarizer) Run(ctx context.Context, sessionID string) (string, error) {
	if !s.acquire(sessionID) {
		return "", ErrSummarizationActive
	}
	defer s.release(sessionID)

	batch, err := s.selectBatch(ctx, sessionID)
	if err != nil {
		s.record(ctx, "error")
		return "", err
	}
	if len(batch) == 0 {
		return "", nil
	}

	// A competing run may have claimed members after selection. Re-read
	// each one and abandon the whole batch on any conflict so no memory
	// is ever owned by two summaries.
	for _, mem := range batch {
		current, err := s.memories.Get(ctx, mem.MemoryID)
		if err != nil {
			s.record(ctx, "error")
			return "", fmt.Errorf("recall: recheck %s: %w", mem.MemoryID, err)
		}
		if current == nil || current.IsSummarized {
			s.record(ctx, "aborted")
			return "", ErrBatchConflict
		}
	}

	summaryText, err := s.generate(ctx, batch)
	if err != nil {
		s.record(ctx, "error")
		return "", err
	}

	embedding, err := s.embedder.Embed(ctx, summaryText)
	if err != nil {
		s.record(ctx, "error")
		return "", fmt.Errorf("recall: embed summary: %w", err)
	}

	now := s.now()
	summaryID := uuid.NewString()
	memberIDs := make([]string, len(batch))
	for i, mem := range batch {
		memberIDs[i] = mem.MemoryID
	}

	summary := memory.Memory{
		MemoryID:     summaryID,
		SessionID:    sessionID,
		Content:      summaryText,
		Embedding:    embedding,
		MemoryType:   memory.TypeSummary,
		CharacterID:  batch[0].CharacterID,
		UserID:       batch[0].UserID,
		Importance:   8,
		CreatedAt:    now,
		LastAccessed: now,
		SummaryOf:    memberIDs,
	}
	if err := s.memories.Upsert(ctx, summary); err != nil {
		s.record(ctx, "error")
		return "", fmt.Errorf("recall: write summary: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordMemoryWrite(ctx, string(memory.TypeSummary))
	}

	for _, id := range memberIDs {
		if err := s.memories.UpdatePayload(ctx, id, map[string]any{
			"is_summarized": true,
			"summary_id":    summaryID,
		}); err != nil {
			s.logger.Warn("failed to flag summarized memory", "memory_id", id, "error", err)
		}
	}

	s.record(ctx, "ok")
	return summaryText, nil
}

// MaybeRun checks the trigger and, when due, runs a batch in the
// background, detached from the request context. The eventual summary text
// is delivered to onSummary, which may be nil.
func (s *Summarizer) MaybeRun(ctx context.Context, sessionID string, onSummary func(summary string)) {
	due, err := s.Due(ctx, sessionID)
	if err != nil {
		s.logger.Warn("summarization trigger check failed", "session_id", sessionID, "error", err)
		return
	}
	if !due {
		return
	}
	if !s.jobs.TryAcquire(1) {
		// All worker slots busy; the session stays due and the next turn
		// retries.
		s.logger.Debug("summarization deferred, worker slots busy", "session_id", sessionID)
		return
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		defer s.jobs.Release(1)
		summary, err := s.Run(bg, sessionID)
		if err != nil {
			if !errors.Is(err, ErrSummarizationActive) {
				s.logger.Error("summarization run failed", "session_id", sessionID, "error", err)
			}
			return
		}
		if summary != "" && onSummary != nil {
			onSummary(summary)
		}
	}()
}

// selectBatch gathers the oldest unsummarized memories across the
// summarizable tiers, oldest first, capped at batchLimit.
func (s *Summarizer) selectBatch(ctx context.Context, sessionID string) ([]memory.Memory, error) {
	notSummarized := false
	var batch []memory.Memory
	for _, tier := range summarizableTiers {
		filter := memory.Filter{SessionID: sessionID, MemoryType: tier, IsSummarized: &notSummarized}
		mems, err := s.memories.ListOldest(ctx, filter, batchLimit)
		if err != nil {
			return nil, fmt.Errorf("recall: select %s: %w", tier, err)
		}
		batch = append(batch, mems...)
	}
	sortByCreatedAt(batch)
	if len(batch) > batchLimit {
		batch = batch[:batchLimit]
	}
	return batch, nil
}

// generate asks the model to compress the batch into one paragraph. The
// input enumerates memories in chronological order.
func (s *Summarizer) generate(ctx context.Context, batch []memory.Memory) (string, error) {
	var sb strings.Builder
	for i, mem := range batch {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, mem.Content)
	}

	resp, err := s.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summaryPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: sb.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("recall: summarize: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("recall: summarize: empty response")
	}
	return text, nil
}

func (s *Summarizer) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[sessionID] {
		return false
	}
	s.active[sessionID] = true
	return true
}

func (s *Summarizer) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, sessionID)
}

func (s *Summarizer) record(ctx context.Context, status string) {
	if s.metrics != nil {
		s.metrics.RecordSummarization(ctx, status)
	}
}

func sortByCreatedAt(batch []memory.Memory) {
	sort.Slice(batch, func(i, j int) bool {
		return batch[i].CreatedAt.Before(batch[j].CreatedAt)
	})
}
