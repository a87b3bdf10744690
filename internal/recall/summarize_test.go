package recall_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/loremaster-ai/loremaster/internal/recall"
	"github.com/loremaster-ai/loremaster/pkg/memory"
	memmock "github.com/loremaster-ai/loremaster/pkg/memory/mock"
	embmock "github.com/loremaster-ai/loremaster/pkg/provider/embeddings/mock"
	"github.com/loremaster-ai/loremaster/pkg/provider/llm"
	llmmock "github.com/loremaster-ai/loremaster/pkg/provider/llm/mock"
)

func seedEpisodic(t *testing.T, store *memmock.MemoryStore, sessionID string, n int, age time.Duration) {
	t.Helper()
	// Oldest first; every timestamp sits in the past even at age zero.
	base := time.Now().Add(-age)
	for i := 0; i < n; i++ {
		createdAt := base.Add(time.Duration(i-n) * time.Second)
		err := store.Upsert(context.Background(), memory.Memory{
			MemoryID:   fmt.Sprintf("epi-%02d", i),
			SessionID:  sessionID,
			Content:    fmt.Sprintf("event-%02d", i),
			Embedding:  []float32{1, 0, 0, 0},
			MemoryType: memory.TypeEpisodic,
			Importance: 5,
			CreatedAt:  createdAt,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func newSummarizer(store memory.Store, gen llm.Provider) *recall.Summarizer {
	return recall.NewSummarizer(store, gen, embmock.NewProvider(4), nil)
}

func TestDue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		age  time.Duration
		want bool
	}{
		{"empty session", 0, 0, false},
		{"few fresh memories", 10, 0, false},
		{"few old memories", 10, 2 * time.Hour, true},
		{"below minimum even when old", 5, 2 * time.Hour, false},
		{"many fresh memories", 50, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := memmock.NewMemoryStore()
			seedEpisodic(t, store, "sess-1", tt.n, tt.age)
			s := newSummarizer(store, &llmmock.Provider{})

			due, err := s.Due(context.Background(), "sess-1")
			if err != nil {
				t.Fatalf("Due: %v", err)
			}
			if due != tt.want {
				t.Errorf("Due = %v, want %v", due, tt.want)
			}
		})
	}
}

func TestRunCompactsBatch(t *testing.T) {
	t.Parallel()

	store := memmock.NewMemoryStore()
	seedEpisodic(t, store, "sess-1", 12, 2*time.Hour)
	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "The party delved the tomb and bargained with Mira."},
	}
	s := newSummarizer(store, gen)

	text, err := s.Run(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if text != "The party delved the tomb and bargained with Mira." {
		t.Errorf("summary = %q", text)
	}

	// The model saw a numbered chronological enumeration.
	if len(gen.CompleteCalls) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(gen.CompleteCalls))
	}
	input := gen.CompleteCalls[0].Req.Messages[0].Content
	if !strings.HasPrefix(input, "1. event-00") {
		t.Errorf("enumeration does not start with the oldest memory: %q", input)
	}
	if !strings.Contains(input, "12. event-11") {
		t.Errorf("enumeration missing the newest memory: %q", input)
	}

	var summary *memory.Memory
	for _, m := range store.All() {
		if m.MemoryType == memory.TypeSummary {
			cp := m
			summary = &cp
		}
	}
	if summary == nil {
		t.Fatal("no summary memory written")
	}
	if summary.Importance != 8 {
		t.Errorf("summary importance = %d, want 8", summary.Importance)
	}
	if len(summary.SummaryOf) != 12 {
		t.Errorf("summary covers %d memories, want 12", len(summary.SummaryOf))
	}

	// Originals survive, flagged and linked.
	for _, m := range store.All() {
		if m.MemoryType != memory.TypeEpisodic {
			continue
		}
		if !m.IsSummarized || m.SummaryID != summary.MemoryID {
			t.Errorf("original %s: summarized=%v summary_id=%q", m.MemoryID, m.IsSummarized, m.SummaryID)
		}
	}
}

func TestRunNothingToDo(t *testing.T) {
	t.Parallel()

	gen := &llmmock.Provider{}
	s := newSummarizer(memmock.NewMemoryStore(), gen)

	text, err := s.Run(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if text != "" {
		t.Errorf("summary = %q, want empty", text)
	}
	if len(gen.CompleteCalls) != 0 {
		t.Errorf("generator called %d times on an empty session", len(gen.CompleteCalls))
	}
}

// conflictStore simulates a competing run claiming batch members between
// selection and the recheck.
type conflictStore struct {
	*memmock.MemoryStore
}

func (c *conflictStore) Get(ctx context.Context, id string) (*memory.Memory, error) {
	mem, err := c.MemoryStore.Get(ctx, id)
	if mem != nil {
		mem.IsSummarized = true
	}
	return mem, err
}

func TestRunAbortsOnBatchConflict(t *testing.T) {
	t.Parallel()

	inner := memmock.NewMemoryStore()
	seedEpisodic(t, inner, "sess-1", 12, 2*time.Hour)
	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "should never be used"},
	}
	s := newSummarizer(&conflictStore{inner}, gen)

	_, err := s.Run(context.Background(), "sess-1")
	if !errors.Is(err, recall.ErrBatchConflict) {
		t.Fatalf("err = %v, want ErrBatchConflict", err)
	}
	if len(gen.CompleteCalls) != 0 {
		t.Error("generator called despite the aborted batch")
	}
	for _, m := range inner.All() {
		if m.MemoryType == memory.TypeSummary {
			t.Error("summary written despite the aborted batch")
		}
	}
}

func TestRunSerializesPerSession(t *testing.T) {
	t.Parallel()

	store := memmock.NewMemoryStore()
	seedEpisodic(t, store, "sess-1", 12, 2*time.Hour)

	started := make(chan struct{})
	release := make(chan struct{})
	gen := &llmmock.Provider{
		CompleteFunc: func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
			close(started)
			<-release
			return &llm.CompletionResponse{Content: "done"}, nil
		},
	}
	s := newSummarizer(store, gen)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), "sess-1")
		done <- err
	}()
	<-started

	if _, err := s.Run(context.Background(), "sess-1"); !errors.Is(err, recall.ErrSummarizationActive) {
		t.Errorf("concurrent Run err = %v, want ErrSummarizationActive", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Run: %v", err)
	}
}
