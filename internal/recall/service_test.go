package recall_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loremaster-ai/loremaster/internal/prompt"
	"github.com/loremaster-ai/loremaster/internal/recall"
	"github.com/loremaster-ai/loremaster/pkg/game"
	"github.com/loremaster-ai/loremaster/pkg/memory"
	memmock "github.com/loremaster-ai/loremaster/pkg/memory/mock"
	embmock "github.com/loremaster-ai/loremaster/pkg/provider/embeddings/mock"
)

func testSession() *game.Session {
	return game.NewSession("sess-1", "user-1", "char-1", "", "", time.Now())
}

func countByType(mems []memory.Memory, typ memory.Type) int {
	n := 0
	for _, m := range mems {
		if m.MemoryType == typ {
			n++
		}
	}
	return n
}

func TestPersistTurnWritesTiers(t *testing.T) {
	t.Parallel()

	store := memmock.NewMemoryStore()
	svc := recall.NewService(store, embmock.NewProvider(8), nil)

	player := "hello"
	dm := "Elder Mira tells you that bandits razed the mill. She asks you to drive the bandits from the mill."
	if err := svc.PersistTurn(context.Background(), testSession(), player, dm); err != nil {
		t.Fatalf("PersistTurn: %v", err)
	}

	all := store.All()
	// Both messages land in short-term; only the significant DM response
	// becomes episodic.
	if got := countByType(all, memory.TypeShortTerm); got != 2 {
		t.Errorf("short-term memories = %d, want 2", got)
	}
	if got := countByType(all, memory.TypeEpisodic); got != 1 {
		t.Errorf("episodic memories = %d, want 1", got)
	}
	// The DM prose names an NPC and a quest.
	if got := countByType(all, memory.TypeEntityFact); got != 2 {
		t.Errorf("entity facts = %d, want 2", got)
	}

	for _, m := range all {
		switch m.MemoryType {
		case memory.TypeEntityFact:
			if m.SessionID != memory.SemanticSessionID {
				t.Errorf("entity fact session = %q, want %q", m.SessionID, memory.SemanticSessionID)
			}
			if len(m.EntityReferences) == 0 {
				t.Errorf("entity fact %q has no entity references", m.Content)
			}
			if m.Importance < 6 || m.Importance > 8 {
				t.Errorf("entity fact importance = %d, want 6..8", m.Importance)
			}
		case memory.TypeEpisodic:
			if m.Importance < 4 {
				t.Errorf("episodic importance = %d, want >= 4", m.Importance)
			}
			if m.Metadata["sender"] != string(game.SenderDM) {
				t.Errorf("episodic sender = %q, want dm", m.Metadata["sender"])
			}
		}
	}
}

func TestPersistTurnEmbedFailure(t *testing.T) {
	t.Parallel()

	store := memmock.NewMemoryStore()
	embedder := embmock.NewProvider(8)
	embedder.EmbedErr = errors.New("embedder down")
	svc := recall.NewService(store, embedder, nil)

	err := svc.PersistTurn(context.Background(), testSession(), "I open the door.", "The door swings wide.")
	if err == nil {
		t.Fatal("expected an error when embedding fails")
	}
	if got := store.CallCount("Upsert"); got != 0 {
		t.Errorf("Upsert calls = %d, want 0", got)
	}
}

func seedMemory(t *testing.T, store *memmock.MemoryStore, mem memory.Memory, vec []float32) {
	t.Helper()
	mem.Embedding = vec
	if mem.LastAccessed.IsZero() {
		mem.LastAccessed = mem.CreatedAt
	}
	if err := store.Upsert(context.Background(), mem); err != nil {
		t.Fatalf("seed %s: %v", mem.MemoryID, err)
	}
}

func TestBuildContextOrdersAndPacks(t *testing.T) {
	t.Parallel()

	now := time.Now()
	vec := []float32{1, 0, 0, 0}
	store := memmock.NewMemoryStore()
	embedder := embmock.NewProvider(4)
	embedder.EmbedResult = vec
	svc := recall.NewService(store, embedder, nil)

	seedMemory(t, store, memory.Memory{
		MemoryID: "pin-1", SessionID: "sess-1", MemoryType: memory.TypeEpisodic,
		Content: "Never break the oath to Mira.", Importance: 9,
		CreatedAt: now.Add(-48 * time.Hour),
	}, vec)
	seedMemory(t, store, memory.Memory{
		MemoryID: "epi-1", SessionID: "sess-1", MemoryType: memory.TypeEpisodic,
		Content: "The tomb door ground open at midnight.", Importance: 8,
		CreatedAt: now.Add(-time.Hour),
	}, vec)
	seedMemory(t, store, memory.Memory{
		MemoryID: "st-1", SessionID: "sess-1", MemoryType: memory.TypeShortTerm,
		Content: "You arrived at dawn.", Importance: 3,
		CreatedAt: now.Add(-30 * time.Minute),
	}, vec)
	seedMemory(t, store, memory.Memory{
		MemoryID: "fact-1", SessionID: memory.SemanticSessionID, MemoryType: memory.TypeEntityFact,
		Content: "Elder Mira leads the village.", Importance: 7,
		CreatedAt: now.Add(-72 * time.Hour),
	}, vec)

	session := testSession()
	session.Summary = "The party reached Thornbury."
	session.PinnedMemories = []game.PinnedMemory{{MemoryID: "pin-1", Importance: 9}}

	got, err := svc.BuildContext(context.Background(), session, "the tomb", 2000)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	wantDocs := []string{
		"Summary: The party reached Thornbury.",
		"PINNED: Never break the oath to Mira.",
		"Important memory: The tomb door ground open at midnight.",
		"Recent memory: You arrived at dawn.",
	}
	if len(got.Documents) != len(wantDocs) {
		t.Fatalf("documents = %q, want %d lines", got.Documents, len(wantDocs))
	}
	for i, want := range wantDocs {
		if got.Documents[i] != want {
			t.Errorf("documents[%d] = %q, want %q", i, got.Documents[i], want)
		}
	}
	if len(got.Entities) != 1 || got.Entities[0] != "Known fact: Elder Mira leads the village." {
		t.Errorf("entities = %q", got.Entities)
	}

	// Every packed memory gets its last_accessed bumped.
	if got := store.CallCount("UpdatePayload"); got != 4 {
		t.Errorf("UpdatePayload calls = %d, want 4", got)
	}
}

func TestBuildContextStopsAtBudget(t *testing.T) {
	t.Parallel()

	now := time.Now()
	vec := []float32{1, 0, 0, 0}
	store := memmock.NewMemoryStore()
	embedder := embmock.NewProvider(4)
	embedder.EmbedResult = vec
	svc := recall.NewService(store, embedder, nil)

	pinnedContent := "The warden holds the only key to the vault."
	seedMemory(t, store, memory.Memory{
		MemoryID: "pin-1", SessionID: "sess-1", MemoryType: memory.TypeEpisodic,
		Content: pinnedContent, Importance: 9, CreatedAt: now.Add(-time.Hour),
	}, vec)
	seedMemory(t, store, memory.Memory{
		MemoryID: "epi-1", SessionID: "sess-1", MemoryType: memory.TypeEpisodic,
		Content: "A second memory that must not fit.", Importance: 8,
		CreatedAt: now.Add(-time.Hour),
	}, vec)

	session := testSession()
	session.PinnedMemories = []game.PinnedMemory{{MemoryID: "pin-1", Importance: 9}}

	budget := prompt.EstimateTokens("PINNED: " + pinnedContent)
	got, err := svc.BuildContext(context.Background(), session, "vault", budget)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(got.Documents) != 1 || !strings.HasPrefix(got.Documents[0], "PINNED: ") {
		t.Errorf("documents = %q, want only the pinned line", got.Documents)
	}
}

func TestBuildContextPinsInPinOrder(t *testing.T) {
	t.Parallel()

	now := time.Now()
	vec := []float32{1, 0, 0, 0}
	store := memmock.NewMemoryStore()
	embedder := embmock.NewProvider(4)
	embedder.EmbedResult = vec
	svc := recall.NewService(store, embedder, nil)

	// Older than pin-b, but pinned second; pin order must win over age.
	seedMemory(t, store, memory.Memory{
		MemoryID: "pin-a", SessionID: "sess-1", MemoryType: memory.TypeEpisodic,
		Content: "The oath sworn at the shrine.", Importance: 9,
		CreatedAt: now.Add(-72 * time.Hour),
	}, vec)
	seedMemory(t, store, memory.Memory{
		MemoryID: "pin-b", SessionID: "sess-1", MemoryType: memory.TypeEpisodic,
		Content: "The warden's true name.", Importance: 9,
		CreatedAt: now.Add(-time.Hour),
	}, vec)

	session := testSession()
	session.PinnedMemories = []game.PinnedMemory{
		{MemoryID: "pin-b", Importance: 9},
		{MemoryID: "pin-a", Importance: 9},
		{MemoryID: "pin-gone", Importance: 5},
	}

	got, err := svc.BuildContext(context.Background(), session, "the shrine", 2000)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(got.Documents) < 2 {
		t.Fatalf("documents = %q, want both pinned lines", got.Documents)
	}
	if got.Documents[0] != "PINNED: The warden's true name." {
		t.Errorf("documents[0] = %q, want pin-b first", got.Documents[0])
	}
	if got.Documents[1] != "PINNED: The oath sworn at the shrine." {
		t.Errorf("documents[1] = %q, want pin-a second", got.Documents[1])
	}
	// A pin whose memory no longer exists is skipped, not packed.
	for _, doc := range got.Documents {
		if strings.Contains(doc, "pin-gone") {
			t.Errorf("dangling pin packed: %q", doc)
		}
	}
}

func TestBuildContextZeroBudget(t *testing.T) {
	t.Parallel()

	svc := recall.NewService(memmock.NewMemoryStore(), embmock.NewProvider(4), nil)
	got, err := svc.BuildContext(context.Background(), testSession(), "anything", 0)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(got.Documents) != 0 || len(got.Entities) != 0 {
		t.Errorf("got %+v, want empty", got)
	}
}

func TestBuildContextEmbedFailureKeepsSummary(t *testing.T) {
	t.Parallel()

	embedder := embmock.NewProvider(4)
	embedder.EmbedErr = errors.New("embedder down")
	svc := recall.NewService(memmock.NewMemoryStore(), embedder, nil)

	session := testSession()
	session.Summary = "The party reached Thornbury."

	got, err := svc.BuildContext(context.Background(), session, "the tomb", 2000)
	if err == nil {
		t.Fatal("expected an error when the query embed fails")
	}
	if len(got.Documents) != 1 || !strings.HasPrefix(got.Documents[0], "Summary: ") {
		t.Errorf("documents = %q, want the summary to survive", got.Documents)
	}
}
