// Package memory defines the tiered memory architecture used by the
// Loremaster DM engine.
//
// Memories live in four tiers of increasing permanence:
//
//   - short_term: the working tier, expiring [ShortTermTTL] after creation.
//   - episodic_event: significant in-world events, retrievable by vector
//     similarity until compacted into a summary.
//   - summary: abstractive compressions of episodic batches, produced by
//     the background summarization worker.
//   - entity_fact: facts about named entities (NPCs, locations, items,
//     quests), shared across the campaign under [SemanticSessionID].
//
// Two stores back the engine: [Store] holds the vectors and payloads, and
// [SessionStore] holds the per-session checkpoint that the turn pipeline
// commits after every turn.
//
// All interfaces are public so that external packages can supply alternative
// backends (Postgres/pgvector, in-memory, ...) without depending on
// loremaster internals. Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/loremaster-ai/loremaster/pkg/game"
)

// ErrRevisionConflict is returned by [SessionStore.Save] when the checkpoint
// revision does not match the stored one — another turn committed first.
var ErrRevisionConflict = errors.New("memory: checkpoint revision conflict")

// Filter narrows a memory query. All non-zero fields are applied as AND
// conditions.
type Filter struct {
	// SessionID restricts results to one session (or SemanticSessionID).
	SessionID string

	// CharacterID and UserID restrict by provenance.
	CharacterID string
	UserID      string

	// MemoryType restricts to a single tier.
	MemoryType Type

	// IsSummarized, when non-nil, filters on the compaction flag.
	IsSummarized *bool

	// SummaryID restricts to memories owned by a specific summary.
	SummaryID string

	// EntityName keeps only memories whose entity_references contain an
	// entry with this name (case-insensitive).
	EntityName string
}

// Store is the vector-backed memory store.
//
// Upserts are idempotent on MemoryID. Search returns results ordered by
// descending cosine similarity, cut off at minSim.
type Store interface {
	// Upsert writes mem, replacing any memory with the same MemoryID.
	Upsert(ctx context.Context, mem Memory) error

	// Search returns up to k memories matching filter whose cosine
	// similarity to embedding is at least minSim, most similar first.
	// Expired short-term memories are never returned.
	// Returns an empty (non-nil) slice when nothing matches.
	Search(ctx context.Context, embedding []float32, filter Filter, k int, minSim float64) ([]SearchResult, error)

	// UpdatePayload patches individual payload fields of the memory with
	// the given ID. Supported keys: "is_summarized" (bool), "summary_id"
	// (string), "importance" (int), "last_accessed" (time.Time).
	UpdatePayload(ctx context.Context, id string, fields map[string]any) error

	// Delete removes the memory with the given ID. Deleting a non-existent
	// memory is not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the number of memories matching filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// ListOldest returns up to limit memories matching filter, oldest
	// CreatedAt first. Used by the summarization worker to select batches.
	ListOldest(ctx context.Context, filter Filter, limit int) ([]Memory, error)

	// Get returns the memory with the given ID, or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Memory, error)
}

// Checkpoint is the unit the turn pipeline commits after every turn: the
// entire session state plus the last turn's derived results, under a
// monotonic revision used for optimistic concurrency.
type Checkpoint struct {
	Session game.Session `json:"session"`

	// Revision is incremented by every successful Save. A Save whose
	// checkpoint carries a stale revision fails with ErrRevisionConflict.
	Revision int64 `json:"revision"`

	// LastTurn records the previous turn's intermediate results for
	// recovery and debugging.
	LastTurn TurnRecord `json:"last_turn"`
}

// TurnRecord captures what the last committed turn decided.
type TurnRecord struct {
	Intent           string            `json:"intent,omitempty"`
	Slots            map[string]string `json:"slots,omitempty"`
	ValidationOK     bool              `json:"validation_ok"`
	ValidationReason string            `json:"validation_reason,omitempty"`
	DMResponse       string            `json:"dm_response,omitempty"`
}

// SessionInfo is a lightweight session listing entry.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	CharacterID string    `json:"character_id"`
	GameMode    game.Mode `json:"game_mode"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RollLog is one persisted dice roll.
type RollLog struct {
	RollID    string    `json:"roll_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	DiceType  string    `json:"dice_type"`
	Roll      int       `json:"roll"`
	Modifier  int       `json:"modifier"`
	Total     int       `json:"total"`
	RolledAt  time.Time `json:"rolled_at"`
}

// CharacterStore persists character sheets. The pipeline reloads the
// character at turn start and commits mechanical changes (damage, slot
// usage, conditions) before memory persistence.
type CharacterStore interface {
	// Load returns the character with the given ID, or (nil, nil) when
	// absent.
	Load(ctx context.Context, characterID string) (*game.Character, error)

	// Save writes ch, replacing any character with the same ID.
	Save(ctx context.Context, ch *game.Character) error
}

// SessionStore persists session checkpoints and the dice-roll log.
type SessionStore interface {
	// Load returns the checkpoint for sessionID, or (nil, nil) when no
	// checkpoint exists yet.
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)

	// Save atomically persists cp. The stored revision must equal
	// cp.Revision; on success the stored revision becomes cp.Revision+1.
	// A mismatch returns ErrRevisionConflict and leaves the stored
	// checkpoint untouched.
	Save(ctx context.Context, cp *Checkpoint) error

	// List returns all sessions owned by userID, most recently updated
	// first. Returns an empty (non-nil) slice when the user has none.
	List(ctx context.Context, userID string) ([]SessionInfo, error)

	// LogRoll appends a dice roll to the persistent roll log.
	LogRoll(ctx context.Context, roll RollLog) error
}
