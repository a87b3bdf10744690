package memory

import (
	"time"

	"github.com/loremaster-ai/loremaster/pkg/game"
)

// Type classifies a memory by tier.
type Type string

const (
	// TypeShortTerm is the working tier. Entries expire ShortTermTTL after
	// creation.
	TypeShortTerm Type = "short_term"

	// TypeEpisodic is a memory of a specific in-world event.
	TypeEpisodic Type = "episodic_event"

	// TypeSummary is an abstractive compression of a batch of episodic
	// memories. Summary memories are never themselves summarized.
	TypeSummary Type = "summary"

	// TypeEntityFact is a fact scoped to a named entity rather than a
	// session. Entity facts carry SessionID == SemanticSessionID.
	TypeEntityFact Type = "entity_fact"
)

// IsValid reports whether t is a recognised memory type.
func (t Type) IsValid() bool {
	switch t {
	case TypeShortTerm, TypeEpisodic, TypeSummary, TypeEntityFact:
		return true
	}
	return false
}

// SemanticSessionID is the session ID carried by entity-fact memories that
// are not tied to any particular session.
const SemanticSessionID = "semantic"

// ShortTermTTL is how long short-term memories stay retrievable.
const ShortTermTTL = 7 * 24 * time.Hour

// EntityReference names an entity a memory is about.
type EntityReference struct {
	EntityName string `json:"entity_name"`
	EntityType string `json:"entity_type"`
}

// NarrativeContext is the snapshot of relevant narrative fields captured at
// write time so a memory can be interpreted without loading the session.
type NarrativeContext struct {
	LocationID string        `json:"location_id,omitempty"`
	GameMode   game.Mode     `json:"game_mode,omitempty"`
	DayPhase   game.DayPhase `json:"day_phase,omitempty"`
	GameTime   time.Time     `json:"game_time,omitempty"`
}

// Memory is one entry in the tiered memory store. The embedding travels in
// its dedicated field; everything else is the payload.
type Memory struct {
	// MemoryID is the primary key (a UUID).
	MemoryID string `json:"memory_id"`

	// SessionID is the owning session, or SemanticSessionID for entity facts.
	SessionID string `json:"session_id"`

	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`

	MemoryType Type `json:"memory_type"`

	CharacterID string `json:"character_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`

	// Importance is in [1, 10].
	Importance int `json:"importance"`

	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`

	EntityReferences []EntityReference `json:"entity_references,omitempty"`
	Narrative        NarrativeContext  `json:"narrative_context,omitempty"`

	// IsSummarized marks a memory that has been compacted into a summary.
	// When true, SummaryID points at the owning summary memory. A memory is
	// pointed at by at most one summary at a time.
	IsSummarized bool   `json:"is_summarized"`
	SummaryID    string `json:"summary_id,omitempty"`

	// SummaryOf lists the memory IDs this memory summarizes (set only on
	// TypeSummary memories).
	SummaryOf []string `json:"summary_of,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult pairs a retrieved memory with its cosine similarity to the
// query embedding in [0, 1]; higher is more similar.
type SearchResult struct {
	Memory     Memory
	Similarity float64
}
