// Package mock provides in-memory test doubles for the memory layer
// interfaces.
//
// Unlike pure stub mocks, [MemoryStore] and [SessionStore] are functional:
// they actually store data, evaluate filters, and compute cosine similarity,
// so pipeline tests can exercise real retrieval behaviour without Postgres.
// Every method call is also recorded for assertion. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := mock.NewMemoryStore()
//	_ = store.Upsert(ctx, mem)
//
//	if got := store.CallCount("Upsert"); got != 1 {
//	    t.Errorf("expected 1 Upsert call, got %d", got)
//	}
package mock

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loremaster-ai/loremaster/pkg/game"
	"github.com/loremaster-ai/loremaster/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// recorder is the shared call-recording base embedded by every mock.
type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(method string, args ...any) {
	r.calls = append(r.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded method invocations.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// MemoryStore mock
// ─────────────────────────────────────────────────────────────────────────────

// MemoryStore is a functional in-memory implementation of [memory.Store].
type MemoryStore struct {
	recorder

	// ForcedErr, when non-nil, is returned by every method.
	ForcedErr error

	// Now returns the current time; overridable for TTL tests.
	Now func() time.Time

	memories map[string]memory.Memory
}

var _ memory.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty functional memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:      time.Now,
		memories: make(map[string]memory.Memory),
	}
}

// Upsert implements [memory.Store].
func (m *MemoryStore) Upsert(_ context.Context, mem memory.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Upsert", mem)
	if m.ForcedErr != nil {
		return m.ForcedErr
	}
	m.memories[mem.MemoryID] = mem
	return nil
}

// Search implements [memory.Store].
func (m *MemoryStore) Search(_ context.Context, embedding []float32, filter memory.Filter, k int, minSim float64) ([]memory.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Search", embedding, filter, k, minSim)
	if m.ForcedErr != nil {
		return nil, m.ForcedErr
	}

	results := []memory.SearchResult{}
	for _, mem := range m.memories {
		if !m.matches(mem, filter) {
			continue
		}
		sim := cosineSimilarity(embedding, mem.Embedding)
		if sim >= minSim {
			results = append(results, memory.SearchResult{Memory: mem, Similarity: sim})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// UpdatePayload implements [memory.Store].
func (m *MemoryStore) UpdatePayload(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdatePayload", id, fields)
	if m.ForcedErr != nil {
		return m.ForcedErr
	}
	mem, ok := m.memories[id]
	if !ok {
		return nil
	}
	for key, val := range fields {
		switch key {
		case "is_summarized":
			if b, ok := val.(bool); ok {
				mem.IsSummarized = b
			}
		case "summary_id":
			if s, ok := val.(string); ok {
				mem.SummaryID = s
			}
		case "importance":
			if n, ok := val.(int); ok {
				mem.Importance = n
			}
		case "last_accessed":
			if t, ok := val.(time.Time); ok {
				mem.LastAccessed = t
			}
		}
	}
	m.memories[id] = mem
	return nil
}

// Delete implements [memory.Store].
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Delete", id)
	if m.ForcedErr != nil {
		return m.ForcedErr
	}
	delete(m.memories, id)
	return nil
}

// Count implements [memory.Store].
func (m *MemoryStore) Count(_ context.Context, filter memory.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Count", filter)
	if m.ForcedErr != nil {
		return 0, m.ForcedErr
	}
	n := 0
	for _, mem := range m.memories {
		if m.matches(mem, filter) {
			n++
		}
	}
	return n, nil
}

// ListOldest implements [memory.Store].
func (m *MemoryStore) ListOldest(_ context.Context, filter memory.Filter, limit int) ([]memory.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListOldest", filter, limit)
	if m.ForcedErr != nil {
		return nil, m.ForcedErr
	}
	out := []memory.Memory{}
	for _, mem := range m.memories {
		if m.matches(mem, filter) {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get implements [memory.Store].
func (m *MemoryStore) Get(_ context.Context, id string) (*memory.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Get", id)
	if m.ForcedErr != nil {
		return nil, m.ForcedErr
	}
	mem, ok := m.memories[id]
	if !ok {
		return nil, nil
	}
	out := mem
	return &out, nil
}

// All returns a snapshot of every stored memory, for test assertions.
func (m *MemoryStore) All() []memory.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Memory, 0, len(m.memories))
	for _, mem := range m.memories {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// matches evaluates filter against mem, including short-term TTL expiry.
// Must be called with m.mu held.
func (m *MemoryStore) matches(mem memory.Memory, filter memory.Filter) bool {
	if filter.SessionID != "" && mem.SessionID != filter.SessionID {
		return false
	}
	if filter.CharacterID != "" && mem.CharacterID != filter.CharacterID {
		return false
	}
	if filter.UserID != "" && mem.UserID != filter.UserID {
		return false
	}
	if filter.MemoryType != "" && mem.MemoryType != filter.MemoryType {
		return false
	}
	if filter.IsSummarized != nil && mem.IsSummarized != *filter.IsSummarized {
		return false
	}
	if filter.SummaryID != "" && mem.SummaryID != filter.SummaryID {
		return false
	}
	if filter.EntityName != "" {
		found := false
		for _, ref := range mem.EntityReferences {
			if strings.EqualFold(ref.EntityName, filter.EntityName) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if mem.MemoryType == memory.TypeShortTerm && m.Now().Sub(mem.CreatedAt) > memory.ShortTermTTL {
		return false
	}
	return true
}

// cosineSimilarity computes the cosine similarity of two vectors. Vectors of
// mismatched or zero length yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ─────────────────────────────────────────────────────────────────────────────
// SessionStore mock
// ─────────────────────────────────────────────────────────────────────────────

// SessionStore is a functional in-memory implementation of
// [memory.SessionStore] with real revision CAS semantics.
type SessionStore struct {
	recorder

	// LoadErr / SaveErr force errors when non-nil.
	LoadErr error
	SaveErr error

	checkpoints map[string]storedCheckpoint
	rolls       []memory.RollLog
}

type storedCheckpoint struct {
	revision int64
	payload  memory.Checkpoint
}

var _ memory.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates an empty functional session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{checkpoints: make(map[string]storedCheckpoint)}
}

// Load implements [memory.SessionStore].
func (s *SessionStore) Load(_ context.Context, sessionID string) (*memory.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Load", sessionID)
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	stored, ok := s.checkpoints[sessionID]
	if !ok {
		return nil, nil
	}
	cp := stored.payload
	cp.Revision = stored.revision
	return &cp, nil
}

// Save implements [memory.SessionStore].
func (s *SessionStore) Save(_ context.Context, cp *memory.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Save", *cp)
	if s.SaveErr != nil {
		return s.SaveErr
	}
	stored, ok := s.checkpoints[cp.Session.SessionID]
	if ok && stored.revision != cp.Revision {
		return memory.ErrRevisionConflict
	}
	s.checkpoints[cp.Session.SessionID] = storedCheckpoint{
		revision: cp.Revision + 1,
		payload:  *cp,
	}
	return nil
}

// List implements [memory.SessionStore].
func (s *SessionStore) List(_ context.Context, userID string) ([]memory.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("List", userID)
	infos := []memory.SessionInfo{}
	for _, stored := range s.checkpoints {
		sess := stored.payload.Session
		if sess.UserID != userID {
			continue
		}
		infos = append(infos, memory.SessionInfo{
			SessionID:   sess.SessionID,
			CharacterID: sess.CharacterID,
			GameMode:    sess.GameMode,
			UpdatedAt:   sess.UpdatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	return infos, nil
}

// LogRoll implements [memory.SessionStore].
func (s *SessionStore) LogRoll(_ context.Context, roll memory.RollLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("LogRoll", roll)
	s.rolls = append(s.rolls, roll)
	return nil
}

// Rolls returns a snapshot of all logged rolls.
func (s *SessionStore) Rolls() []memory.RollLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.RollLog, len(s.rolls))
	copy(out, s.rolls)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// CharacterStore mock
// ─────────────────────────────────────────────────────────────────────────────

// CharacterStore is a functional in-memory implementation of
// [memory.CharacterStore].
type CharacterStore struct {
	recorder

	// LoadErr / SaveErr force errors when non-nil.
	LoadErr error
	SaveErr error

	characters map[string]game.Character
}

var _ memory.CharacterStore = (*CharacterStore)(nil)

// NewCharacterStore creates an empty functional character store.
func NewCharacterStore() *CharacterStore {
	return &CharacterStore{characters: make(map[string]game.Character)}
}

// Load implements [memory.CharacterStore].
func (s *CharacterStore) Load(_ context.Context, characterID string) (*game.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Load", characterID)
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	ch, ok := s.characters[characterID]
	if !ok {
		return nil, nil
	}
	out := ch
	return &out, nil
}

// Save implements [memory.CharacterStore].
func (s *CharacterStore) Save(_ context.Context, ch *game.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Save", *ch)
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.characters[ch.ID] = *ch
	return nil
}
