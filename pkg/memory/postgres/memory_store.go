package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/loremaster-ai/loremaster/pkg/memory"
)

// MemoryStoreImpl is the tiered vector memory backed by a PostgreSQL
// memories table with a pgvector HNSW index for fast approximate
// nearest-neighbour search.
//
// Obtain one via [Store.Memories] rather than constructing directly.
// All methods are safe for concurrent use.
type MemoryStoreImpl struct {
	pool *pgxpool.Pool
}

// Upsert implements [memory.Store]. It writes mem into the memories table,
// replacing any row with the same MemoryID.
func (s *MemoryStoreImpl) Upsert(ctx context.Context, mem memory.Memory) error {
	const q = `
		INSERT INTO memories
		    (memory_id, session_id, content, embedding, memory_type, character_id,
		     user_id, importance, created_at, last_accessed, is_summarized,
		     summary_id, summary_of, entity_refs, narrative, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (memory_id) DO UPDATE SET
		    session_id    = EXCLUDED.session_id,
		    content       = EXCLUDED.content,
		    embedding     = EXCLUDED.embedding,
		    memory_type   = EXCLUDED.memory_type,
		    character_id  = EXCLUDED.character_id,
		    user_id       = EXCLUDED.user_id,
		    importance    = EXCLUDED.importance,
		    created_at    = EXCLUDED.created_at,
		    last_accessed = EXCLUDED.last_accessed,
		    is_summarized = EXCLUDED.is_summarized,
		    summary_id    = EXCLUDED.summary_id,
		    summary_of    = EXCLUDED.summary_of,
		    entity_refs   = EXCLUDED.entity_refs,
		    narrative     = EXCLUDED.narrative,
		    metadata      = EXCLUDED.metadata`

	summaryOf, err := json.Marshal(orEmptyStrings(mem.SummaryOf))
	if err != nil {
		return fmt.Errorf("memory store: marshal summary_of: %w", err)
	}
	entityRefs, err := json.Marshal(orEmptyRefs(mem.EntityReferences))
	if err != nil {
		return fmt.Errorf("memory store: marshal entity_refs: %w", err)
	}
	narrative, err := json.Marshal(mem.Narrative)
	if err != nil {
		return fmt.Errorf("memory store: marshal narrative: %w", err)
	}
	metadata, err := json.Marshal(orEmptyMap(mem.Metadata))
	if err != nil {
		return fmt.Errorf("memory store: marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, q,
		mem.MemoryID,
		mem.SessionID,
		mem.Content,
		pgvector.NewVector(mem.Embedding),
		string(mem.MemoryType),
		mem.CharacterID,
		mem.UserID,
		mem.Importance,
		mem.CreatedAt,
		mem.LastAccessed,
		mem.IsSummarized,
		mem.SummaryID,
		summaryOf,
		entityRefs,
		narrative,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("memory store: upsert: %w", err)
	}
	return nil
}

// Search implements [memory.Store]. Results are ordered by descending cosine
// similarity (1 - cosine distance) and cut off at minSim. Short-term
// memories past their TTL are excluded.
func (s *MemoryStoreImpl) Search(ctx context.Context, embedding []float32, filter memory.Filter, k int, minSim float64) ([]memory.SearchResult, error) {
	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := filterConditions(filter, next)
	// Cosine similarity cutoff: <=> is cosine distance, so sim = 1 - distance.
	conditions = append(conditions, "(1 - (embedding <=> $1)) >= "+next(minSim))
	conditions = append(conditions, expiredShortTermCondition(next))

	args = append(args, k)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM   memories
		WHERE  %s
		ORDER  BY similarity DESC
		LIMIT  %s`, memoryColumns, strings.Join(conditions, "\n  AND  "), limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.SearchResult, error) {
		var sr memory.SearchResult
		m, err := scanMemory(row, &sr.Similarity)
		if err != nil {
			return memory.SearchResult{}, err
		}
		sr.Memory = *m
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.SearchResult{}
	}
	return results, nil
}

// UpdatePayload implements [memory.Store]. Unknown keys are rejected so a
// typo cannot silently no-op.
func (s *MemoryStoreImpl) UpdatePayload(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	args := []any{id} // $1 = memory_id
	var sets []string
	for key, val := range fields {
		switch key {
		case "is_summarized", "summary_id", "importance", "last_accessed":
			args = append(args, val)
			sets = append(sets, fmt.Sprintf("%s = $%d", key, len(args)))
		default:
			return fmt.Errorf("memory store: update payload: unsupported field %q", key)
		}
	}

	q := fmt.Sprintf("UPDATE memories SET %s WHERE memory_id = $1", strings.Join(sets, ", "))
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("memory store: update payload: %w", err)
	}
	return nil
}

// Delete implements [memory.Store]. Deleting a non-existent memory is not an
// error.
func (s *MemoryStoreImpl) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM memories WHERE memory_id = $1", id); err != nil {
		return fmt.Errorf("memory store: delete: %w", err)
	}
	return nil
}

// Count implements [memory.Store].
func (s *MemoryStoreImpl) Count(ctx context.Context, filter memory.Filter) (int, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := filterConditions(filter, next)
	conditions = append(conditions, expiredShortTermCondition(next))

	q := "SELECT count(*) FROM memories WHERE " + strings.Join(conditions, "\n  AND  ")

	var n int
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("memory store: count: %w", err)
	}
	return n, nil
}

// ListOldest implements [memory.Store]. It returns up to limit memories
// matching filter, oldest first — the summarization worker's batch query.
func (s *MemoryStoreImpl) ListOldest(ctx context.Context, filter memory.Filter, limit int) ([]memory.Memory, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := filterConditions(filter, next)
	conditions = append(conditions, expiredShortTermCondition(next))

	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT %s
		FROM   memories
		WHERE  %s
		ORDER  BY created_at
		LIMIT  %s`, memoryColumns, strings.Join(conditions, "\n  AND  "), limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory store: list oldest: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Memory, error) {
		m, err := scanMemory(row, nil)
		if err != nil {
			return memory.Memory{}, err
		}
		return *m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.Memory{}
	}
	return results, nil
}

// Get implements [memory.Store]. Returns (nil, nil) when the memory does not
// exist.
func (s *MemoryStoreImpl) Get(ctx context.Context, id string) (*memory.Memory, error) {
	q := fmt.Sprintf("SELECT %s FROM memories WHERE memory_id = $1", memoryColumns)

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("memory store: get: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	m, err := scanMemory(rows, nil)
	if err != nil {
		return nil, fmt.Errorf("memory store: scan: %w", err)
	}
	return m, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// memoryColumns is the canonical SELECT column list matching scanMemory.
const memoryColumns = `memory_id, session_id, content, embedding, memory_type,
	character_id, user_id, importance, created_at, last_accessed,
	is_summarized, summary_id, summary_of, entity_refs, narrative, metadata`

// filterConditions translates a memory.Filter into SQL conditions. The next
// closure appends the bind value and returns its placeholder.
func filterConditions(filter memory.Filter, next func(any) string) []string {
	conditions := []string{"TRUE"}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(filter.SessionID))
	}
	if filter.CharacterID != "" {
		conditions = append(conditions, "character_id = "+next(filter.CharacterID))
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = "+next(filter.UserID))
	}
	if filter.MemoryType != "" {
		conditions = append(conditions, "memory_type = "+next(string(filter.MemoryType)))
	}
	if filter.IsSummarized != nil {
		conditions = append(conditions, "is_summarized = "+next(*filter.IsSummarized))
	}
	if filter.SummaryID != "" {
		conditions = append(conditions, "summary_id = "+next(filter.SummaryID))
	}
	if filter.EntityName != "" {
		placeholder := next(filter.EntityName)
		conditions = append(conditions, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM jsonb_array_elements(entity_refs) er
			 WHERE lower(er->>'entity_name') = lower(%s))`, placeholder))
	}
	return conditions
}

// expiredShortTermCondition excludes short-term memories past their TTL.
func expiredShortTermCondition(next func(any) string) string {
	cutoff := next(time.Now().Add(-memory.ShortTermTTL))
	return fmt.Sprintf("NOT (memory_type = 'short_term' AND created_at < %s)", cutoff)
}

// scanMemory scans one memories row. When similarity is non-nil the row is
// expected to carry a trailing similarity column.
func scanMemory(row pgx.Row, similarity *float64) (*memory.Memory, error) {
	var (
		m          memory.Memory
		vec        pgvector.Vector
		memType    string
		summaryOf  []byte
		entityRefs []byte
		narrative  []byte
		metadata   []byte
	)

	dest := []any{
		&m.MemoryID, &m.SessionID, &m.Content, &vec, &memType,
		&m.CharacterID, &m.UserID, &m.Importance, &m.CreatedAt, &m.LastAccessed,
		&m.IsSummarized, &m.SummaryID, &summaryOf, &entityRefs, &narrative, &metadata,
	}
	if similarity != nil {
		dest = append(dest, similarity)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	m.Embedding = vec.Slice()
	m.MemoryType = memory.Type(memType)
	if err := json.Unmarshal(summaryOf, &m.SummaryOf); err != nil {
		return nil, fmt.Errorf("unmarshal summary_of: %w", err)
	}
	if err := json.Unmarshal(entityRefs, &m.EntityReferences); err != nil {
		return nil, fmt.Errorf("unmarshal entity_refs: %w", err)
	}
	if err := json.Unmarshal(narrative, &m.Narrative); err != nil {
		return nil, fmt.Errorf("unmarshal narrative: %w", err)
	}
	if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &m, nil
}

func orEmptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyRefs(s []memory.EntityReference) []memory.EntityReference {
	if s == nil {
		return []memory.EntityReference{}
	}
	return s
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
