// Package postgres provides a PostgreSQL-backed implementation of the
// Loremaster memory architecture: the tiered vector memory store and the
// session checkpoint store.
//
// Both stores share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//
//	// Vector memory
//	_ = store.Memories().Upsert(ctx, mem)
//
//	// Checkpoints
//	cp, _ := store.Sessions().Load(ctx, sessionID)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — session checkpoints and roll log
// ─────────────────────────────────────────────────────────────────────────────

const ddlSessions = `
CREATE TABLE IF NOT EXISTS session_checkpoints (
    session_id  TEXT         PRIMARY KEY,
    user_id     TEXT         NOT NULL DEFAULT '',
    revision    BIGINT       NOT NULL DEFAULT 0,
    payload     JSONB        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_user_id
    ON session_checkpoints (user_id);

CREATE TABLE IF NOT EXISTS roll_log (
    roll_id     TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    user_id     TEXT         NOT NULL DEFAULT '',
    dice_type   TEXT         NOT NULL,
    roll        INT          NOT NULL,
    modifier    INT          NOT NULL DEFAULT 0,
    total       INT          NOT NULL,
    rolled_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_roll_log_session_id
    ON roll_log (session_id);

CREATE TABLE IF NOT EXISTS characters (
    character_id  TEXT         PRIMARY KEY,
    payload       JSONB        NOT NULL,
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlMemories returns the memory-table DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlMemories(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
    memory_id      TEXT         PRIMARY KEY,
    session_id     TEXT         NOT NULL,
    content        TEXT         NOT NULL,
    embedding      vector(%d),
    memory_type    TEXT         NOT NULL,
    character_id   TEXT         NOT NULL DEFAULT '',
    user_id        TEXT         NOT NULL DEFAULT '',
    importance     INT          NOT NULL DEFAULT 5,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_accessed  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    is_summarized  BOOLEAN      NOT NULL DEFAULT FALSE,
    summary_id     TEXT         NOT NULL DEFAULT '',
    summary_of     JSONB        NOT NULL DEFAULT '[]',
    entity_refs    JSONB        NOT NULL DEFAULT '[]',
    narrative      JSONB        NOT NULL DEFAULT '{}',
    metadata       JSONB        NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_memories_session_type
    ON memories (session_id, memory_type);

CREATE INDEX IF NOT EXISTS idx_memories_created_at
    ON memories (created_at);

CREATE INDEX IF NOT EXISTS idx_memories_is_summarized
    ON memories (is_summarized);

CREATE INDEX IF NOT EXISTS idx_memories_embedding
    ON memories USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlMemories(embeddingDimensions),
		ddlSessions,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
