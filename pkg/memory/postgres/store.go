package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/loremaster-ai/loremaster/pkg/memory"
)

// Compile-time interface checks.
var (
	_ memory.Store          = (*MemoryStoreImpl)(nil)
	_ memory.SessionStore   = (*SessionStoreImpl)(nil)
	_ memory.CharacterStore = (*CharacterStoreImpl)(nil)
)

// Store is the central PostgreSQL-backed store for Loremaster. It holds a
// single [pgxpool.Pool] and exposes the two persistence surfaces:
//
//   - [Store.Memories] returns a [MemoryStoreImpl] implementing [memory.Store]
//   - [Store.Sessions] returns a [SessionStoreImpl] implementing [memory.SessionStore]
//
// All operations are safe for concurrent use.
type Store struct {
	pool       *pgxpool.Pool
	memories   *MemoryStoreImpl
	sessions   *SessionStoreImpl
	characters *CharacterStoreImpl
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [memory.Memory.Embedding] values.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:       pool,
		memories:   &MemoryStoreImpl{pool: pool},
		sessions:   &SessionStoreImpl{pool: pool},
		characters: &CharacterStoreImpl{pool: pool},
	}, nil
}

// Memories returns the vector memory implementation which satisfies [memory.Store].
func (s *Store) Memories() *MemoryStoreImpl { return s.memories }

// Sessions returns the checkpoint implementation which satisfies [memory.SessionStore].
func (s *Store) Sessions() *SessionStoreImpl { return s.sessions }

// Characters returns the character sheet implementation which satisfies [memory.CharacterStore].
func (s *Store) Characters() *CharacterStoreImpl { return s.characters }

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
