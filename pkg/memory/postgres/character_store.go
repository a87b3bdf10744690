package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loremaster-ai/loremaster/pkg/game"
)

// CharacterStoreImpl persists character sheets as JSONB documents.
//
// Obtain one via [Store.Characters] rather than constructing directly.
// All methods are safe for concurrent use.
type CharacterStoreImpl struct {
	pool *pgxpool.Pool
}

// Load implements [memory.CharacterStore]. Returns (nil, nil) when no
// character exists for characterID.
func (s *CharacterStoreImpl) Load(ctx context.Context, characterID string) (*game.Character, error) {
	const q = `
		SELECT payload
		FROM   characters
		WHERE  character_id = $1`

	var payload []byte
	err := s.pool.QueryRow(ctx, q, characterID).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("character store: load: %w", err)
	}

	var ch game.Character
	if err := json.Unmarshal(payload, &ch); err != nil {
		return nil, fmt.Errorf("character store: unmarshal character: %w", err)
	}
	return &ch, nil
}

// Save implements [memory.CharacterStore].
func (s *CharacterStoreImpl) Save(ctx context.Context, ch *game.Character) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("character store: marshal character: %w", err)
	}

	const q = `
		INSERT INTO characters (character_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (character_id) DO UPDATE SET
		    payload    = EXCLUDED.payload,
		    updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, ch.ID, payload); err != nil {
		return fmt.Errorf("character store: save: %w", err)
	}
	return nil
}
