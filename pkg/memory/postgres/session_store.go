package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loremaster-ai/loremaster/pkg/game"
	"github.com/loremaster-ai/loremaster/pkg/memory"
)

// gameModeFromString converts a stored mode string, falling back to intro
// for unrecognised values so a listing never fails on legacy rows.
func gameModeFromString(s string) game.Mode {
	m := game.Mode(s)
	if !m.IsValid() {
		return game.ModeIntro
	}
	return m
}

// SessionStoreImpl persists session checkpoints in a JSONB column guarded by
// a monotonic revision, plus the dice-roll log.
//
// Obtain one via [Store.Sessions] rather than constructing directly.
// All methods are safe for concurrent use.
type SessionStoreImpl struct {
	pool *pgxpool.Pool
}

// Load implements [memory.SessionStore]. Returns (nil, nil) when no
// checkpoint exists for sessionID.
func (s *SessionStoreImpl) Load(ctx context.Context, sessionID string) (*memory.Checkpoint, error) {
	const q = `
		SELECT revision, payload
		FROM   session_checkpoints
		WHERE  session_id = $1`

	var (
		revision int64
		payload  []byte
	)
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(&revision, &payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session store: load: %w", err)
	}

	var cp memory.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("session store: unmarshal checkpoint: %w", err)
	}
	// The column is authoritative; the payload copy may lag behind.
	cp.Revision = revision
	return &cp, nil
}

// Save implements [memory.SessionStore]. The write is a single conditional
// upsert: it succeeds only when the stored revision equals cp.Revision (or
// no row exists yet and cp.Revision is 0). On success the stored revision
// becomes cp.Revision+1.
func (s *SessionStoreImpl) Save(ctx context.Context, cp *memory.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("session store: marshal checkpoint: %w", err)
	}

	const q = `
		INSERT INTO session_checkpoints (session_id, user_id, revision, payload, updated_at)
		VALUES ($1, $2, $3 + 1, $4, now())
		ON CONFLICT (session_id) DO UPDATE SET
		    user_id    = EXCLUDED.user_id,
		    revision   = session_checkpoints.revision + 1,
		    payload    = EXCLUDED.payload,
		    updated_at = now()
		WHERE session_checkpoints.revision = $3`

	tag, err := s.pool.Exec(ctx, q,
		cp.Session.SessionID,
		cp.Session.UserID,
		cp.Revision,
		payload,
	)
	if err != nil {
		return fmt.Errorf("session store: save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrRevisionConflict
	}
	return nil
}

// List implements [memory.SessionStore]. Sessions are returned most recently
// updated first.
func (s *SessionStoreImpl) List(ctx context.Context, userID string) ([]memory.SessionInfo, error) {
	const q = `
		SELECT payload->'session'->>'session_id',
		       payload->'session'->>'character_id',
		       payload->'session'->>'game_mode',
		       updated_at
		FROM   session_checkpoints
		WHERE  user_id = $1
		ORDER  BY updated_at DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("session store: list: %w", err)
	}

	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.SessionInfo, error) {
		var (
			info memory.SessionInfo
			mode string
		)
		if err := row.Scan(&info.SessionID, &info.CharacterID, &mode, &info.UpdatedAt); err != nil {
			return memory.SessionInfo{}, err
		}
		info.GameMode = gameModeFromString(mode)
		return info, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session store: scan rows: %w", err)
	}
	if infos == nil {
		infos = []memory.SessionInfo{}
	}
	return infos, nil
}

// LogRoll implements [memory.SessionStore].
func (s *SessionStoreImpl) LogRoll(ctx context.Context, roll memory.RollLog) error {
	const q = `
		INSERT INTO roll_log (roll_id, session_id, user_id, dice_type, roll, modifier, total, rolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		roll.RollID,
		roll.SessionID,
		roll.UserID,
		roll.DiceType,
		roll.Roll,
		roll.Modifier,
		roll.Total,
		roll.RolledAt,
	)
	if err != nil {
		return fmt.Errorf("session store: log roll: %w", err)
	}
	return nil
}
