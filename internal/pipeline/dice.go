package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/loremaster-ai/loremaster/pkg/memory"
)

// diceSides maps accepted dice types to their face count.
var diceSides = map[string]int{
	"d4":   4,
	"d6":   6,
	"d8":   8,
	"d10":  10,
	"d12":  12,
	"d20":  20,
	"d100": 100,
}

// Roll rolls one die of the given type, applies the modifier, and appends
// the roll to the persistent log. Dice are never rolled by the model; this
// is the only source of rolls in the engine.
func (e *Engine) Roll(ctx context.Context, sessionID, userID, diceType string, modifier int) (memory.RollLog, error) {
	sides, ok := diceSides[diceType]
	if !ok {
		return memory.RollLog{}, fmt.Errorf("%w: %q", ErrUnknownDice, diceType)
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(sides)))
	if err != nil {
		return memory.RollLog{}, fmt.Errorf("pipeline: roll: %w", err)
	}
	roll := int(n.Int64()) + 1

	log := memory.RollLog{
		RollID:    uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		DiceType:  diceType,
		Roll:      roll,
		Modifier:  modifier,
		Total:     roll + modifier,
		RolledAt:  e.now(),
	}
	if err := e.sessions.LogRoll(ctx, log); err != nil {
		// The roll already happened; losing the audit line must not void it.
		e.logger.Warn("roll log write failed", "session_id", sessionID, "error", err)
	}
	return log, nil
}
