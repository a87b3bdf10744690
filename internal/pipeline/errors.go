package pipeline

import "errors"

// Sentinel errors surfaced to the transport layer. Everything else is a
// wrapped internal failure.
var (
	// ErrSessionNotFound means no checkpoint exists for the session ID.
	ErrSessionNotFound = errors.New("pipeline: session not found")

	// ErrUnknownDice rejects a dice type outside d4..d100.
	ErrUnknownDice = errors.New("pipeline: unknown dice type")
)

// emptyInputResponse is the DM reply to a blank player message. The turn
// still runs as a general exchange so history and the checkpoint advance
// like any other turn, just with no mechanics and no time cost.
const emptyInputResponse = `The Dungeon Master waits, but no words come. "Speak up, adventurer. What would you like to do?"`

// degradedResponse is the DM apology used when a pipeline node fails. The
// turn still checkpoints so play continues from a consistent state.
const degradedResponse = `The Dungeon Master rubs their temples. "Forgive me, I lost the thread of the tale for a moment. Tell me that again?"`

// generatorFallback is returned when no generator backend produced a
// response. The world state is left exactly as the narrative node set it.
const generatorFallback = `The tale catches in the telling and the world seems to hold its breath. Give it a moment, then try your action again.`
