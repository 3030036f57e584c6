// ABOUTME: Core types and the Engine capability interface for pluggable game rules.
// ABOUTME: The orchestrator drives matches through this contract; rules stay engine-owned.

package game

import (
	"encoding/json"
	"time"
)

// State is an opaque game state owned by the engine that produced it.
// The orchestrator never inspects it; it only threads it through the
// Engine contract.
type State any

// Player identifies one participant in a match.
type Player struct {
	ID      string `json:"id"`
	AgentID string `json:"agentId"`
	Account string `json:"account,omitempty"`
	Name    string `json:"name"`
	Rating  int    `json:"rating"`
}

// TimeControl is a chess-clock-style rule set: each player starts with
// InitialTime, gains Increment after every completed move, and no move
// may be applied faster than MinMoveDelay after it was requested.
type TimeControl struct {
	InitialTime  time.Duration `json:"-"`
	Increment    time.Duration `json:"-"`
	MinMoveDelay time.Duration `json:"-"`
}

// timeControlJSON is the wire form of TimeControl, in milliseconds.
type timeControlJSON struct {
	InitialTimeMs  int64 `json:"initialTimeMs"`
	IncrementMs    int64 `json:"incrementMs"`
	MinMoveDelayMs int64 `json:"minMoveDelayMs"`
}

// MarshalJSON renders the time control as integer milliseconds.
func (tc TimeControl) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeControlJSON{
		InitialTimeMs:  tc.InitialTime.Milliseconds(),
		IncrementMs:    tc.Increment.Milliseconds(),
		MinMoveDelayMs: tc.MinMoveDelay.Milliseconds(),
	})
}

// UnmarshalJSON parses the millisecond wire form.
func (tc *TimeControl) UnmarshalJSON(data []byte) error {
	var wire timeControlJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	tc.InitialTime = time.Duration(wire.InitialTimeMs) * time.Millisecond
	tc.Increment = time.Duration(wire.IncrementMs) * time.Millisecond
	tc.MinMoveDelay = time.Duration(wire.MinMoveDelayMs) * time.Millisecond
	return nil
}

// Result is the canonical outcome of a finished game. Winner and Loser
// are empty on a draw. RatingDeltas are computed by an external
// collaborator and carried as data.
type Result struct {
	WinnerID     string          `json:"winnerId,omitempty"`
	LoserID      string          `json:"loserId,omitempty"`
	Draw         bool            `json:"draw"`
	Reason       string          `json:"reason"`
	FinalState   json.RawMessage `json:"finalState,omitempty"`
	RatingDeltas map[string]int  `json:"ratingDeltas,omitempty"`
}

// MoveRecord is one entry of a game's move history, as exposed for
// archival. ThinkingTime and TrashTalk are annotated by the orchestrator
// after the engine appends the entry.
type MoveRecord struct {
	PlayerID       string          `json:"playerId"`
	Action         json.RawMessage `json:"action"`
	Notation       string          `json:"notation,omitempty"`
	ThinkingTimeMs int64           `json:"thinkingTimeMs"`
	TrashTalk      string          `json:"trashTalk,omitempty"`
}

// Engine is the capability set a game type must provide. Implementations
// must treat every State they receive as one they previously returned.
//
// ApplyMove returns an engine-specific error on illegal input; the
// orchestrator treats that as a forfeiture condition, not a retry.
type Engine interface {
	// GameType is the registry key, e.g. "chess" or "nim".
	GameType() string

	MinPlayers() int
	MaxPlayers() int

	// DefaultTimeControl is used when a match carries no override.
	DefaultTimeControl() TimeControl

	// DefaultTimePerMove caps a single move request independently of the
	// player's remaining clock.
	DefaultTimePerMove() time.Duration

	NewGame(matchID string, players []Player) (State, error)

	IsGameOver(state State) bool

	CurrentPlayer(state State) (Player, error)

	// SerializeForAgent renders the state as seen by one player, hiding
	// information that player is not allowed to see.
	SerializeForAgent(state State, playerID string) (json.RawMessage, error)

	// SerializeForSpectator renders a view with no hidden information,
	// safe to broadcast publicly.
	SerializeForSpectator(state State) (json.RawMessage, error)

	ApplyMove(state State, playerID string, action json.RawMessage) (State, error)

	Result(state State) (*Result, error)

	// AnnotateLastMove attaches the measured thinking time and optional
	// flavor text to the most recent history entry.
	AnnotateLastMove(state State, thinkingTime time.Duration, trashTalk string)

	// History returns the move list for archival.
	History(state State) []MoveRecord
}
