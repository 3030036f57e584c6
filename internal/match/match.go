// ABOUTME: Match record, lifecycle states, and the spectator event types.
// ABOUTME: The orchestrator is the sole mutator of a match's live fields.

package match

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/moltpit/arena/internal/game"
)

// Status is the lifecycle state of a match. Termination is one-way:
// completed and cancelled are terminal and entered exactly once.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Match is one competitive game between registered players. The turn
// loop owns all mutable fields; the broadcast goroutine and API readers
// take snapshots under the mutex.
type Match struct {
	ID           string
	TournamentID string
	GameType     string
	Players      []game.Player

	// TimeControl overrides the engine default when non-nil.
	TimeControl *game.TimeControl

	engine game.Engine

	mu             sync.Mutex
	status         Status
	state          game.State
	result         *game.Result
	createdAt      time.Time
	startedAt      time.Time
	completedAt    time.Time
	activePlayerID string
	turnStartedAt  time.Time
	remaining      map[string]time.Duration
}

// Info is a read-only snapshot of a match for API consumers.
type Info struct {
	ID           string           `json:"id"`
	TournamentID string           `json:"tournamentId,omitempty"`
	GameType     string           `json:"gameType"`
	Players      []game.Player    `json:"players"`
	Status       Status           `json:"status"`
	Result       *game.Result     `json:"result,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	StartedAt    time.Time        `json:"startedAt,omitzero"`
	CompletedAt  time.Time        `json:"completedAt,omitzero"`
	ActivePlayer string           `json:"activePlayer,omitempty"`
	RemainingMs  map[string]int64 `json:"remainingMs,omitempty"`
}

// Snapshot returns a consistent view of the match's live fields.
func (m *Match) Snapshot() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := make(map[string]int64, len(m.remaining))
	for id, d := range m.remaining {
		remaining[id] = d.Milliseconds()
	}
	return Info{
		ID:           m.ID,
		TournamentID: m.TournamentID,
		GameType:     m.GameType,
		Players:      m.Players,
		Status:       m.status,
		Result:       m.result,
		CreatedAt:    m.createdAt,
		StartedAt:    m.startedAt,
		CompletedAt:  m.completedAt,
		ActivePlayer: m.activePlayerID,
		RemainingMs:  remaining,
	}
}

// Status returns the match's current lifecycle state.
func (m *Match) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// effectiveTimeControl is the match override or the engine default.
func (m *Match) effectiveTimeControl() game.TimeControl {
	if m.TimeControl != nil {
		return *m.TimeControl
	}
	return m.engine.DefaultTimeControl()
}

// EventKind discriminates spectator events.
type EventKind string

const (
	EventGameStart  EventKind = "game_start"
	EventMove       EventKind = "move"
	EventTrashTalk  EventKind = "trash_talk"
	EventGameEnd    EventKind = "game_end"
	EventError      EventKind = "error"
	EventTimeout    EventKind = "timeout"
	EventTimeUpdate EventKind = "time_update"
)

// Event is one immutable spectator event. Events are delivered in
// emission order to every subscriber of the match.
type Event struct {
	Kind      EventKind `json:"kind"`
	MatchID   string    `json:"matchId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// GameStartPayload accompanies EventGameStart.
type GameStartPayload struct {
	State       json.RawMessage  `json:"state"`
	TimeControl game.TimeControl `json:"timeControl"`
	Players     []game.Player    `json:"players"`
}

// MovePayload accompanies EventMove.
type MovePayload struct {
	PlayerID       string          `json:"playerId"`
	Action         json.RawMessage `json:"action"`
	State          json.RawMessage `json:"state"`
	ThinkingTimeMs int64           `json:"thinkingTimeMs"`
}

// TrashTalkPayload accompanies EventTrashTalk.
type TrashTalkPayload struct {
	PlayerID string `json:"playerId"`
	Text     string `json:"text"`
}

// GameEndPayload accompanies EventGameEnd.
type GameEndPayload struct {
	Result *game.Result `json:"result"`
}

// ErrorPayload accompanies EventError.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TimeoutPayload accompanies EventTimeout.
type TimeoutPayload struct {
	PlayerID string `json:"playerId"`
}

// TimeUpdatePayload accompanies EventTimeUpdate.
type TimeUpdatePayload struct {
	PlayerID    string `json:"playerId"`
	RemainingMs int64  `json:"remainingMs"`
}
