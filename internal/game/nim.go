// ABOUTME: Built-in nim engine: 21 stones, take 1-3 per turn, taking the last stone wins.
// ABOUTME: Small enough to keep the arena runnable end to end without external engines.

package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	nimStartingPile = 21
	nimMaxTake      = 3
)

// ErrNotYourTurn indicates a move by a player whose clock is not running.
var ErrNotYourTurn = errors.New("not your turn")

// NimEngine implements Engine for a two-player game of nim.
type NimEngine struct{}

// NewNimEngine returns the built-in nim engine.
func NewNimEngine() *NimEngine {
	return &NimEngine{}
}

type nimState struct {
	matchID string
	players []Player
	pile    int
	turn    int
	history []MoveRecord
}

type nimAction struct {
	Take int `json:"take"`
}

func (e *NimEngine) GameType() string { return "nim" }
func (e *NimEngine) MinPlayers() int  { return 2 }
func (e *NimEngine) MaxPlayers() int  { return 2 }

func (e *NimEngine) DefaultTimeControl() TimeControl {
	return TimeControl{
		InitialTime:  3 * time.Minute,
		Increment:    2 * time.Second,
		MinMoveDelay: 500 * time.Millisecond,
	}
}

func (e *NimEngine) DefaultTimePerMove() time.Duration { return 30 * time.Second }

func (e *NimEngine) NewGame(matchID string, players []Player) (State, error) {
	if len(players) != 2 {
		return nil, fmt.Errorf("nim requires exactly 2 players, got %d", len(players))
	}
	return &nimState{
		matchID: matchID,
		players: append([]Player(nil), players...),
		pile:    nimStartingPile,
	}, nil
}

func (e *NimEngine) IsGameOver(state State) bool {
	return state.(*nimState).pile == 0
}

func (e *NimEngine) CurrentPlayer(state State) (Player, error) {
	s := state.(*nimState)
	if s.pile == 0 {
		return Player{}, errors.New("game is over")
	}
	return s.players[s.turn], nil
}

func (e *NimEngine) SerializeForAgent(state State, playerID string) (json.RawMessage, error) {
	s := state.(*nimState)

	// Nim has no hidden information; the agent view adds turn context and
	// the enumerated valid moves the simulated transport relies on.
	validMoves := make([]nimAction, 0, nimMaxTake)
	for take := 1; take <= nimMaxTake && take <= s.pile; take++ {
		validMoves = append(validMoves, nimAction{Take: take})
	}

	var opponent Player
	for _, p := range s.players {
		if p.ID != playerID {
			opponent = p
		}
	}

	view := map[string]any{
		"pile":       s.pile,
		"isYourTurn": s.players[s.turn].ID == playerID,
		"validMoves": validMoves,
		"opponent":   map[string]any{"name": opponent.Name, "rating": opponent.Rating},
	}
	return json.Marshal(view)
}

func (e *NimEngine) SerializeForSpectator(state State) (json.RawMessage, error) {
	s := state.(*nimState)

	view := map[string]any{
		"pile":    s.pile,
		"players": s.players,
		"history": s.history,
	}
	if s.pile > 0 {
		view["currentPlayer"] = s.players[s.turn].ID
	}
	return json.Marshal(view)
}

func (e *NimEngine) ApplyMove(state State, playerID string, action json.RawMessage) (State, error) {
	s := state.(*nimState)

	if s.players[s.turn].ID != playerID {
		return nil, fmt.Errorf("%w: %s", ErrNotYourTurn, playerID)
	}

	var move nimAction
	if err := json.Unmarshal(action, &move); err != nil {
		return nil, fmt.Errorf("unparseable nim action: %w", err)
	}
	if move.Take < 1 || move.Take > nimMaxTake || move.Take > s.pile {
		return nil, fmt.Errorf("illegal nim move: take %d from pile of %d", move.Take, s.pile)
	}

	s.pile -= move.Take
	s.history = append(s.history, MoveRecord{
		PlayerID: playerID,
		Action:   action,
		Notation: fmt.Sprintf("take %d", move.Take),
	})
	if s.pile > 0 {
		s.turn = (s.turn + 1) % len(s.players)
	}
	return s, nil
}

func (e *NimEngine) Result(state State) (*Result, error) {
	s := state.(*nimState)
	if s.pile != 0 {
		return nil, errors.New("game is not over")
	}

	// The player who took the last stone (still the turn holder) wins.
	winner := s.players[s.turn]
	loser := s.players[(s.turn+1)%len(s.players)]

	final, err := e.SerializeForSpectator(s)
	if err != nil {
		return nil, err
	}
	return &Result{
		WinnerID:   winner.ID,
		LoserID:    loser.ID,
		Reason:     fmt.Sprintf("%s took the last stone", winner.Name),
		FinalState: final,
	}, nil
}

func (e *NimEngine) AnnotateLastMove(state State, thinkingTime time.Duration, trashTalk string) {
	s := state.(*nimState)
	if len(s.history) == 0 {
		return
	}
	last := &s.history[len(s.history)-1]
	last.ThinkingTimeMs = thinkingTime.Milliseconds()
	last.TrashTalk = trashTalk
}

func (e *NimEngine) History(state State) []MoveRecord {
	s := state.(*nimState)
	return append([]MoveRecord(nil), s.history...)
}
