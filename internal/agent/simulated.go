// ABOUTME: Simulated transport: synthesizes a decision from the snapshot's valid moves.
// ABOUTME: Default for unregistered agents and the sandboxed-process stub.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"
)

// ErrNoValidMoves indicates the snapshot exposed no enumerable actions,
// so no decision can be synthesized.
var ErrNoValidMoves = errors.New("snapshot exposes no valid moves")

var trashTalkLines = []string{
	"Into the pit!",
	"Is that all you've got?",
	"I calculated this ten moves ago.",
	"My clock isn't even warm yet.",
	"Bold choice. Wrong, but bold.",
}

// simulateDecision picks a random move from the snapshot's validMoves
// after a short randomized delay, occasionally attaching flavor text.
func simulateDecision(ctx context.Context, snapshot json.RawMessage, timeout time.Duration) (Decision, error) {
	var view struct {
		ValidMoves []json.RawMessage `json:"validMoves"`
	}
	if err := json.Unmarshal(snapshot, &view); err != nil {
		return Decision{}, err
	}
	if len(view.ValidMoves) == 0 {
		return Decision{}, ErrNoValidMoves
	}

	// Think for 50-250ms, but stay well under the deadline.
	delay := 50*time.Millisecond + time.Duration(rand.Int63n(int64(200*time.Millisecond)))
	if limit := timeout / 4; delay > limit {
		delay = limit
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}

	decision := Decision{Action: view.ValidMoves[rand.Intn(len(view.ValidMoves))]}
	if rand.Intn(4) == 0 {
		decision.TrashTalk = trashTalkLines[rand.Intn(len(trashTalkLines))]
	}
	return decision, nil
}
