// ABOUTME: Correlation table for outstanding socket-bound move requests.
// ABOUTME: Guarantees each request settles exactly once: reply, deadline, or disconnect.

package agent

import (
	"errors"
	"sync"
	"time"
)

// ErrRequestInFlight indicates a socket-bound agent already has an
// outstanding request. Pending requests are keyed by agent id, so a
// socket-bound agent can be live in at most one match at a time.
var ErrRequestInFlight = errors.New("agent already has a request in flight")

// ErrDecisionTimeout indicates the agent did not answer before the deadline.
var ErrDecisionTimeout = errors.New("agent timed out")

// ErrAgentDisconnected indicates the agent's binding was torn down while
// a request was outstanding.
var ErrAgentDisconnected = errors.New("agent disconnected")

type outcome struct {
	decision Decision
	err      error
}

// pendingRequest correlates one outstanding request. The done channel is
// buffered so the settling side never blocks, and settle delivers to it
// at most once.
type pendingRequest struct {
	agentID string
	matchID string
	timer   *time.Timer
	done    chan outcome
}

// pendingTable holds at most one pendingRequest per agent id.
type pendingTable struct {
	mu      sync.Mutex
	byAgent map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{byAgent: make(map[string]*pendingRequest)}
}

// create registers a request and arms its deadline timer.
// Returns ErrRequestInFlight if the agent already has one outstanding.
func (t *pendingTable) create(agentID, matchID string, timeout time.Duration) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byAgent[agentID]; exists {
		return nil, ErrRequestInFlight
	}

	req := &pendingRequest{
		agentID: agentID,
		matchID: matchID,
		done:    make(chan outcome, 1),
	}
	req.timer = time.AfterFunc(timeout, func() {
		t.settle(req, outcome{err: ErrDecisionTimeout})
	})
	t.byAgent[agentID] = req
	return req, nil
}

// settle resolves req if it is still the table's current entry for its
// agent. The pointer comparison makes a stale timer firing after the slot
// was cleared (or reused) a no-op. Returns true if this call won.
func (t *pendingTable) settle(req *pendingRequest, out outcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.byAgent[req.agentID]
	if !ok || current != req {
		return false
	}

	delete(t.byAgent, req.agentID)
	req.timer.Stop()
	req.done <- out
	return true
}

// resolve settles the agent's outstanding request with a decision.
// Returns false if no request was outstanding.
func (t *pendingTable) resolve(agentID string, decision Decision) bool {
	t.mu.Lock()
	req, ok := t.byAgent[agentID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return t.settle(req, outcome{decision: decision})
}

// fail settles the agent's outstanding request with an error.
// Returns false if no request was outstanding.
func (t *pendingTable) fail(agentID string, err error) bool {
	t.mu.Lock()
	req, ok := t.byAgent[agentID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return t.settle(req, outcome{err: err})
}
