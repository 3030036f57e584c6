// ABOUTME: Live socket bindings between agent ids and their connections.
// ABOUTME: Keeps a forward map (agent to conn) and an inverse map (conn to agent).

package agent

import (
	"context"
	"errors"
	"sync"
)

// ErrAgentNotBound indicates a socket-bound agent has no live connection.
var ErrAgentNotBound = errors.New("agent has no live socket binding")

// Conn is a live bidirectional connection to a socket-bound agent. The
// gateway owns the read loop and the real socket; the Runner only pushes
// payloads through it.
type Conn interface {
	// ID uniquely identifies this connection instance.
	ID() string

	// Send pushes a payload to the remote agent.
	Send(ctx context.Context, payload []byte) error
}

// binder tracks which connection serves which agent. A new binding for an
// agent replaces the previous one.
type binder struct {
	mu      sync.RWMutex
	byAgent map[string]Conn
	byConn  map[string]string
}

func newBinder() *binder {
	return &binder{
		byAgent: make(map[string]Conn),
		byConn:  make(map[string]string),
	}
}

func (b *binder) bind(agentID string, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.byAgent[agentID]; ok {
		delete(b.byConn, old.ID())
	}
	b.byAgent[agentID] = conn
	b.byConn[conn.ID()] = agentID
}

// unbind removes the binding for a connection and returns the agent id it
// served, if any.
func (b *binder) unbind(connID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	agentID, ok := b.byConn[connID]
	if !ok {
		return "", false
	}
	delete(b.byConn, connID)

	// Only drop the forward entry if it still points at this connection;
	// the agent may have rebound already.
	if conn, ok := b.byAgent[agentID]; ok && conn.ID() == connID {
		delete(b.byAgent, agentID)
	}
	return agentID, true
}

func (b *binder) get(agentID string) (Conn, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	conn, ok := b.byAgent[agentID]
	return conn, ok
}
