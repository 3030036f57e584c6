// ABOUTME: Tests for the Runner's transport dispatch and the socket-bound request races.
// ABOUTME: Covers reply, timeout, disconnect, in-flight guard, and simulated fallback.

package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records pushed payloads and never fails.
type fakeConn struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *fakeConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.payloads...)
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(NewRegistry(slog.Default()), slog.Default())
}

func registerSocketAgent(t *testing.T, r *Runner, agentID string) {
	t.Helper()
	require.NoError(t, r.registry.Register(Config{
		ID:        agentID,
		Name:      agentID,
		Transport: TransportSocket,
	}))
}

var nimSnapshot = json.RawMessage(`{"pile":21,"validMoves":[{"take":1},{"take":2},{"take":3}]}`)

func TestRequestDecisionSocket(t *testing.T) {
	t.Run("resolves with the agent's decision", func(t *testing.T) {
		runner := newTestRunner(t)
		registerSocketAgent(t, runner, "agent-1")
		conn := &fakeConn{id: "conn-1"}
		runner.Bind("agent-1", conn)

		type result struct {
			decision Decision
			err      error
		}
		done := make(chan result, 1)
		go func() {
			d, err := runner.RequestDecision(context.Background(), "agent-1", "match-1", nimSnapshot, time.Second)
			done <- result{d, err}
		}()

		// Wait for the push, then answer.
		require.Eventually(t, func() bool { return len(conn.sent()) == 1 }, time.Second, 5*time.Millisecond)

		var pushed moveRequest
		require.NoError(t, json.Unmarshal(conn.sent()[0], &pushed))
		assert.Equal(t, "move_request", pushed.Type)
		assert.Equal(t, "match-1", pushed.MatchID)
		assert.EqualValues(t, 1000, pushed.TimeoutMs)

		runner.HandleDecision("agent-1", Decision{Action: json.RawMessage(`{"take":2}`), TrashTalk: "easy"})

		res := <-done
		require.NoError(t, res.err)
		assert.JSONEq(t, `{"take":2}`, string(res.decision.Action))
		assert.Equal(t, "easy", res.decision.TrashTalk)
	})

	t.Run("fails with timeout when the agent never answers", func(t *testing.T) {
		runner := newTestRunner(t)
		registerSocketAgent(t, runner, "agent-1")
		runner.Bind("agent-1", &fakeConn{id: "conn-1"})

		_, err := runner.RequestDecision(context.Background(), "agent-1", "match-1", nimSnapshot, 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrDecisionTimeout)

		// The slot was cleared; a new request is allowed.
		_, err = runner.pending.create("agent-1", "match-2", time.Minute)
		assert.NoError(t, err)
	})

	t.Run("fails as disconnected when the binding is torn down", func(t *testing.T) {
		runner := newTestRunner(t)
		registerSocketAgent(t, runner, "agent-1")
		conn := &fakeConn{id: "conn-1"}
		runner.Bind("agent-1", conn)

		errs := make(chan error, 1)
		go func() {
			_, err := runner.RequestDecision(context.Background(), "agent-1", "match-1", nimSnapshot, time.Minute)
			errs <- err
		}()

		require.Eventually(t, func() bool { return len(conn.sent()) == 1 }, time.Second, 5*time.Millisecond)
		runner.Unbind("conn-1")

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrAgentDisconnected)
		case <-time.After(time.Second):
			t.Fatal("request not released by unbind")
		}
		assert.False(t, runner.IsBound("agent-1"))
	})

	t.Run("rejects a second concurrent request for the same agent", func(t *testing.T) {
		runner := newTestRunner(t)
		registerSocketAgent(t, runner, "agent-1")
		conn := &fakeConn{id: "conn-1"}
		runner.Bind("agent-1", conn)

		done := make(chan error, 1)
		go func() {
			_, err := runner.RequestDecision(context.Background(), "agent-1", "match-1", nimSnapshot, time.Second)
			done <- err
		}()
		require.Eventually(t, func() bool { return len(conn.sent()) == 1 }, time.Second, 5*time.Millisecond)

		_, err := runner.RequestDecision(context.Background(), "agent-1", "match-2", nimSnapshot, time.Second)
		assert.ErrorIs(t, err, ErrRequestInFlight)

		runner.HandleDecision("agent-1", Decision{Action: json.RawMessage(`{"take":1}`)})
		require.NoError(t, <-done)
	})

	t.Run("fails immediately without a live binding", func(t *testing.T) {
		runner := newTestRunner(t)
		registerSocketAgent(t, runner, "agent-1")

		_, err := runner.RequestDecision(context.Background(), "agent-1", "match-1", nimSnapshot, time.Second)
		assert.ErrorIs(t, err, ErrAgentNotBound)
	})

	t.Run("ignores a decision with no outstanding request", func(t *testing.T) {
		runner := newTestRunner(t)
		// Should not panic or block.
		runner.HandleDecision("agent-1", Decision{Action: json.RawMessage(`{"take":1}`)})
	})
}

func TestRequestDecisionFallback(t *testing.T) {
	t.Run("unregistered agent gets a simulated decision", func(t *testing.T) {
		runner := newTestRunner(t)

		decision, err := runner.RequestDecision(context.Background(), "nobody", "match-1", nimSnapshot, time.Second)
		require.NoError(t, err)
		assert.NotEmpty(t, decision.Action)
	})

	t.Run("sandboxed agent delegates to simulated", func(t *testing.T) {
		runner := newTestRunner(t)
		require.NoError(t, runner.registry.Register(Config{
			ID:           "boxed",
			Transport:    TransportSandbox,
			SandboxImage: "moltpit/chess-bot:latest",
		}))

		decision, err := runner.RequestDecision(context.Background(), "boxed", "match-1", nimSnapshot, time.Second)
		require.NoError(t, err)
		assert.NotEmpty(t, decision.Action)
	})
}

func TestLifecycleNotifications(t *testing.T) {
	t.Run("http-callback agent receives both callbacks", func(t *testing.T) {
		var mu sync.Mutex
		var paths []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			paths = append(paths, r.URL.Path)
			mu.Unlock()
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer srv.Close()

		runner := newTestRunner(t)
		require.NoError(t, runner.registry.Register(Config{
			ID:        "agent-1",
			Transport: TransportHTTP,
			Endpoint:  srv.URL,
		}))

		runner.NotifyMatchStart(context.Background(), "agent-1", "match-1", nimSnapshot)
		runner.NotifyMatchEnd(context.Background(), "agent-1", "match-1", json.RawMessage(`{"winnerId":"p1"}`))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(paths) == 2
		}, 2*time.Second, 10*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.ElementsMatch(t, []string{"/game-start", "/game-end"}, paths)
	})

	t.Run("non-http transports are a no-op", func(t *testing.T) {
		runner := newTestRunner(t)
		registerSocketAgent(t, runner, "agent-1")

		// Must return immediately without a binding or an endpoint.
		runner.NotifyMatchStart(context.Background(), "agent-1", "match-1", nimSnapshot)
		runner.NotifyMatchEnd(context.Background(), "agent-1", "match-1", json.RawMessage(`{}`))
		runner.NotifyMatchStart(context.Background(), "nobody", "match-1", nimSnapshot)
	})

	t.Run("unreachable endpoint never blocks the caller", func(t *testing.T) {
		runner := newTestRunner(t)
		require.NoError(t, runner.registry.Register(Config{
			ID:        "agent-1",
			Transport: TransportHTTP,
			Endpoint:  "http://127.0.0.1:1",
		}))

		start := time.Now()
		runner.NotifyMatchStart(context.Background(), "agent-1", "match-1", nimSnapshot)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})
}

func TestBindReplacesExistingConnection(t *testing.T) {
	runner := newTestRunner(t)
	registerSocketAgent(t, runner, "agent-1")

	runner.Bind("agent-1", &fakeConn{id: "conn-old"})
	runner.Bind("agent-1", &fakeConn{id: "conn-new"})

	// Unbinding the stale connection must not break the fresh binding.
	runner.Unbind("conn-old")
	assert.True(t, runner.IsBound("agent-1"))

	runner.Unbind("conn-new")
	assert.False(t, runner.IsBound("agent-1"))
}
