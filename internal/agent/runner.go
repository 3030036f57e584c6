// ABOUTME: Runner dispatches decision requests to the transport configured per agent.
// ABOUTME: Arbitrates the reply/timeout/disconnect races into a single resolution.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Decision is an agent's answer to a move request. Action is opaque to
// this layer; the game engine owns its meaning.
type Decision struct {
	Action    json.RawMessage `json:"action"`
	TrashTalk string          `json:"trashTalk,omitempty"`
}

// moveRequest is the payload pushed to socket-bound agents.
type moveRequest struct {
	Type      string          `json:"type"`
	MatchID   string          `json:"matchId"`
	GameState json.RawMessage `json:"gameState"`
	TimeoutMs int64           `json:"timeoutMs"`
}

// gameStartNotice and gameEndNotice are the lifecycle payloads POSTed to
// http-callback agents before the first move and after the last.
type gameStartNotice struct {
	MatchID   string          `json:"matchId"`
	GameState json.RawMessage `json:"gameState"`
}

type gameEndNotice struct {
	MatchID string          `json:"matchId"`
	Result  json.RawMessage `json:"result"`
}

// notifyTimeout bounds one lifecycle callback.
const notifyTimeout = 5 * time.Second

// Runner is the agent communication layer: it selects the transport for
// an agent and resolves each request exactly once.
type Runner struct {
	registry *Registry
	pending  *pendingTable
	binder   *binder
	http     *httpTransport
	logger   *slog.Logger
}

// NewRunner creates a Runner backed by the given agent registry.
func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	return &Runner{
		registry: registry,
		pending:  newPendingTable(),
		binder:   newBinder(),
		http:     newHTTPTransport(),
		logger:   logger.With("component", "agent-runner"),
	}
}

// RequestDecision asks an agent for a decision within timeout. An
// unregistered agent id falls back to the simulated transport so matches
// stay drivable without live agents.
func (r *Runner) RequestDecision(ctx context.Context, agentID, matchID string, snapshot json.RawMessage, timeout time.Duration) (Decision, error) {
	cfg, ok := r.registry.Get(agentID)
	if !ok {
		r.logger.Warn("agent not registered, using simulated decision", "agent_id", agentID)
		return simulateDecision(ctx, snapshot, timeout)
	}

	switch cfg.Transport {
	case TransportSimulated:
		return simulateDecision(ctx, snapshot, timeout)

	case TransportHTTP:
		return r.http.requestDecision(ctx, cfg.Endpoint, snapshot, timeout)

	case TransportSocket:
		return r.requestSocket(ctx, cfg, matchID, snapshot, timeout)

	case TransportSandbox:
		// Sandboxed execution is not wired up yet; fall back to a
		// simulated decision rather than blocking indefinitely.
		r.logger.Warn("sandboxed transport not implemented, using simulated decision",
			"agent_id", agentID,
			"sandbox_image", cfg.SandboxImage,
		)
		return simulateDecision(ctx, snapshot, timeout)

	default:
		return Decision{}, fmt.Errorf("unknown transport kind: %q", cfg.Transport)
	}
}

// requestSocket pushes the snapshot to the agent's live connection and
// waits for the first of: decision, deadline, disconnect.
func (r *Runner) requestSocket(ctx context.Context, cfg Config, matchID string, snapshot json.RawMessage, timeout time.Duration) (Decision, error) {
	conn, ok := r.binder.get(cfg.ID)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrAgentNotBound, cfg.ID)
	}

	req, err := r.pending.create(cfg.ID, matchID, timeout)
	if err != nil {
		return Decision{}, fmt.Errorf("agent %s: %w", cfg.ID, err)
	}

	payload, err := json.Marshal(moveRequest{
		Type:      "move_request",
		MatchID:   matchID,
		GameState: snapshot,
		TimeoutMs: timeout.Milliseconds(),
	})
	if err != nil {
		r.pending.settle(req, outcome{err: err})
		return Decision{}, fmt.Errorf("marshaling move request: %w", err)
	}

	if err := conn.Send(ctx, payload); err != nil {
		r.pending.settle(req, outcome{err: err})
		<-req.done
		return Decision{}, fmt.Errorf("pushing move request to agent %s: %w", cfg.ID, err)
	}

	select {
	case out := <-req.done:
		if out.err != nil {
			return Decision{}, fmt.Errorf("agent %s: %w", cfg.ID, out.err)
		}
		return out.decision, nil

	case <-ctx.Done():
		// Settle so a late reply or timer fire becomes a no-op. If a
		// reply won the race first, prefer it.
		r.pending.settle(req, outcome{err: ctx.Err()})
		out := <-req.done
		if out.err != nil {
			return Decision{}, fmt.Errorf("agent %s: %w", cfg.ID, out.err)
		}
		return out.decision, nil
	}
}

// NotifyMatchStart pushes a game-start callback to the agent if its
// transport supports lifecycle notifications. Best effort: it returns
// immediately and failures are only logged.
func (r *Runner) NotifyMatchStart(ctx context.Context, agentID, matchID string, state json.RawMessage) {
	r.notifyLifecycle(ctx, agentID, matchID, "/game-start", gameStartNotice{MatchID: matchID, GameState: state})
}

// NotifyMatchEnd pushes a game-end callback to the agent. Same contract
// as NotifyMatchStart.
func (r *Runner) NotifyMatchEnd(ctx context.Context, agentID, matchID string, result json.RawMessage) {
	r.notifyLifecycle(ctx, agentID, matchID, "/game-end", gameEndNotice{MatchID: matchID, Result: result})
}

func (r *Runner) notifyLifecycle(ctx context.Context, agentID, matchID, path string, body any) {
	cfg, ok := r.registry.Get(agentID)
	if !ok || cfg.Transport != TransportHTTP {
		return
	}

	// Detached from the caller: the match must never wait on, or be
	// canceled along with, a courtesy callback.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := r.http.notify(ctx, cfg.Endpoint, path, body); err != nil {
			r.logger.Warn("lifecycle notification failed",
				"agent_id", agentID,
				"match_id", matchID,
				"path", path,
				"error", err,
			)
		}
	}()
}

// HandleDecision resolves an agent's outstanding request with an inbound
// decision. A decision with no matching request is logged and discarded.
func (r *Runner) HandleDecision(agentID string, decision Decision) {
	if !r.pending.resolve(agentID, decision) {
		r.logger.Warn("received decision with no outstanding request", "agent_id", agentID)
	}
}

// Bind associates a live connection with an agent id.
func (r *Runner) Bind(agentID string, conn Conn) {
	r.binder.bind(agentID, conn)
	r.logger.Info("agent bound", "agent_id", agentID, "conn_id", conn.ID())
}

// Unbind removes the binding for a connection. If the agent it served had
// a request outstanding and no replacement binding, the request fails as
// disconnected, which releases the waiting caller and stops its timer.
func (r *Runner) Unbind(connID string) {
	agentID, ok := r.binder.unbind(connID)
	if !ok {
		return
	}

	if _, stillBound := r.binder.get(agentID); !stillBound {
		r.pending.fail(agentID, ErrAgentDisconnected)
	}
	r.logger.Info("agent unbound", "agent_id", agentID, "conn_id", connID)
}

// IsBound reports whether an agent currently has a live socket binding.
func (r *Runner) IsBound(agentID string) bool {
	_, ok := r.binder.get(agentID)
	return ok
}
