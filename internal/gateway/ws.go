// ABOUTME: WebSocket endpoint for socket-bound agents: register, receive move requests, answer.
// ABOUTME: Owns the read loop; the Runner only sees the Conn abstraction.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/moltpit/arena/internal/agent"
)

// wsWriteTimeout bounds a single outbound push to an agent.
const wsWriteTimeout = 10 * time.Second

// agentMessage is the envelope for all inbound agent frames.
type agentMessage struct {
	Type      string          `json:"type"`
	AgentID   string          `json:"agentId,omitempty"`
	Action    json.RawMessage `json:"action,omitempty"`
	TrashTalk string          `json:"trashTalk,omitempty"`
}

// wsConn adapts a websocket connection to the Runner's Conn interface.
type wsConn struct {
	id   string
	conn *websocket.Conn
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// handleAgentSocket upgrades the connection and runs the agent's read
// loop. The first frame must be a register message for a socket-bound
// agent; every later decision frame resolves that agent's outstanding
// request. Closing the socket unbinds the agent, which fails any
// in-flight request as disconnected.
func (g *Gateway) handleAgentSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := uuid.New().String()
	agentID, err := g.registerSocket(r.Context(), sock, connID)
	if err != nil {
		g.logger.Warn("agent socket rejected", "conn_id", connID, "error", err)
		sock.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	defer func() {
		g.runner.Unbind(connID)
		sock.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := sock.Read(r.Context())
		if err != nil {
			g.logger.Info("agent socket closed", "agent_id", agentID, "conn_id", connID)
			return
		}

		var msg agentMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Warn("unparseable agent frame", "agent_id", agentID, "error", err)
			continue
		}

		switch msg.Type {
		case "decision":
			g.runner.HandleDecision(agentID, agent.Decision{
				Action:    msg.Action,
				TrashTalk: msg.TrashTalk,
			})
		case "ping":
			// Keepalive; nothing to do.
		default:
			g.logger.Warn("unknown agent frame type", "agent_id", agentID, "type", msg.Type)
		}
	}
}

// registerSocket reads and validates the opening register frame, then
// binds the connection to its agent.
func (g *Gateway) registerSocket(ctx context.Context, sock *websocket.Conn, connID string) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, data, err := sock.Read(readCtx)
	if err != nil {
		return "", fmt.Errorf("reading register frame: %w", err)
	}

	var msg agentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("parsing register frame: %w", err)
	}
	if msg.Type != "register" || msg.AgentID == "" {
		return "", errors.New("first frame must be register with agentId")
	}

	cfg, ok := g.agents.Get(msg.AgentID)
	if !ok {
		return "", fmt.Errorf("agent %s is not registered", msg.AgentID)
	}
	if cfg.Transport != agent.TransportSocket {
		return "", fmt.Errorf("agent %s is not socket-bound", msg.AgentID)
	}

	g.runner.Bind(msg.AgentID, &wsConn{id: connID, conn: sock})
	return msg.AgentID, nil
}
