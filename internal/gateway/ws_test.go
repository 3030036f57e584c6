// ABOUTME: Tests for the socket-bound agent endpoint using a real websocket client.
// ABOUTME: Covers registration handshake, rejection, unbind on close, and a full match.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltpit/arena/internal/agent"
	"github.com/moltpit/arena/internal/game"
	"github.com/moltpit/arena/internal/match"
)

func dialAgentSocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/agent"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func registerSocketAgent(t *testing.T, g *Gateway, id string) {
	t.Helper()
	require.NoError(t, g.agents.Register(agent.Config{
		ID:        id,
		Name:      "Socketeer",
		Transport: agent.TransportSocket,
	}))
}

func TestAgentSocketBinding(t *testing.T) {
	g, srv := newTestGateway(t)
	registerSocketAgent(t, g, "sock-1")

	conn := dialAgentSocket(t, srv)
	sendFrame(t, conn, map[string]string{"type": "register", "agentId": "sock-1"})

	require.Eventually(t, func() bool {
		return g.runner.IsBound("sock-1")
	}, 5*time.Second, 10*time.Millisecond)

	// Keepalives are tolerated while bound.
	sendFrame(t, conn, map[string]string{"type": "ping"})

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		return !g.runner.IsBound("sock-1")
	}, 5*time.Second, 10*time.Millisecond, "closing the socket unbinds the agent")
}

func TestAgentSocketRejections(t *testing.T) {
	g, srv := newTestGateway(t)
	registerSocketAgent(t, g, "sock-1")

	readClosed := func(t *testing.T, conn *websocket.Conn) {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _, err := conn.Read(ctx)
		require.Error(t, err, "server closes the rejected connection")
	}

	t.Run("unknown agent", func(t *testing.T) {
		conn := dialAgentSocket(t, srv)
		sendFrame(t, conn, map[string]string{"type": "register", "agentId": "ghost"})
		readClosed(t, conn)
		assert.False(t, g.runner.IsBound("ghost"))
	})

	t.Run("first frame is not register", func(t *testing.T) {
		conn := dialAgentSocket(t, srv)
		sendFrame(t, conn, map[string]string{"type": "ping"})
		readClosed(t, conn)
	})

	t.Run("agent not socket-bound", func(t *testing.T) {
		require.NoError(t, g.agents.Register(agent.Config{
			ID:        "http-1",
			Transport: agent.TransportHTTP,
			Endpoint:  "http://bots.internal:9000",
		}))
		conn := dialAgentSocket(t, srv)
		sendFrame(t, conn, map[string]string{"type": "register", "agentId": "http-1"})
		readClosed(t, conn)
	})
}

// TestSocketAgentPlaysMatch drives a full nim match where one side
// answers over the websocket and the other is simulated.
func TestSocketAgentPlaysMatch(t *testing.T) {
	g, srv := newTestGateway(t)
	registerSocketAgent(t, g, "sock-1")

	conn := dialAgentSocket(t, srv)
	sendFrame(t, conn, map[string]string{"type": "register", "agentId": "sock-1"})
	require.Eventually(t, func() bool {
		return g.runner.IsBound("sock-1")
	}, 5*time.Second, 10*time.Millisecond)

	// Answer every move request with the first valid move.
	go func() {
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			var req struct {
				Type      string `json:"type"`
				GameState struct {
					ValidMoves []json.RawMessage `json:"validMoves"`
				} `json:"gameState"`
			}
			if json.Unmarshal(data, &req) != nil || req.Type != "move_request" {
				continue
			}
			if len(req.GameState.ValidMoves) == 0 {
				continue
			}
			payload, _ := json.Marshal(map[string]any{
				"type":   "decision",
				"action": req.GameState.ValidMoves[0],
			})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			conn.Write(ctx, websocket.MessageText, payload)
			cancel()
		}
	}()

	body := map[string]any{
		"id":       "m1",
		"gameType": "nim",
		"players": []game.Player{
			{ID: "p1", AgentID: "sock-1", Name: "Socketeer"},
			{ID: "p2", AgentID: "sim-1", Name: "Bot"},
		},
		"timeControl": map[string]any{"initialTimeMs": 60000},
	}
	resp := postJSON(t, srv.URL+"/api/matches", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/matches/m1/start", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		return getMatchInfo(t, srv, "m1").Status == match.StatusCompleted
	}, 20*time.Second, 50*time.Millisecond)

	info := getMatchInfo(t, srv, "m1")
	require.NotNil(t, info.Result)
	assert.Contains(t, []string{"p1", "p2"}, info.Result.WinnerID)
	assert.NotContains(t, info.Result.Reason, "forfeit", "the socket agent answered every request")
}
