// ABOUTME: JSON API handlers: game types, agent registration, match lifecycle, SSE events.
// ABOUTME: Thin translation layer; all behavior lives in the orchestrator and runner.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/moltpit/arena/internal/agent"
	"github.com/moltpit/arena/internal/game"
	"github.com/moltpit/arena/internal/match"
	"github.com/moltpit/arena/internal/store"
)

// eventBuffer bounds how many events an SSE client may fall behind.
const eventBuffer = 64

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"games": g.engines.List()})
}

func (g *Gateway) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var cfg agent.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding agent config: %w", err))
		return
	}

	if err := g.agents.Register(cfg); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, agent.ErrAgentAlreadyRegistered) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": g.agents.List()})
}

// createMatchRequest is the body of POST /api/matches.
type createMatchRequest struct {
	ID           string            `json:"id,omitempty"`
	GameType     string            `json:"gameType"`
	Players      []game.Player     `json:"players"`
	TournamentID string            `json:"tournamentId,omitempty"`
	TimeControl  *game.TimeControl `json:"timeControl,omitempty"`
}

func (g *Gateway) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding match request: %w", err))
		return
	}

	// A supplied override without an explicit anti-spam floor gets the
	// configured default.
	if req.TimeControl != nil && req.TimeControl.MinMoveDelay == 0 {
		req.TimeControl.MinMoveDelay = g.cfg.Matches.MinMoveDelay
	}

	m, err := g.orchestrator.CreateMatch(req.ID, req.GameType, req.Players, req.TournamentID, req.TimeControl)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, game.ErrUnknownGameType) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, m.Snapshot())
}

func (g *Gateway) handleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"matches": g.orchestrator.ListMatches()})
}

func (g *Gateway) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := g.orchestrator.GetMatch(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

// handleStartMatch launches the turn loop in the background and returns
// immediately; spectators follow progress via the event stream.
func (g *Gateway) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := g.orchestrator.GetMatch(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if m.Status() != match.StatusPending {
		writeError(w, http.StatusConflict, fmt.Errorf("match %s is %s", id, m.Status()))
		return
	}

	// The turn loop outlives this request; detach it from the request
	// context so the handler returning does not cancel the match.
	go func() {
		if _, err := g.orchestrator.RunMatch(context.WithoutCancel(r.Context()), id); err != nil {
			g.logger.Error("running match", "match_id", id, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "matchId": id})
}

func (g *Gateway) handleCancelMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := g.orchestrator.CancelMatch(id); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, match.ErrMatchFinished) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "matchId": id})
}

// handleMatchEvents streams a match's spectator events over SSE until
// game_end or client disconnect.
func (g *Gateway) handleMatchEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := g.orchestrator.GetMatch(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The bus delivers synchronously on the match goroutine; buffer the
	// hand-off and drop events for clients that cannot keep up.
	events := make(chan match.Event, eventBuffer)
	unsubscribe := g.orchestrator.Bus().Subscribe(id, func(ev match.Event) {
		select {
		case events <- ev:
		default:
			g.logger.Warn("spectator too slow, dropping event", "match_id", id, "kind", ev.Kind)
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				g.logger.Error("marshaling event", "match_id", id, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
			if ev.Kind == match.EventGameEnd {
				return
			}
		}
	}
}

func (g *Gateway) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, contentID, err := g.archive.GetArchivedMatch(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrMatchNotArchived) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contentId": contentID, "record": record})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
