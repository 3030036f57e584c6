// ABOUTME: The turn-taking state machine that drives matches to completion.
// ABOUTME: Owns time control, forfeiture, the spectator broadcast, and event emission.

package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moltpit/arena/internal/agent"
	"github.com/moltpit/arena/internal/game"
)

// ErrMatchNotFound indicates the requested match does not exist.
var ErrMatchNotFound = errors.New("match not found")

// ErrMatchNotPending indicates the match already left the pending state.
var ErrMatchNotPending = errors.New("match is not pending")

// ErrMatchFinished indicates the match already reached a terminal state.
var ErrMatchFinished = errors.New("match already finished")

// defaultBroadcastInterval spaces the recurring time_update events.
const defaultBroadcastInterval = time.Second

// DecisionRequester is the slice of the agent communication layer the
// orchestrator needs.
type DecisionRequester interface {
	RequestDecision(ctx context.Context, agentID, matchID string, snapshot json.RawMessage, timeout time.Duration) (agent.Decision, error)
}

// AgentNotifier is implemented by communication layers that can push
// lifecycle callbacks to agents. Notifications are best effort: they
// never block the turn loop and never affect the match outcome.
type AgentNotifier interface {
	NotifyMatchStart(ctx context.Context, agentID, matchID string, state json.RawMessage)
	NotifyMatchEnd(ctx context.Context, agentID, matchID string, result json.RawMessage)
}

// ArchiveRecord is the canonical record of a finished match handed to
// the archival collaborator.
type ArchiveRecord struct {
	MatchID      string            `json:"matchId"`
	TournamentID string            `json:"tournamentId,omitempty"`
	GameType     string            `json:"gameType"`
	Players      []game.Player     `json:"players"`
	Moves        []game.MoveRecord `json:"moves"`
	Result       *game.Result      `json:"result"`
	CreatedAt    time.Time         `json:"createdAt"`
	StartedAt    time.Time         `json:"startedAt"`
	CompletedAt  time.Time         `json:"completedAt"`
}

// Archiver persists finished matches. Archival failures never block or
// fail match completion.
type Archiver interface {
	ArchiveMatch(ctx context.Context, record *ArchiveRecord) (string, error)
}

// Orchestrator creates matches and drives them through their turn loops.
// Each running match is one goroutine; matches share no mutable game
// state.
type Orchestrator struct {
	engines  *game.Registry
	agents   DecisionRequester
	bus      *Bus
	archiver Archiver
	logger   *slog.Logger

	broadcastInterval time.Duration

	mu      sync.RWMutex
	matches map[string]*Match

	// Test seams; real clock and sleep in production.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArchiver sets the archival collaborator for finished matches.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithBroadcastInterval overrides the 1s time_update interval.
func WithBroadcastInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.broadcastInterval = d }
}

// NewOrchestrator creates an orchestrator over the given engine registry
// and agent communication layer.
func NewOrchestrator(engines *game.Registry, agents DecisionRequester, bus *Bus, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engines:           engines,
		agents:            agents,
		bus:               bus,
		logger:            logger.With("component", "orchestrator"),
		broadcastInterval: defaultBroadcastInterval,
		matches:           make(map[string]*Match),
		now:               time.Now,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Bus returns the spectator event bus.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// CreateMatch validates the request against the engine and stores a new
// pending match. A zero id is replaced with a fresh UUID. The time
// control override may be nil to use the engine default.
func (o *Orchestrator) CreateMatch(id, gameType string, players []game.Player, tournamentID string, tc *game.TimeControl) (*Match, error) {
	engine, err := o.engines.Get(gameType)
	if err != nil {
		return nil, err
	}

	if n := len(players); n < engine.MinPlayers() || n > engine.MaxPlayers() {
		return nil, fmt.Errorf("%s requires %d-%d players, got %d",
			gameType, engine.MinPlayers(), engine.MaxPlayers(), n)
	}

	if id == "" {
		id = uuid.New().String()
	}

	state, err := engine.NewGame(id, players)
	if err != nil {
		return nil, fmt.Errorf("creating game state: %w", err)
	}

	m := &Match{
		ID:           id,
		TournamentID: tournamentID,
		GameType:     gameType,
		Players:      append([]game.Player(nil), players...),
		TimeControl:  tc,
		engine:       engine,
		status:       StatusPending,
		state:        state,
		createdAt:    o.now(),
	}

	o.mu.Lock()
	if _, exists := o.matches[id]; exists {
		o.mu.Unlock()
		return nil, fmt.Errorf("match %s already exists", id)
	}
	o.matches[id] = m
	o.mu.Unlock()

	o.logger.Info("match created",
		"match_id", id,
		"game_type", gameType,
		"players", len(players),
	)
	return m, nil
}

// GetMatch retrieves a match by id.
func (o *Orchestrator) GetMatch(id string) (*Match, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	m, ok := o.matches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return m, nil
}

// ListMatches returns snapshots of all known matches.
func (o *Orchestrator) ListMatches() []Info {
	o.mu.RLock()
	defer o.mu.RUnlock()

	infos := make([]Info, 0, len(o.matches))
	for _, m := range o.matches {
		infos = append(infos, m.Snapshot())
	}
	return infos
}

// CancelMatch moves a non-terminal match to cancelled. A match whose
// turn loop is running notices the status change at its next transition
// and stops broadcasting.
func (o *Orchestrator) CancelMatch(id string) error {
	m, err := o.GetMatch(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusCompleted || m.status == StatusCancelled {
		return fmt.Errorf("%w: %s", ErrMatchFinished, id)
	}
	m.status = StatusCancelled
	m.completedAt = o.now()
	m.activePlayerID = ""
	o.logger.Info("match cancelled", "match_id", id)
	return nil
}

// RunMatch executes the match's turn loop to completion and returns the
// result. It may be called once per match.
func (o *Orchestrator) RunMatch(ctx context.Context, id string) (*game.Result, error) {
	m, err := o.GetMatch(id)
	if err != nil {
		return nil, err
	}
	engine := m.engine
	tc := m.effectiveTimeControl()

	m.mu.Lock()
	if m.status != StatusPending {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrMatchNotPending, id, m.status)
	}
	m.status = StatusInProgress
	m.startedAt = o.now()
	m.remaining = make(map[string]time.Duration, len(m.Players))
	for _, p := range m.Players {
		m.remaining[p.ID] = tc.InitialTime
	}
	m.mu.Unlock()

	o.logger.Info("match started", "match_id", id, "game_type", m.GameType)

	startState, err := engine.SerializeForSpectator(m.state)
	if err != nil {
		o.logger.Error("serializing initial state", "match_id", id, "error", err)
	}
	o.emit(m, EventGameStart, GameStartPayload{
		State:       startState,
		TimeControl: tc,
		Players:     m.Players,
	})
	o.notifyStart(ctx, m, startState)

	stopBroadcast := o.startBroadcast(m)
	defer stopBroadcast()

	for !engine.IsGameOver(m.state) {
		if ctx.Err() != nil {
			o.abandon(m)
			stopBroadcast()
			return nil, ctx.Err()
		}
		if m.Status() == StatusCancelled {
			stopBroadcast()
			return nil, fmt.Errorf("%w: %s cancelled", ErrMatchFinished, id)
		}

		current, err := engine.CurrentPlayer(m.state)
		if err != nil {
			o.abandon(m)
			stopBroadcast()
			return nil, fmt.Errorf("resolving current player: %w", err)
		}

		snapshot, err := engine.SerializeForAgent(m.state, current.ID)
		if err != nil {
			o.abandon(m)
			stopBroadcast()
			return nil, fmt.Errorf("serializing state for %s: %w", current.ID, err)
		}

		// Start the player's clock.
		turnStart := o.now()
		m.mu.Lock()
		m.activePlayerID = current.ID
		m.turnStartedAt = turnStart
		remaining := m.remaining[current.ID]
		m.mu.Unlock()

		deadline := min(remaining, engine.DefaultTimePerMove())

		decision, reqErr := o.agents.RequestDecision(ctx, current.AgentID, m.ID, snapshot, deadline)
		if reqErr != nil {
			result := o.forfeit(m, current, fmt.Sprintf("Opponent forfeited: %s", reqErr))
			o.emit(m, EventError, ErrorPayload{Message: reqErr.Error()})
			stopBroadcast()
			o.complete(m, result)
			o.emit(m, EventGameEnd, GameEndPayload{Result: result})
			o.archive(m)
			o.notifyEnd(ctx, m, result)
			return result, nil
		}

		// Enforce the minimum move delay so a fast agent cannot outrun
		// real-time spectating, then charge the actual thinking time,
		// never less than the floor.
		elapsed := o.now().Sub(turnStart)
		if elapsed < tc.MinMoveDelay {
			o.sleep(ctx, tc.MinMoveDelay-elapsed)
			elapsed = max(o.now().Sub(turnStart), tc.MinMoveDelay)
		}

		m.mu.Lock()
		m.remaining[current.ID] -= elapsed
		exhausted := m.remaining[current.ID] <= 0
		m.mu.Unlock()

		if exhausted {
			// Pre-empts move application: the flag fell first.
			result := o.forfeit(m, current, "Time forfeit")
			o.emit(m, EventTimeout, TimeoutPayload{PlayerID: current.ID})
			stopBroadcast()
			o.complete(m, result)
			o.emit(m, EventGameEnd, GameEndPayload{Result: result})
			o.archive(m)
			o.notifyEnd(ctx, m, result)
			return result, nil
		}

		newState, applyErr := engine.ApplyMove(m.state, current.ID, decision.Action)
		if applyErr != nil {
			result := o.forfeit(m, current, fmt.Sprintf("Opponent forfeited: %s", applyErr))
			o.emit(m, EventError, ErrorPayload{Message: applyErr.Error()})
			stopBroadcast()
			o.complete(m, result)
			o.emit(m, EventGameEnd, GameEndPayload{Result: result})
			o.archive(m)
			o.notifyEnd(ctx, m, result)
			return result, nil
		}

		m.mu.Lock()
		m.state = newState
		m.remaining[current.ID] += tc.Increment
		m.mu.Unlock()

		engine.AnnotateLastMove(m.state, elapsed, decision.TrashTalk)

		moveState, err := engine.SerializeForSpectator(m.state)
		if err != nil {
			o.logger.Error("serializing state after move", "match_id", id, "error", err)
		}
		o.emit(m, EventMove, MovePayload{
			PlayerID:       current.ID,
			Action:         decision.Action,
			State:          moveState,
			ThinkingTimeMs: elapsed.Milliseconds(),
		})
		if decision.TrashTalk != "" {
			o.emit(m, EventTrashTalk, TrashTalkPayload{PlayerID: current.ID, Text: decision.TrashTalk})
		}
	}

	result, err := engine.Result(m.state)
	if err != nil {
		o.abandon(m)
		stopBroadcast()
		return nil, fmt.Errorf("computing result: %w", err)
	}

	stopBroadcast()
	o.complete(m, result)
	o.emit(m, EventGameEnd, GameEndPayload{Result: result})
	o.archive(m)
	o.notifyEnd(ctx, m, result)

	o.logger.Info("match completed",
		"match_id", id,
		"winner", result.WinnerID,
		"draw", result.Draw,
		"reason", result.Reason,
	)
	return result, nil
}

// forfeit builds the result awarding the match to current's opponent.
func (o *Orchestrator) forfeit(m *Match, current game.Player, reason string) *game.Result {
	result := &game.Result{
		LoserID: current.ID,
		Reason:  reason,
	}
	if len(m.Players) == 2 {
		for _, p := range m.Players {
			if p.ID != current.ID {
				result.WinnerID = p.ID
			}
		}
	}
	if final, err := m.engine.SerializeForSpectator(m.state); err == nil {
		result.FinalState = final
	}
	o.logger.Info("match forfeited",
		"match_id", m.ID,
		"loser", current.ID,
		"reason", reason,
	)
	return result
}

// abandon cancels a match whose engine itself failed; there is no valid
// result to score. Terminal transitions stay one-way.
func (o *Orchestrator) abandon(m *Match) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusCompleted || m.status == StatusCancelled {
		return
	}
	m.status = StatusCancelled
	m.completedAt = o.now()
	m.activePlayerID = ""
	o.logger.Warn("match abandoned", "match_id", m.ID)
}

// notifyStart pushes the game-start callback to every player's agent when
// the communication layer supports lifecycle notifications.
func (o *Orchestrator) notifyStart(ctx context.Context, m *Match, state json.RawMessage) {
	notifier, ok := o.agents.(AgentNotifier)
	if !ok {
		return
	}
	for _, p := range m.Players {
		notifier.NotifyMatchStart(ctx, p.AgentID, m.ID, state)
	}
}

// notifyEnd pushes the game-end callback to every player's agent.
func (o *Orchestrator) notifyEnd(ctx context.Context, m *Match, result *game.Result) {
	notifier, ok := o.agents.(AgentNotifier)
	if !ok {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.Error("marshaling result for notification", "match_id", m.ID, "error", err)
		return
	}
	for _, p := range m.Players {
		notifier.NotifyMatchEnd(ctx, p.AgentID, m.ID, payload)
	}
}

// complete marks the match terminal. The broadcast must already be
// stopped so nothing is emitted after game_end.
func (o *Orchestrator) complete(m *Match, result *game.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusCompleted || m.status == StatusCancelled {
		return
	}
	m.status = StatusCompleted
	m.result = result
	m.completedAt = o.now()
	m.activePlayerID = ""
}

// emit publishes one spectator event for the match.
func (o *Orchestrator) emit(m *Match, kind EventKind, payload any) {
	o.bus.Publish(Event{
		Kind:      kind,
		MatchID:   m.ID,
		Timestamp: o.now(),
		Payload:   payload,
	})
}

// archive hands the finished match to the archival collaborator, if any.
// Failures are logged, never surfaced to the match.
func (o *Orchestrator) archive(m *Match) {
	if o.archiver == nil {
		return
	}

	snap := m.Snapshot()
	m.mu.Lock()
	record := &ArchiveRecord{
		MatchID:      m.ID,
		TournamentID: m.TournamentID,
		GameType:     m.GameType,
		Players:      m.Players,
		Moves:        m.engine.History(m.state),
		Result:       m.result,
		CreatedAt:    m.createdAt,
		StartedAt:    m.startedAt,
		CompletedAt:  m.completedAt,
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	contentID, err := o.archiver.ArchiveMatch(ctx, record)
	if err != nil {
		o.logger.Error("archiving match", "match_id", m.ID, "error", err)
		return
	}
	o.logger.Info("match archived", "match_id", m.ID, "content_id", contentID, "status", snap.Status)
}

// startBroadcast launches the recurring time_update publisher for an
// in-progress match. The returned stop function is idempotent and does
// not return until the goroutine has exited, so no time_update can be
// emitted after it.
func (o *Orchestrator) startBroadcast(m *Match) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(o.broadcastInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.mu.Lock()
				if m.status != StatusInProgress {
					m.mu.Unlock()
					return
				}
				playerID := m.activePlayerID
				var remaining time.Duration
				if playerID != "" {
					remaining = m.remaining[playerID] - o.now().Sub(m.turnStartedAt)
				}
				m.mu.Unlock()

				if playerID == "" {
					continue
				}
				o.emit(m, EventTimeUpdate, TimeUpdatePayload{
					PlayerID:    playerID,
					RemainingMs: max(remaining, 0).Milliseconds(),
				})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}
