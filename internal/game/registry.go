// ABOUTME: Thread-safe registry of game engines keyed by game type.
// ABOUTME: The orchestrator resolves "which rules govern this match" through it.

package game

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrEngineAlreadyRegistered indicates an engine for the same game type exists.
var ErrEngineAlreadyRegistered = errors.New("engine already registered")

// ErrUnknownGameType indicates no engine is registered for the requested type.
var ErrUnknownGameType = errors.New("unknown game type")

// Registry maintains the set of available game engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	logger  *slog.Logger
}

// NewRegistry creates an empty engine registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		engines: make(map[string]Engine),
		logger:  logger,
	}
}

// Register adds an engine under its game type.
// Returns ErrEngineAlreadyRegistered if the type is taken.
func (r *Registry) Register(engine Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	gameType := engine.GameType()
	if _, exists := r.engines[gameType]; exists {
		return fmt.Errorf("%w: %s", ErrEngineAlreadyRegistered, gameType)
	}

	r.engines[gameType] = engine
	r.logger.Info("game engine registered",
		"game_type", gameType,
		"min_players", engine.MinPlayers(),
		"max_players", engine.MaxPlayers(),
	)
	return nil
}

// Get resolves a game type to its engine.
// Returns ErrUnknownGameType if no engine is registered for it.
func (r *Registry) Get(gameType string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[gameType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, gameType)
	}
	return engine, nil
}

// List returns the registered game types.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.engines))
	for gameType := range r.engines {
		types = append(types, gameType)
	}
	return types
}
