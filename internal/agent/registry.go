// ABOUTME: Registry of agent configurations keyed by agent id.
// ABOUTME: Pure lookup and registration; transport behavior lives in the Runner.

package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAgentAlreadyRegistered indicates an agent with the same id exists.
var ErrAgentAlreadyRegistered = errors.New("agent already registered")

// TransportKind selects how a decision is requested from an agent.
type TransportKind string

const (
	TransportSimulated TransportKind = "simulated"
	TransportHTTP      TransportKind = "http-callback"
	TransportSocket    TransportKind = "socket-bound"
	TransportSandbox   TransportKind = "sandboxed-process"
)

// Valid reports whether k is a known transport kind.
func (k TransportKind) Valid() bool {
	switch k {
	case TransportSimulated, TransportHTTP, TransportSocket, TransportSandbox:
		return true
	}
	return false
}

// Config describes one registered agent. Immutable once registered.
type Config struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Transport    TransportKind `json:"transport"`
	Endpoint     string        `json:"endpoint,omitempty"`
	SandboxImage string        `json:"sandboxImage,omitempty"`
	Account      string        `json:"account,omitempty"`
}

// Registry maps agent ids to their transport configuration.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Config
	logger *slog.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]Config),
		logger: logger,
	}
}

// Register stores an agent configuration.
// Returns ErrAgentAlreadyRegistered if the id is taken.
func (r *Registry) Register(cfg Config) error {
	if cfg.ID == "" {
		return errors.New("agent id is required")
	}
	if !cfg.Transport.Valid() {
		return fmt.Errorf("unknown transport kind: %q", cfg.Transport)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[cfg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAgentAlreadyRegistered, cfg.ID)
	}

	r.agents[cfg.ID] = cfg
	r.logger.Info("agent registered",
		"agent_id", cfg.ID,
		"name", cfg.Name,
		"transport", cfg.Transport,
		"total_agents", len(r.agents),
	)
	return nil
}

// Unregister removes an agent configuration. Unknown ids are a no-op.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agentID]; exists {
		delete(r.agents, agentID)
		r.logger.Info("agent unregistered", "agent_id", agentID, "total_agents", len(r.agents))
	}
}

// Get retrieves an agent configuration by id.
func (r *Registry) Get(agentID string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.agents[agentID]
	return cfg, ok
}

// List returns all registered agent configurations.
func (r *Registry) List() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]Config, 0, len(r.agents))
	for _, cfg := range r.agents {
		configs = append(configs, cfg)
	}
	return configs
}
