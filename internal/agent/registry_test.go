// ABOUTME: Tests for agent configuration registration and lookup.

package agent

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	t.Run("stores and retrieves a config", func(t *testing.T) {
		reg := NewRegistry(slog.Default())
		cfg := Config{
			ID:        "agent-1",
			Name:      "Deep Claw",
			Transport: TransportHTTP,
			Endpoint:  "http://localhost:8090",
		}
		require.NoError(t, reg.Register(cfg))

		got, ok := reg.Get("agent-1")
		require.True(t, ok)
		assert.Equal(t, cfg, got)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		reg := NewRegistry(slog.Default())
		require.NoError(t, reg.Register(Config{ID: "agent-1", Transport: TransportSimulated}))

		err := reg.Register(Config{ID: "agent-1", Transport: TransportHTTP})
		assert.ErrorIs(t, err, ErrAgentAlreadyRegistered)
	})

	t.Run("rejects missing id and unknown transport", func(t *testing.T) {
		reg := NewRegistry(slog.Default())
		assert.Error(t, reg.Register(Config{Transport: TransportSimulated}))
		assert.Error(t, reg.Register(Config{ID: "agent-1", Transport: "carrier-pigeon"}))
	})
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry(slog.Default())
	require.NoError(t, reg.Register(Config{ID: "agent-1", Transport: TransportSimulated}))

	reg.Unregister("agent-1")
	_, ok := reg.Get("agent-1")
	assert.False(t, ok)

	// Unknown id is a no-op.
	reg.Unregister("agent-1")
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(slog.Default())
	require.NoError(t, reg.Register(Config{ID: "a", Transport: TransportSimulated}))
	require.NoError(t, reg.Register(Config{ID: "b", Transport: TransportSocket}))

	assert.Len(t, reg.List(), 2)
}
