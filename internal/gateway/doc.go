// Package gateway assembles the arena's public surface: a JSON API for
// match and agent lifecycle, an SSE stream of spectator events, and the
// WebSocket endpoint socket-bound agents connect through.
//
// The gateway contains no game or timing logic; it translates HTTP into
// calls on the orchestrator, the agent registry, the runner, and the
// archive store.
package gateway
