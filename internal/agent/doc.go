// Package agent is the communication layer between the match
// orchestrator and remote decision-making participants.
//
// # Runner
//
// The Runner answers one question: "ask agent X for a decision about
// this state within N milliseconds". It dispatches by the transport kind
// registered for the agent:
//
//   - simulated: synthesizes a decision from the snapshot's validMoves
//   - http-callback: POST {gameState, timeoutMs} to the agent's endpoint
//   - socket-bound: pushes the snapshot over a live connection and waits
//   - sandboxed-process: stubbed via the simulated transport
//
// Unregistered agents fall back to the simulated transport, which keeps
// the orchestrator drivable in tests without live agents.
//
// Http-callback agents additionally receive best-effort POST /game-start
// and /game-end notifications around each match. Notifications run in
// the background with their own deadline; failures are logged and never
// affect the match.
//
// # Request/Response Correlation
//
// Socket-bound requests go through a pending table keyed by agent id,
// holding at most one outstanding request per agent. Exactly one of
// {inbound decision, deadline timer, unbind} settles a request; the
// winner clears the slot and stops the timer, and the losers are no-ops.
// Settlement is checked against the table's current entry by pointer, so
// a stale timer can never clear a reused slot.
//
// # Bindings
//
// Bind/Unbind maintain the forward (agent → conn) and inverse
// (conn → agent) maps. Unbinding a connection fails any outstanding
// request for its agent as disconnected, which releases the waiting
// caller and prevents leaked timers.
package agent
