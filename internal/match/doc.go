// Package match contains the match orchestrator: the turn-taking state
// machine that drives a pluggable game engine to completion under
// chess-style time controls, and the spectator event bus it emits into.
//
// # Lifecycle
//
// pending → in_progress → {completed, cancelled}. Termination is one-way
// and happens exactly once. The turn loop goroutine is the sole mutator
// of a match's live fields; the recurring time_update broadcast only
// reads them and stops itself whenever the match leaves in_progress.
// A match whose engine itself fails (serialization, turn resolution,
// scoring) is abandoned as cancelled; it cannot be scored but still
// reaches a terminal state.
//
// # Time control
//
// Each turn, the move deadline is the minimum of the player's remaining
// clock and the engine's default per-move timeout. After a successful
// reply the measured thinking time is charged against the clock (never
// less than the configured minimum move delay, which is waited out if
// the agent answered faster). A clock at or below zero is a time
// forfeit and pre-empts move application. Any communication-layer or
// rule failure forfeits the match to the opponent immediately; there are
// no retries.
//
// # Event ordering
//
// Within one match: game_start, then per applied move a move event
// (optionally followed by trash_talk), interleaved with time_update
// while in progress, and exactly one game_end, always last. The
// broadcast is stopped before game_end is emitted, so nothing follows
// it.
package match
