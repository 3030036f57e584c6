// Package game defines the capability contract for pluggable game rule
// engines and the registry the orchestrator resolves them from.
//
// The orchestrator never interprets game state: it asks the engine
// whether the game is over, whose turn it is, how to render the state
// for one player or for spectators, and how to apply a move. Engines own
// legality; an illegal move is an error the orchestrator converts into a
// forfeiture.
//
// A built-in nim engine is included so the arena can run end to end
// without external engines.
package game
