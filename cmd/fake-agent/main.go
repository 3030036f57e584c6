// ABOUTME: Minimal HTTP-callback agent for end-to-end testing that plays the first valid move.
// ABOUTME: Usage: fake-agent [-addr :8090] [-name "First Mover"] [-talk]

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
)

var trashTalk = []string{
	"First valid move, best valid move.",
	"You call that a position?",
	"Wake me when it gets interesting.",
}

type moveRequest struct {
	GameState json.RawMessage `json:"gameState"`
	TimeoutMs int64           `json:"timeoutMs"`
}

type moveResponse struct {
	Action    json.RawMessage `json:"action"`
	TrashTalk string          `json:"trashTalk,omitempty"`
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	name := flag.String("name", "First Mover", "agent display name")
	talk := flag.Bool("talk", false, "occasionally attach trash talk")
	flag.Parse()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"name":        *name,
			"description": "picks the first valid move",
		})
	})

	mux.HandleFunc("POST /move", func(w http.ResponseWriter, r *http.Request) {
		var req moveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var state struct {
			ValidMoves []json.RawMessage `json:"validMoves"`
		}
		if err := json.Unmarshal(req.GameState, &state); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(state.ValidMoves) == 0 {
			http.Error(w, "no valid moves", http.StatusUnprocessableEntity)
			return
		}

		resp := moveResponse{Action: state.ValidMoves[0]}
		if *talk && rand.Intn(3) == 0 {
			resp.TrashTalk = trashTalk[rand.Intn(len(trashTalk))]
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /game-start", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[%s] game started", *name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /game-end", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[%s] game ended", *name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	fmt.Printf("fake-agent %q listening on %s\n", *name, *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
