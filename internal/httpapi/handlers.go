package httpapi

import (
	"encoding/json"
	"net/http"

	"spades-live/internal/codec"
	"spades-live/internal/lobby"
	"spades-live/spades"
)

// CreateGame makes a room over plain HTTP so clients can share the game ID
// before anyone opens a socket. Rules in the body are optional.
func CreateGame(l *lobby.Lobby) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rules *spades.Rules
		if r.Body != nil && r.ContentLength != 0 {
			var wire codec.Rules
			if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
				http.Error(w, "invalid rules payload", http.StatusBadRequest)
				return
			}
			parsed := codec.RulesFromWire(wire)
			rules = &parsed
		}

		room, err := l.CreateGame(rules)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		l.BroadcastGames()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			GameID string `json:"game_id"`
		}{GameID: room.ID})
	}
}

func ListGames(l *lobby.Lobby) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		games := l.ListActive()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Games []codec.GameSummary `json:"games"`
		}{Games: games})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
