package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"spades-live/internal/gateway"
	"spades-live/internal/lobby"
)

func SetupRoutes(l *lobby.Lobby, gw *gateway.Gateway) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Post("/games", CreateGame(l))
	r.Get("/games", ListGames(l))
	r.Get("/healthz", Healthz)
	r.Get("/ws", gw.HandleWebSocket)
	return r
}
