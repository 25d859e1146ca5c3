package main

import (
	"context"
	"log"
	"net/http"

	"spades-live/internal/config"
	"spades-live/internal/gateway"
	"spades-live/internal/httpapi"
	"spades-live/internal/ledger"
	"spades-live/internal/lobby"
)

func main() {
	cfg := config.Load()

	ledgerService, ledgerMode, err := ledger.NewServiceFromEnv(cfg.LedgerMode)
	if err != nil {
		log.Fatalf("[Server] Failed to init ledger service: %v", err)
	}
	defer ledgerService.Close()

	publisher, err := ledger.NewPublisherFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to connect broker: %v", err)
	}
	defer publisher.Close()

	lby := lobby.New(cfg.DefaultRules, ledgerService, publisher)
	lby.SetNextHandDelay(cfg.NextHandDelay)
	defer lby.Close()

	gw := gateway.New(lby)
	lby.SetSender(gw.SendToUser)
	lby.SetListNotifier(gw.Broadcast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lby.StartSweeper(ctx, cfg.SweepInterval)

	handler := httpapi.SetupRoutes(lby, gw)

	log.Printf("[Server] Ledger mode: %s", ledgerMode)
	if publisher != nil {
		log.Printf("[Server] NATS broker connected")
	}
	log.Printf("[Server] Listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatalf("[Server] Failed to start: %v", err)
	}
}
