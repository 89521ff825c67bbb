package main

import (
	"context"
	"log"
	"time"

	"crossid/internal/config"
	"crossid/internal/infra/db"
	httpinfra "crossid/internal/infra/http"
)

func main() {
	cfg := config.FromEnv()

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	if err := store.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	srv, err := httpinfra.NewServer(cfg, store)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	go runDispatchSweep(srv, cfg.DispatchSweepInterval())

	if err := srv.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// runDispatchSweep re-dispatches pending bridge requests at startup and then
// on an interval, picking up work whose goroutine died with a previous
// process.
func runDispatchSweep(srv *httpinfra.Server, interval time.Duration) {
	bridge := srv.Bridge()
	if bridge == nil || interval <= 0 {
		return
	}
	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		recovered, err := bridge.RecoverPending(ctx, 100)
		if err != nil {
			log.Printf("dispatch sweep: %v", err)
			return
		}
		if recovered > 0 {
			log.Printf("dispatch sweep: recovered %d requests", recovered)
		}
	}
	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		sweep()
	}
}
