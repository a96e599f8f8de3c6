package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"setlist/bot/internal/app"
	"setlist/bot/internal/broadcast"
	"setlist/bot/internal/config"
	"setlist/bot/internal/kv"
	"setlist/bot/internal/lang"
	"setlist/bot/internal/persist"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	var store kv.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := kv.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		store = redisStore
	} else {
		log.Printf("Using PostgreSQL for session storage")
		pgStore, err := kv.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		store = pgStore
	}
	defer store.Close()

	state, err := persist.Load(ctx, store, cfg.DefaultOpen)
	if err != nil {
		log.Fatalf("loading persisted session failed: %v", err)
	}
	log.Printf("session loaded: open=%v, %d open songs", state.IsOpen(), len(state.TopRequests(0)))

	hub := broadcast.NewHub()
	emitter := broadcast.NewEmitter(hub, store, cfg.HistoryBroadcastLimit)
	service := app.New(cfg, state, store, emitter, lang.NewRegistry())

	// Prime the broadcast cache so a display connecting across the restart
	// converges without waiting for the next chat event.
	service.Refresh(ctx)

	httpServer := app.NewHTTPServer(service, hub, cfg.CORSOrigin)
	// No WriteTimeout: the overlay stream is a long-lived response.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Setlist bot listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	// Let in-flight hooks finish, then take a final save.
	service.Flush()
	if err := persist.Save(shutdownCtx, store, state.Snapshot()); err != nil {
		log.Printf("final save failed: %v", err)
	}
}
