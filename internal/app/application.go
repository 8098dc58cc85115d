// Package app wires the store, hub, coordinator, and servers together and
// owns startup and shutdown ordering.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"pollroom/internal/api"
	"pollroom/internal/config"
	"pollroom/internal/coordinator"
	"pollroom/internal/database"
	"pollroom/internal/hub"
	"pollroom/internal/ledger"
	"pollroom/internal/lifecycle"
	"pollroom/internal/presence"
	"pollroom/internal/websocket"
	dbconfig "pollroom/pkg/database"
)

// Application holds every long-lived component of the poll server.
type Application struct {
	cfg *config.Config

	store       *database.Manager
	presence    *presence.Registry
	wsRegistry  *websocket.Registry
	events      *hub.Hub
	lifecycle   *lifecycle.Lifecycle
	coordinator *coordinator.Coordinator
	server      *api.Server
}

// New builds the component graph. Construction order matters: the lifecycle's
// expiry callback and the coordinator's grace timer both re-enter through the
// hub, so the hub exists first.
func New(cfg *config.Config) (*Application, error) {
	storeCfg := dbconfig.DefaultConfig(cfg.Database.Path)
	storeCfg.MaxConnections = cfg.Database.MaxConnections
	storeCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	storeCfg.WriteTimeout = cfg.Database.WriteTimeout
	storeCfg.HealthInterval = cfg.Database.HealthInterval

	store, err := database.NewManager(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	events := hub.NewHub(cfg.WebSocket.EventQueueSize)
	reg := presence.NewRegistry()
	wsRegistry := websocket.NewRegistry()

	polls := lifecycle.NewLifecycle(store, reg, func(pollID string) {
		if err := events.EnqueuePollExpired(pollID); err != nil {
			log.Printf("Failed to enqueue poll expiry for %s: %v", pollID, err)
		}
	})

	coord := coordinator.NewCoordinator(store, reg, ledger.NewLedger(store), polls, wsRegistry, events, coordinator.Options{
		TeacherGrace:   cfg.Poll.TeacherGrace,
		VoteRateLimit:  cfg.Poll.VoteRateLimit,
		VoteRateWindow: cfg.Poll.VoteRateWindow,
		EndRetryDelay:  cfg.Poll.EndRetryDelay,
	})

	wsHandler := websocket.NewHandler(wsRegistry, events, cfg.WebSocket)
	server := api.NewServer(cfg.HTTP, store, polls, wsRegistry.Stats, wsHandler)

	return &Application{
		cfg:         cfg,
		store:       store,
		presence:    reg,
		wsRegistry:  wsRegistry,
		events:      events,
		lifecycle:   polls,
		coordinator: coord,
		server:      server,
	}, nil
}

// Start recovers persisted poll state, starts the dispatch loop, and serves
// HTTP until Stop or a listener failure.
func (a *Application) Start(ctx context.Context) error {
	recovered, err := a.lifecycle.RecoverTimers(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover poll timers: %w", err)
	}
	if recovered != nil {
		log.Printf("Recovery ended stale poll: id=%s", recovered.Poll.ID)
	}

	a.events.Run(ctx, a.coordinator)
	return a.server.Start()
}

// Stop shuts components down in reverse dependency order.
func (a *Application) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	a.events.Stop()
	a.coordinator.Stop()
	a.lifecycle.Stop()

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	log.Println("Shutdown complete")
	return nil
}
