// Package main runs the attendance hub offline sync core.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cubeclass/attendance-core/internal/config"
	"github.com/cubeclass/attendance-core/internal/db"
	"github.com/cubeclass/attendance-core/internal/logging"
	"github.com/cubeclass/attendance-core/internal/remote"
	syncpkg "github.com/cubeclass/attendance-core/internal/sync"
	"github.com/cubeclass/attendance-core/internal/webhook"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Failed to load configuration", err, nil)
		os.Exit(1)
	}

	logging.Init(os.Stdout, cfg.Logging.Level)
	logging.Info("Starting attendance core", map[string]interface{}{"version": Version})

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local store", err, nil)
		os.Exit(1)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		logging.Error("Failed to initialize migrations", err, nil)
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		logging.Error("Failed to apply migrations", err, nil)
		os.Exit(1)
	}

	store := db.NewStore(database.DB)
	defer store.Close()

	remoteClient := remote.NewHTTPClient(remote.Options{
		BaseURL:    cfg.Remote.BaseURL,
		APIKey:     cfg.Remote.APIKey,
		HTTPClient: &http.Client{Timeout: cfg.Remote.Timeout},
		MaxRetries: cfg.Remote.MaxRetries,
	})

	hooks, err := webhook.NewManager(db.NewKV(database.DB), webhook.Options{
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BaseDelay:   cfg.Webhook.BaseDelay,
		Timeout:     cfg.Webhook.Timeout,
		ReplayDelay: cfg.Webhook.ReplayDelay,
	})
	if err != nil {
		logging.Error("Failed to load webhook configuration", err, nil)
		os.Exit(1)
	}

	coordinator := syncpkg.NewCoordinator(store, remoteClient, hooks,
		&syncpkg.Config{Interval: cfg.Sync.Interval})

	// The webhook dispatcher tracks connectivity independently of the
	// coordinator's own retry logic.
	coordinator.Subscribe(func(e syncpkg.Event) {
		switch e.Type {
		case syncpkg.EventOnline:
			hooks.SetOnline(true)
		case syncpkg.EventOffline:
			hooks.SetOnline(false)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitorConnectivity(ctx, cfg.Remote.BaseURL, coordinator)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("Shutting down", nil)
	cancel()
	coordinator.Stop()
}

// monitorConnectivity polls the remote backend and feeds the result into the
// coordinator's state machine.
func monitorConnectivity(ctx context.Context, baseURL string, coordinator *syncpkg.Coordinator) {
	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	probe := func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL+"/health", nil)
		if err != nil {
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			coordinator.SetOnline(false)
			return
		}
		resp.Body.Close()
		coordinator.SetOnline(true)
	}

	probe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}
