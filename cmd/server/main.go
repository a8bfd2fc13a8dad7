package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/alerter"
	"github.com/fleetwatch/fleetwatch/internal/api"
	"github.com/fleetwatch/fleetwatch/internal/auth"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/fleetwatch/fleetwatch/internal/monitor"
	"github.com/fleetwatch/fleetwatch/internal/storage"
	"github.com/fleetwatch/fleetwatch/internal/watcher"
)

const (
	defaultAdminUser     = "admin"
	defaultAdminPassword = "admin123"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg := config.LoadOrDefault(configPath)

	logger.Setup(cfg.Log)
	slog.Info("starting FleetWatch", "config", configPath)

	if cfg.Security.EncryptionKey == "" || cfg.Security.SessionSecret == "" {
		slog.Error("encryption_key and session_secret must be configured")
		os.Exit(1)
	}

	cipher := crypto.New(cfg.Security.EncryptionKey)
	auth.InitSessionStore(cfg.Security.SessionSecret)

	// Ensure database directory exists
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		slog.Error("failed to create database directory", "error", err)
		os.Exit(1)
	}

	db, err := storage.New(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database initialized", "path", cfg.Database.Path)

	if err := ensureAdminAccount(db); err != nil {
		slog.Error("failed to ensure admin account", "error", err)
		os.Exit(1)
	}

	dispatcher := alerter.New(db, cfg.SMTP)
	mon := monitor.New(db, cipher, dispatcher, cfg.Monitor.TimeoutSeconds)

	sched := watcher.New(db, cipher, cfg.Monitor.TimeoutSeconds)
	defer sched.Stop()
	if err := sched.LoadAll(); err != nil {
		slog.Error("failed to load watch tasks", "error", err)
		os.Exit(1)
	}

	apiServer := api.New(db, cipher, mon, sched)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background reconciliation loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runPeriodicReconciliation(ctx, mon, cfg.Monitor.IntervalSeconds)

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	cancel() // Stop background reconciliation

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// ensureAdminAccount creates the default admin user on first start. The
// account is flagged to require a password change at first login.
func ensureAdminAccount(db *storage.DB) error {
	hash, err := auth.HashPassword(defaultAdminPassword)
	if err != nil {
		return err
	}

	created, err := db.EnsureAdminUser(defaultAdminUser, hash)
	if err != nil {
		return err
	}
	if created {
		slog.Warn("default admin account created, change the password after first login",
			"username", defaultAdminUser)
	}
	return nil
}

// runPeriodicReconciliation runs reconciliation passes at regular intervals
func runPeriodicReconciliation(ctx context.Context, mon *monitor.Monitor, intervalSeconds int) {
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()

	// Run initial pass
	slog.Info("running initial reconciliation")
	mon.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping periodic reconciliation")
			return
		case <-ticker.C:
			mon.Run(ctx)
		}
	}
}
