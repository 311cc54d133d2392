package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sessionrelay/sessionrelay/internal/batcher"
	"github.com/sessionrelay/sessionrelay/internal/config"
	"github.com/sessionrelay/sessionrelay/internal/frontend"
	"github.com/sessionrelay/sessionrelay/internal/registry"
	"github.com/sessionrelay/sessionrelay/internal/store"
	"github.com/sessionrelay/sessionrelay/internal/wsconn"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sessionrelay",
		Short: "Real-time session replay relay broker",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("port", "8080", "HTTP port to listen on")
	f.String("host", "0.0.0.0", "host to bind")
	f.String("db-host", "localhost", "Postgres host")
	f.Int("db-port", 5432, "Postgres port")
	f.String("db-name", "sessionrelay", "Postgres database name")
	f.String("db-user", "sessionrelay", "Postgres user")
	f.String("db-password", "", "Postgres password")
	f.Int("db-max-connections", 10, "max open Postgres connections")
	f.Int("db-idle-timeout", 300, "Postgres connection idle timeout in seconds")
	f.Int("db-connection-timeout", 5, "Postgres connect timeout in seconds")
	f.Int("batch-size", 50, "max entries applied per Batcher flush")
	f.Int("batch-interval", 5, "seconds between interval-driven Batcher flushes")
	f.Int("max-events-per-session", 10000, "in-memory event buffer cap per session")
	f.Int("session-cleanup-interval", 3600, "seconds between in-memory session eviction sweeps")
	f.Int("heartbeat-interval", 30, "seconds between ConnectionHub heartbeat pings")
	f.String("log-level", "info", "log verbosity")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("port", "port")
	bindFlag("host", "host")
	bindFlag("db_host", "db-host")
	bindFlag("db_port", "db-port")
	bindFlag("db_name", "db-name")
	bindFlag("db_user", "db-user")
	bindFlag("db_password", "db-password")
	bindFlag("db_max_connections", "db-max-connections")
	bindFlag("db_idle_timeout", "db-idle-timeout")
	bindFlag("db_connection_timeout", "db-connection-timeout")
	bindFlag("batch_size", "batch-size")
	bindFlag("batch_interval", "batch-interval")
	bindFlag("max_events_per_session", "max-events-per-session")
	bindFlag("session_cleanup_interval", "session-cleanup-interval")
	bindFlag("heartbeat_interval", "heartbeat-interval")
	bindFlag("log_level", "log-level")

	// Env vars are bare (PORT, DB_HOST, ...), no prefix, matching spec §6's
	// environment configuration key list exactly.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("sessionrelay starting\n")
	fmt.Printf("  listen: %s:%s\n", cfg.Host, cfg.Port)
	fmt.Printf("  database: %s:%d/%s\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	fmt.Printf("  batch size: %d, batch interval: %ds\n", cfg.BatchSize, cfg.BatchInterval)
	fmt.Printf("  max events per session: %d\n", cfg.MaxEventsPerSession)
	fmt.Println()

	db, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	bat := batcher.New(db, cfg.BatchSize, time.Duration(cfg.BatchInterval)*time.Second)
	go bat.Run()

	reg := registry.New(bat, cfg.MaxEventsPerSession)
	cleanupStop := make(chan struct{})
	go reg.StartCleanup(time.Duration(cfg.SessionCleanupInterval)*time.Second, cleanupStop)

	hub := wsconn.NewHub(reg, time.Duration(cfg.HeartbeatInterval)*time.Second, cfg.Debug())

	addr := cfg.Host + ":" + cfg.Port
	httpServer := frontend.New(addr, db, hub, hub)
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Printf("frontend server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Printf("received %s, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("frontend server shutdown: %v", err)
	}

	hub.Shutdown()
	close(cleanupStop)
	bat.Shutdown()

	if err := db.Close(); err != nil {
		log.Printf("store close: %v", err)
	}

	return nil
}
