// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phaseten/phaseten/internal/auth"
	"github.com/phaseten/phaseten/internal/cache"
	"github.com/phaseten/phaseten/internal/config"
	"github.com/phaseten/phaseten/internal/database"
	"github.com/phaseten/phaseten/internal/lobby"
	"github.com/phaseten/phaseten/internal/logging"
	"github.com/phaseten/phaseten/internal/server"
	"github.com/phaseten/phaseten/internal/timeout"
	"github.com/phaseten/phaseten/internal/users"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		logging.For("main").WithError(err).Fatal("Server stopped with an error.")
	}
}

func run(cfg config.Config) error {
	log := logging.For("main")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("tokens: %w", err)
	}
	if cfg.JWTSecret == "" {
		log.Warn("PHASETEN_JWT_SECRET not set; tokens will not survive a restart.")
	}

	deps := lobby.Deps{Rules: cfg.HouseRules()}
	var userStore users.Store

	if cfg.DatabaseURL != "" {
		store, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer store.Close()
		deps.Results = store
		userStore = store
		log.Info("Connected to PostgreSQL.")
	} else {
		log.Info("DATABASE_URL not set; results will not be persisted.")
	}

	if cfg.RedisAddr != "" {
		hist, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer hist.Close()
		deps.Historian = hist
		log.Infof("Publishing game actions to Redis at %s.", cfg.RedisAddr)
	}

	dir := users.NewDirectory(tokens, userStore)
	if store, ok := deps.Results.(*database.Store); ok {
		records, err := store.LoadUsers(ctx)
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		dir.Restore(records)
	}

	supervisor := timeout.NewSupervisor(cfg.TimeoutTick, timeout.SystemClock)
	deps.Timer = supervisor
	deps.Clock = supervisor.Now

	hub := server.NewHub(logging.For("hub"))
	reg := lobby.NewRegistry(deps, hub)
	defer reg.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(hub, reg, dir, cfg.AllowedOrigins).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		log.Infof("Listening on %s.", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
