package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"studysprint/backend/internal/clock"
	"studysprint/backend/internal/config"
	"studysprint/backend/internal/db"
	"studysprint/backend/internal/handler"
	"studysprint/backend/internal/hub"
	"studysprint/backend/internal/logger"
	"studysprint/backend/internal/repository"
	"studysprint/backend/internal/router"
	"studysprint/backend/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional, env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zlog.Sync()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		zlog.Fatal("open database", zap.Error(err))
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir, zlog); err != nil {
		zlog.Fatal("run migrations", zap.Error(err))
	}

	sessionRepo := repository.NewSessionRepository(database)

	persister := session.NewPersister(sessionRepo, zlog,
		cfg.PersistQueueSize, cfg.PersistRetryAttempts, cfg.PersistRetryBaseDelay)

	policy := session.Policy{
		IdleThresholdSeconds: cfg.IdleThresholdSeconds,
		AutoEndIdleSeconds:   cfg.AutoEndIdleSeconds,
		CheckpointSeconds:    cfg.CheckpointSeconds,
		ActivityThrottle:     cfg.ActivityThrottle,
	}
	manager := session.NewManager(policy, cfg.TickInterval, clock.System(), sessionRepo, persister, zlog)
	persister.SetGiveUpHandler(manager.MarkUnpersisted)
	persister.Start()

	sessionHub := hub.New(zlog)
	manager.SetSnapshotSink(sessionHub.Broadcast)

	sessionHandler := handler.NewSessionHandler(manager, sessionRepo, sessionHub, zlog)
	engine := router.New(sessionHandler, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("backend listening", zap.String("port", cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		zlog.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("serve", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}

	// Stop tick loops, flush final checkpoints, then drain the write queue so
	// the next process revives sessions from fresh state.
	manager.Shutdown()
	persister.Close()
}
