// Package main provides the entry point for the worker service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/thebtf/tasteid/internal/config"
	"github.com/thebtf/tasteid/internal/db/gorm"
	"github.com/thebtf/tasteid/internal/lock"
	"github.com/thebtf/tasteid/internal/tasteid"
	"github.com/thebtf/tasteid/internal/worker"
)

var Version = "dev"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare data directory")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load settings")
	}
	config.Set(cfg)

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("version", Version).
		Str("db_driver", cfg.DBDriver).
		Msg("Starting tasteid worker")

	store, err := gorm.NewStore(gorm.Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	var locker lock.Locker = lock.NewKeyedLocker()
	if cfg.RedisAddr != "" {
		locker = lock.NewRedisLocker(lock.NewPool(cfg.RedisAddr), lock.DefaultRedisConfig(), log.Logger)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis recompute locks")
	}

	ratings := gorm.NewRatingStore(store)
	engine := tasteid.NewEngine(cfg.Engine, nil, log.Logger)
	taste := tasteid.NewService(engine, ratings, gorm.NewProfileStore(store), locker, log.Logger)
	taste.SetLockTimeout(time.Duration(cfg.LockTimeoutSeconds) * time.Second)

	svc := worker.NewService(Version, cfg, store, ratings, taste, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot reload of engine thresholds
	watcher, err := config.NewWatcher(config.SettingsPath(), cfg, func(next *config.Config) {
		config.Set(next)
		svc.ApplyConfig(next)
	}, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("Settings hot reload disabled")
	} else {
		go func() { _ = watcher.Run(ctx) }()
	}

	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Worker shutdown complete")
}
