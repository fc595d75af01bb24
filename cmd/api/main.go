package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CIPHER-000/chess-AI-sub000/internal/config"
	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/httpapi"
	"github.com/CIPHER-000/chess-AI-sub000/internal/logx"
	"github.com/CIPHER-000/chess-AI-sub000/internal/service"
	"github.com/CIPHER-000/chess-AI-sub000/internal/sweep"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "YAML config file (optional)")

		// Flags override the config file and environment when set.
		addr          = flag.String("addr", "", "listen address")
		stockfishPath = flag.String("stockfish", "", "path to Stockfish executable")
		workers       = flag.Int("workers", 0, "number of analysis workers")
		depth         = flag.Int("depth", 0, "engine search depth per position")
		dbDriver      = flag.String("db-driver", "", "database driver: memory, sqlite or postgres")
		dbDSN         = flag.String("db-dsn", "", "database DSN")
		enableSweep   = flag.Bool("sweep", false, "enable the periodic engine-only sweep")
	)
	flag.Parse()

	boot := logx.NewLogger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *stockfishPath != "" {
		cfg.Engine.Path = *stockfishPath
	}
	if *workers > 0 {
		cfg.Scheduler.Workers = *workers
	}
	if *depth > 0 {
		cfg.Engine.Depth = *depth
	}
	if *dbDriver != "" {
		cfg.Database.Driver = *dbDriver
	}
	if *dbDSN != "" {
		cfg.Database.DSN = *dbDSN
	}
	if *enableSweep {
		cfg.Sweep.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("invalid config")
	}

	logger := logx.New(logx.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	st, err := service.OpenStore(cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open store")
	}
	defer st.Close()

	factory, err := engine.NewUCIFactory(engine.UCIConfig{
		Path:          cfg.Engine.Path,
		HashMB:        cfg.Engine.HashMB,
		Threads:       cfg.Engine.Threads,
		Nice:          cfg.Engine.Nice,
		CeilingFactor: float64(cfg.Engine.CeilingFactor),
		HardTimeout:   cfg.Engine.HardTimeout,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Engine.Path).Msg("engine unavailable")
	}

	pipeline, err := service.Build(cfg, st, factory, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := pipeline.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("worker pool stopped")
		}
	}()

	var sweeper *sweep.Sweeper
	if cfg.Sweep.Enabled {
		sweeper, err = sweep.New(sweep.Config{
			Interval:  cfg.Sweep.Interval,
			Days:      cfg.Sweep.Days,
			Users:     st,
			Scheduler: pipeline.Scheduler,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("create sweep")
		}
		if err := sweeper.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("start sweep")
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.NewRouter(logger, pipeline.Service),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server first so no new batches arrive
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	if sweeper != nil {
		if err := sweeper.Stop(); err != nil {
			logger.Warn().Err(err).Msg("sweep shutdown error")
		}
	}

	// Running games finish and persist; queued ones are cancelled
	select {
	case <-poolDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("worker pool did not stop before shutdown timeout")
	}

	logger.Info().Msg("shutdown complete")
}
