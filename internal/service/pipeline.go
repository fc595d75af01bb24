package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/CIPHER-000/chess-AI-sub000/internal/analyzer"
	"github.com/CIPHER-000/chess-AI-sub000/internal/config"
	"github.com/CIPHER-000/chess-AI-sub000/internal/eco"
	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/insight"
	"github.com/CIPHER-000/chess-AI-sub000/internal/orchestrator"
	"github.com/CIPHER-000/chess-AI-sub000/internal/scheduler"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store/sqlstore"
	"github.com/CIPHER-000/chess-AI-sub000/internal/tier"
)

// Pipeline is the assembled analysis stack.
type Pipeline struct {
	Service   *Service
	Scheduler *scheduler.Scheduler
	Gate      *tier.Gate
	Store     store.Store
}

// OpenStore opens the store named by cfg.Driver.
func OpenStore(cfg config.DatabaseConfig, logger zerolog.Logger) (store.Store, error) {
	if strings.EqualFold(cfg.Driver, "memory") {
		return store.NewMemory(), nil
	}
	return sqlstore.Open(sqlstore.Config{
		Driver:          strings.ToLower(cfg.Driver),
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		LogLevel:        cfg.LogLevel,
		Logger:          logger,
	})
}

// AnalyzerConfig maps the analysis and engine settings onto the analyzer.
func AnalyzerConfig(cfg *config.Config, logger zerolog.Logger) analyzer.Config {
	a := cfg.Analysis
	refine := analyzer.DefaultRefinement()
	refine.Enabled = a.Refine
	return analyzer.Config{
		Thresholds: analyzer.Thresholds{
			Best:       a.BestMax,
			Excellent:  a.ExcellentMax,
			Good:       a.GoodMax,
			Inaccuracy: a.InaccuracyMax,
			Mistake:    a.MistakeMax,
		},
		Refinement: refine,
		Phases:     analyzer.PhaseRule{OpeningPlies: a.OpeningPlies, EndgameMaterial: a.EndgameMaterial},
		Budget:     engine.Budget{Depth: cfg.Engine.Depth, MoveTime: cfg.Engine.MoveTime},
		Logger:     logger,
	}
}

// Openings returns the bundled opening table plus any files in dir.
func Openings(dir string, logger zerolog.Logger) *eco.Database {
	db := eco.Default()
	if dir != "" {
		if err := db.LoadDir(dir); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("failed to load ECO directory")
		}
	}
	logger.Info().Int("openings", db.Count()).Int("skipped", db.Skipped()).Msg("ECO database loaded")
	return db
}

// Build assembles the pipeline over st and factory.
func Build(cfg *config.Config, st store.Store, factory engine.Factory, logger zerolog.Logger) (*Pipeline, error) {
	an, err := analyzer.New(AnalyzerConfig(cfg, logger))
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(orchestrator.Config{
		Analyzer:           an,
		Store:              st,
		Openings:           Openings(cfg.Analysis.ECODir, logger),
		AccuracyDivisor:    cfg.Analysis.AccuracyDivisor,
		CriticalCPL:        cfg.Analysis.CriticalCPL,
		OpeningSearchPlies: cfg.Analysis.OpeningSearchPlies,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}
	gate, err := tier.New(tier.Config{
		Store:       st,
		FreeLimit:   cfg.Tier.FreeLimit,
		RaceRetries: cfg.Tier.RaceRetries,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(scheduler.Config{
		Workers:   cfg.Scheduler.Workers,
		Source:    st,
		Gate:      gate,
		Runner:    orch,
		Factory:   factory,
		RetainFor: cfg.Scheduler.RetainFor,
		OnBatchDone: func(o scheduler.Outcome) {
			logger.Info().
				Str("batch_id", o.BatchID).
				Int64("user_id", o.UserID).
				Int("succeeded", o.Count(scheduler.StatusSucceeded)).
				Int("failed", o.Count(scheduler.StatusFailed)).
				Int("cancelled", o.Count(scheduler.StatusCancelled)).
				Msg("batch complete")
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	svc, err := New(Config{
		Store:     st,
		Scheduler: sched,
		Gate:      gate,
		Insights:  insight.New(insight.Config{Store: st, AccuracyDivisor: cfg.Analysis.AccuracyDivisor}),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &Pipeline{Service: svc, Scheduler: sched, Gate: gate, Store: st}, nil
}

// Run starts the worker pool and blocks until ctx ends.
func (p *Pipeline) Run(ctx context.Context) error {
	return p.Scheduler.Run(ctx)
}
