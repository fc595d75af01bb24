// Package service exposes the pipeline's operations to adapters such as
// the HTTP API and the command-line tools.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/CIPHER-000/chess-AI-sub000/internal/insight"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/scheduler"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store"
	"github.com/CIPHER-000/chess-AI-sub000/internal/tier"
)

// DefaultSummaryWindow is used when a summary request has no start.
const DefaultSummaryWindow = 7 * 24 * time.Hour

// Result page sizes for ListUserResults.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ResultPage is one page of a user's stored analyses, newest game first.
type ResultPage struct {
	UserID  int64                       `json:"user_id"`
	Offset  int                         `json:"offset"`
	Limit   int                         `json:"limit"`
	Total   int                         `json:"total"`
	Results []*model.GameAnalysisResult `json:"results"`
}

// Config wires a Service.
type Config struct {
	Store     store.Store
	Scheduler *scheduler.Scheduler
	Gate      *tier.Gate
	Insights  *insight.Aggregator
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Service is the facade over scheduler, gate, store and aggregator.
type Service struct {
	cfg Config
	log zerolog.Logger
}

// New returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.Scheduler == nil || cfg.Gate == nil || cfg.Insights == nil {
		return nil, fmt.Errorf("service: store, scheduler, gate and insights are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg, log: cfg.Logger.With().Str("component", "service").Logger()}, nil
}

// AnalyzeBatch queues analysis for the selected games and returns at once.
func (s *Service) AnalyzeBatch(ctx context.Context, userID int64, sel scheduler.Selection, force bool) (scheduler.Outcome, error) {
	return s.cfg.Scheduler.Submit(ctx, scheduler.Request{
		UserID:          userID,
		Selection:       sel,
		ForceReanalysis: force,
	})
}

// BatchStatus returns the current state of a batch.
func (s *Service) BatchStatus(id string) (scheduler.Outcome, error) {
	out, ok := s.cfg.Scheduler.Batch(id)
	if !ok {
		return scheduler.Outcome{}, fmt.Errorf("batch %s: %w", id, model.ErrBatchNotFound)
	}
	return out, nil
}

// WaitBatch blocks until the batch completes or ctx ends.
func (s *Service) WaitBatch(ctx context.Context, id string) (scheduler.Outcome, error) {
	return s.cfg.Scheduler.Wait(ctx, id)
}

// CancelBatch cancels the batch's games that have not started.
func (s *Service) CancelBatch(id string) (scheduler.Outcome, error) {
	out, ok := s.cfg.Scheduler.Cancel(id)
	if !ok {
		return scheduler.Outcome{}, fmt.Errorf("batch %s: %w", id, model.ErrBatchNotFound)
	}
	return out, nil
}

// PoolStatus reports worker pool activity.
func (s *Service) PoolStatus() scheduler.Status {
	return s.cfg.Scheduler.Status()
}

// GetGameResult returns the stored analysis of a game. A game that exists
// but was never analysed yields model.ErrResultNotFound.
func (s *Service) GetGameResult(ctx context.Context, gameID int64) (*model.GameAnalysisResult, error) {
	res, err := s.cfg.Store.GetResult(ctx, gameID)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, model.ErrResultNotFound) {
		return nil, err
	}
	if _, gerr := s.cfg.Store.GetGame(ctx, gameID); gerr != nil {
		return nil, gerr
	}
	return nil, err
}

// DeleteGameResult removes a game's analysis and clears its analyzed flag.
func (s *Service) DeleteGameResult(ctx context.Context, gameID int64) error {
	if _, err := s.cfg.Store.GetGame(ctx, gameID); err != nil {
		return err
	}
	if err := s.cfg.Store.DeleteResult(ctx, gameID); err != nil {
		return err
	}
	s.log.Info().Int64("game_id", gameID).Msg("analysis deleted")
	return nil
}

// ListUserResults pages through a user's analyses. A non-positive limit
// means DefaultPageSize; limits above MaxPageSize are capped.
func (s *Service) ListUserResults(ctx context.Context, userID int64, offset, limit int) (ResultPage, error) {
	if _, err := s.cfg.Store.GetUser(ctx, userID); err != nil {
		return ResultPage{}, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	results, total, err := s.cfg.Store.PageResults(ctx, userID, offset, limit)
	if err != nil {
		return ResultPage{}, err
	}
	return ResultPage{UserID: userID, Offset: offset, Limit: limit, Total: total, Results: results}, nil
}

// GetUserSummary aggregates a user's results in [start, end). A zero end
// means now and a zero start means DefaultSummaryWindow before end.
func (s *Service) GetUserSummary(ctx context.Context, userID int64, start, end time.Time) (*model.UserPerformanceSummary, error) {
	if _, err := s.cfg.Store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = s.cfg.Now()
	}
	if start.IsZero() {
		start = end.Add(-DefaultSummaryWindow)
	}
	return s.cfg.Insights.Summarize(ctx, userID, start, end)
}

// GetQuotaStatus reports a user's tier and AI analysis allowance.
func (s *Service) GetQuotaStatus(ctx context.Context, userID int64) (model.QuotaStatus, error) {
	return s.cfg.Gate.Status(ctx, userID)
}

// SetTier upgrades or downgrades a user.
func (s *Service) SetTier(ctx context.Context, userID int64, t model.Tier, resetTrial bool) (model.QuotaStatus, error) {
	return s.cfg.Gate.SetTier(ctx, userID, t, resetTrial)
}
