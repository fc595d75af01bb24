// Package sweep periodically queues engine-only analysis of every user's
// unanalysed games. It never consumes AI quota.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/scheduler"
)

// Submitter queues batches.
type Submitter interface {
	Submit(ctx context.Context, req scheduler.Request) (scheduler.Outcome, error)
}

// UserLister enumerates the users to sweep.
type UserLister interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// Config configures a Sweeper.
type Config struct {
	Interval time.Duration
	// Days limits the sweep to games that ended recently; zero sweeps all
	// unanalysed games.
	Days      int
	Users     UserLister
	Scheduler Submitter
	Logger    zerolog.Logger
}

// Result summarises one sweep.
type Result struct {
	Users   int
	Batches int
	Queued  int
	Errors  int
}

// Sweeper runs the sweep on a gocron schedule.
type Sweeper struct {
	cfg Config
	log zerolog.Logger

	mu   sync.Mutex
	cron gocron.Scheduler
	last Result
	runs int
}

// New returns a Sweeper. Call Start to schedule it.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Users == nil || cfg.Scheduler == nil {
		return nil, fmt.Errorf("sweep: users and scheduler are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Sweeper{cfg: cfg, log: cfg.Logger.With().Str("component", "sweep").Logger()}, nil
}

// Start schedules the sweep every Interval, beginning immediately. Overlapping
// runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create cron scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() { s.RunOnce(ctx) }),
		gocron.WithName("unanalyzed-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = cron.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.mu.Lock()
	s.cron = cron
	s.mu.Unlock()
	cron.Start()
	s.log.Info().Dur("interval", s.cfg.Interval).Int("days", s.cfg.Days).Msg("sweep scheduled")
	return nil
}

// Stop cancels the schedule and waits for a running sweep to return.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	cron := s.cron
	s.cron = nil
	s.mu.Unlock()
	if cron == nil {
		return nil
	}
	return cron.Shutdown()
}

// RunOnce submits one engine-only batch per user.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	var res Result
	users, err := s.cfg.Users.ListUsers(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list users")
		res.Errors++
		s.record(res)
		return res
	}

	sel := scheduler.Selection{Kind: scheduler.SelectUnanalyzed}
	if s.cfg.Days > 0 {
		sel = scheduler.Selection{Kind: scheduler.SelectRecent, Days: s.cfg.Days}
	}
	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		res.Users++
		out, err := s.cfg.Scheduler.Submit(ctx, scheduler.Request{
			UserID:     u.ID,
			Selection:  sel,
			EngineOnly: true,
		})
		if err != nil {
			res.Errors++
			s.log.Warn().Err(err).Int64("user_id", u.ID).Msg("sweep submit failed")
			continue
		}
		if out.GamesQueued > 0 {
			res.Batches++
			res.Queued += out.GamesQueued
		}
	}
	s.record(res)
	s.log.Info().Int("users", res.Users).Int("batches", res.Batches).Int("queued", res.Queued).Int("errors", res.Errors).Msg("sweep finished")
	return res
}

func (s *Sweeper) record(res Result) {
	s.mu.Lock()
	s.last = res
	s.runs++
	s.mu.Unlock()
}

// Last returns the result of the latest sweep and how many sweeps ran.
func (s *Sweeper) Last() (Result, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.runs
}
