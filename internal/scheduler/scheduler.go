// Package scheduler resolves batch requests into per-game jobs and runs them
// on a fixed pool of workers, each owning one evaluator session.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/orchestrator"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store"
	"github.com/CIPHER-000/chess-AI-sub000/internal/tier"
)

// Source is the slice of the store the scheduler reads from.
type Source interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetGame(ctx context.Context, id int64) (*model.Game, error)
	ListGames(ctx context.Context, userID int64, filter store.GameFilter) ([]*model.Game, error)
	GetFailure(ctx context.Context, gameID int64) (*model.AnalysisFailure, error)
}

// Runner analyses one game with a session.
type Runner interface {
	Run(ctx context.Context, job orchestrator.Job, ev engine.Evaluator) (*model.GameAnalysisResult, error)
}

// Config configures a Scheduler.
type Config struct {
	Workers int
	Source  Source
	Gate    *tier.Gate
	Runner  Runner
	Factory engine.Factory
	// OnBatchDone is called once per batch after its last job settles.
	OnBatchDone func(Outcome)
	// RetainFor keeps finished batches pollable for this long.
	RetainFor time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Status is a snapshot of pool activity.
type Status struct {
	Workers     int   `json:"workers"`
	QueueLength int   `json:"queue_length"`
	Claimed     int   `json:"claimed"`
	Running     int64 `json:"running"`
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	Cancelled   int64 `json:"cancelled"`
	Batches     int   `json:"batches"`
}

type job struct {
	batch   *batch
	batchID string
	gameID  int64
	user    *model.User
	mode    model.Mode
}

// Scheduler owns the job queue, the claim set and the worker pool.
type Scheduler struct {
	cfg    Config
	log    zerolog.Logger
	queue  *jobQueue
	claims *claimSet

	// admit is held for reading from the quota decision to the enqueue and
	// for writing while the queue closes.
	admit sync.RWMutex

	mu      sync.RWMutex
	batches map[string]*batch

	running   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// New returns a Scheduler. Call Run to start its workers.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Source == nil || cfg.Runner == nil || cfg.Factory == nil || cfg.Gate == nil {
		return nil, fmt.Errorf("scheduler: source, gate, runner and factory are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetainFor <= 0 {
		cfg.RetainFor = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "scheduler").Logger(),
		queue:   newJobQueue(),
		claims:  newClaimSet(),
		batches: make(map[string]*batch),
	}, nil
}

// Run starts the workers and blocks until ctx is cancelled. Jobs still
// queued at shutdown are cancelled; running jobs finish first.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.runWorker(gctx, workerID)
			return nil
		})
	}
	s.log.Info().Int("workers", s.cfg.Workers).Msg("worker pool started")

	err := g.Wait()
	s.admit.Lock()
	rest := s.queue.close()
	s.admit.Unlock()
	for _, j := range rest {
		s.cancelJob(j)
	}
	s.log.Info().Msg("worker pool stopped")
	return err
}

// Submit resolves the request's games, evaluates the tier gate once and
// queues one job per eligible game. It only fails on invalid input.
func (s *Scheduler) Submit(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Selection.Validate(); err != nil {
		return Outcome{}, err
	}
	user, err := s.cfg.Source.GetUser(ctx, req.UserID)
	if err != nil {
		return Outcome{}, err
	}
	games, err := s.resolve(ctx, user, req.Selection)
	if err != nil {
		return Outcome{}, err
	}

	now := s.cfg.Now()
	s.prune(now)
	batchID := uuid.NewString()
	out := Outcome{
		BatchID:         batchID,
		UserID:          user.ID,
		Selection:       req.Selection,
		ForceReanalysis: req.ForceReanalysis,
		SubmittedAt:     now,
	}

	alreadyAnalyzed, inProgress := 0, 0
	var queued []*model.Game
	for _, g := range games {
		if g.Analyzed && !req.ForceReanalysis {
			alreadyAnalyzed++
			continue
		}
		if req.Selection.automatic() && s.permanentlyFailed(ctx, g) {
			alreadyAnalyzed++
			continue
		}
		if !s.claims.claim(g.ID, batchID) {
			inProgress++
			out.Games = append(out.Games, GameOutcome{GameID: g.ID, Status: StatusSkipped, Reason: SkipInProgress})
			continue
		}
		queued = append(queued, g)
	}

	if len(queued) == 0 {
		switch {
		case inProgress > 0:
			out.EmptyReason = EmptyInProgress
		case alreadyAnalyzed > 0:
			out.EmptyReason = EmptyAlreadyAnalyzed
		default:
			out.EmptyReason = EmptyNoGames
		}
		if d, err := s.cfg.Gate.Peek(ctx, user.ID); err == nil {
			out.Decision = d
			out.RemainingQuota = d.Remaining
		}
		out.BatchID = ""
		out.CompletedAt = &now
		s.log.Info().Int64("user_id", user.ID).Str("reason", string(out.EmptyReason)).Msg("nothing to analyse")
		return out, nil
	}

	// a stopped pool must not spend a quota slot
	s.admit.RLock()
	defer s.admit.RUnlock()
	if s.queue.isClosed() {
		for _, g := range queued {
			s.claims.release(g.ID, batchID)
		}
		return Outcome{}, model.ErrSchedulerStopped
	}

	decision, err := s.decide(ctx, user.ID, req.EngineOnly)
	if err != nil {
		for _, g := range queued {
			s.claims.release(g.ID, batchID)
		}
		return Outcome{}, err
	}
	out.Decision = decision
	out.Mode = decision.Mode
	out.RemainingQuota = decision.Remaining
	out.UpgradePrompt = tier.UpgradePrompt(decision)
	out.GamesQueued = len(queued)
	for _, g := range queued {
		out.Games = append(out.Games, GameOutcome{GameID: g.ID, Status: StatusQueued, Mode: decision.Mode})
	}

	b := newBatch(out)
	s.mu.Lock()
	s.batches[batchID] = b
	s.mu.Unlock()

	jobs := make([]*job, 0, len(queued))
	for _, g := range queued {
		jobs = append(jobs, &job{batch: b, batchID: batchID, gameID: g.ID, user: user, mode: decision.Mode})
	}
	if err := s.queue.enqueue(jobs...); err != nil {
		for _, j := range jobs {
			s.cancelJob(j)
		}
		return b.snapshot(), fmt.Errorf("%v: %w", err, model.ErrSchedulerStopped)
	}

	s.log.Info().
		Str("batch_id", batchID).
		Int64("user_id", user.ID).
		Str("mode", string(decision.Mode)).
		Int("queued", len(queued)).
		Int("skipped", inProgress).
		Msg("batch submitted")
	return b.snapshot(), nil
}

func (s *Scheduler) decide(ctx context.Context, userID int64, engineOnly bool) (tier.Decision, error) {
	if engineOnly {
		d, err := s.cfg.Gate.Peek(ctx, userID)
		d.Mode = model.ModeEngineOnly
		return d, err
	}
	return s.cfg.Gate.Decide(ctx, userID)
}

// resolve turns a selection into the user's candidate games.
func (s *Scheduler) resolve(ctx context.Context, user *model.User, sel Selection) ([]*model.Game, error) {
	switch sel.Kind {
	case SelectExplicit:
		seen := make(map[int64]bool, len(sel.GameIDs))
		games := make([]*model.Game, 0, len(sel.GameIDs))
		for _, id := range sel.GameIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			g, err := s.cfg.Source.GetGame(ctx, id)
			if err != nil {
				return nil, err
			}
			if g.UserID != user.ID {
				return nil, fmt.Errorf("game %d does not belong to user %d: %w", id, user.ID, model.ErrGameNotFound)
			}
			games = append(games, g)
		}
		return games, nil
	case SelectRecent:
		return s.cfg.Source.ListGames(ctx, user.ID, store.GameFilter{
			EndedAfter:  s.cfg.Now().AddDate(0, 0, -sel.Days),
			TimeClasses: sel.TimeClasses,
			Rated:       sel.Rated,
			Limit:       sel.MaxGames,
		})
	default:
		return s.cfg.Source.ListGames(ctx, user.ID, store.GameFilter{
			OnlyUnanalyzed: true,
			TimeClasses:    sel.TimeClasses,
			Rated:          sel.Rated,
			Limit:          sel.MaxGames,
		})
	}
}

// permanentlyFailed reports a stored unparsable failure for the game's
// current move sequence.
func (s *Scheduler) permanentlyFailed(ctx context.Context, g *model.Game) bool {
	f, err := s.cfg.Source.GetFailure(ctx, g.ID)
	if err != nil {
		s.log.Warn().Err(err).Int64("game_id", g.ID).Msg("failed to read failure record")
		return false
	}
	return f.Permanent() && f.MovesDigest == g.MovesDigest()
}

// Batch returns the current state of a batch.
func (s *Scheduler) Batch(id string) (Outcome, bool) {
	s.mu.RLock()
	b, ok := s.batches[id]
	s.mu.RUnlock()
	if !ok {
		return Outcome{}, false
	}
	return b.snapshot(), true
}

// Wait blocks until the batch completes or ctx ends.
func (s *Scheduler) Wait(ctx context.Context, id string) (Outcome, error) {
	s.mu.RLock()
	b, ok := s.batches[id]
	s.mu.RUnlock()
	if !ok {
		return Outcome{}, fmt.Errorf("batch %s: %w", id, model.ErrBatchNotFound)
	}
	select {
	case <-b.done:
		return b.snapshot(), nil
	case <-ctx.Done():
		return b.snapshot(), ctx.Err()
	}
}

// Cancel marks the batch's unstarted games cancelled and releases their
// claims. Games already running finish and persist normally.
func (s *Scheduler) Cancel(id string) (Outcome, bool) {
	s.mu.RLock()
	b, ok := s.batches[id]
	s.mu.RUnlock()
	if !ok {
		return Outcome{}, false
	}
	ids, completed := b.cancelQueued(s.cfg.Now())
	for _, gameID := range ids {
		s.claims.release(gameID, id)
	}
	s.cancelled.Add(int64(len(ids)))
	s.log.Info().Str("batch_id", id).Int("cancelled", len(ids)).Msg("batch cancelled")
	if completed {
		s.notify(b)
	}
	return b.snapshot(), true
}

// Status reports pool activity.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	batches := len(s.batches)
	s.mu.RUnlock()
	return Status{
		Workers:     s.cfg.Workers,
		QueueLength: s.queue.len(),
		Claimed:     s.claims.len(),
		Running:     s.running.Load(),
		Succeeded:   s.succeeded.Load(),
		Failed:      s.failed.Load(),
		Cancelled:   s.cancelled.Load(),
		Batches:     batches,
	}
}

// runWorker pulls jobs until ctx ends. The worker's evaluator session lives
// across jobs and is replaced after an evaluator failure.
func (s *Scheduler) runWorker(ctx context.Context, workerID int) {
	log := s.log.With().Int("worker_id", workerID).Logger()
	var session engine.Evaluator
	defer func() {
		if session != nil {
			_ = session.Close()
		}
	}()

	for {
		j, err := s.queue.dequeue(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("worker stopping")
			return
		}
		if !j.batch.start(j.gameID) {
			// cancelled while queued; the claim was released by Cancel
			continue
		}
		s.running.Add(1)

		if session == nil {
			session, err = s.cfg.Factory.NewSession(ctx)
			if err != nil {
				session = nil
				log.Error().Err(err).Msg("failed to start evaluator session")
				if !errors.Is(err, model.ErrEvaluatorUnavailable) {
					err = fmt.Errorf("%v: %w", err, model.ErrEvaluatorUnavailable)
				}
				s.complete(j, nil, err)
				continue
			}
		}

		res, err := s.runJob(ctx, j, session)
		if err != nil && errors.Is(err, model.ErrEvaluatorUnavailable) {
			_ = session.Close()
			session = nil
		}
		s.complete(j, res, err)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job, session engine.Evaluator) (*model.GameAnalysisResult, error) {
	// a started job runs to completion even if the pool is shutting down
	runCtx := context.WithoutCancel(ctx)
	game, err := s.cfg.Source.GetGame(runCtx, j.gameID)
	if err != nil {
		return nil, err
	}
	return s.cfg.Runner.Run(runCtx, orchestrator.Job{Game: game, User: j.user, Mode: j.mode}, session)
}

func (s *Scheduler) complete(j *job, res *model.GameAnalysisResult, err error) {
	s.running.Add(-1)
	if err != nil {
		s.failed.Add(1)
	} else {
		s.succeeded.Add(1)
	}
	completed := j.batch.finish(j.gameID, func(g *GameOutcome) {
		if err != nil {
			g.Status = StatusFailed
			g.FailureKind = model.FailureKindOf(err)
			g.Error = err.Error()
			return
		}
		g.Status = StatusSucceeded
		acpl, acc := res.ACPL, res.Accuracy
		g.ACPL, g.Accuracy = &acpl, &acc
	}, s.cfg.Now())
	s.claims.release(j.gameID, j.batchID)
	if completed {
		s.notify(j.batch)
	}
}

// cancelJob settles a job that will never run.
func (s *Scheduler) cancelJob(j *job) {
	ids, completed := j.batch.cancelQueued(s.cfg.Now())
	for _, id := range ids {
		s.claims.release(id, j.batchID)
	}
	s.cancelled.Add(int64(len(ids)))
	if completed {
		s.notify(j.batch)
	}
}

func (s *Scheduler) notify(b *batch) {
	out := b.snapshot()
	s.log.Info().
		Str("batch_id", out.BatchID).
		Int("succeeded", out.Count(StatusSucceeded)).
		Int("failed", out.Count(StatusFailed)).
		Int("cancelled", out.Count(StatusCancelled)).
		Msg("batch complete")
	if s.cfg.OnBatchDone != nil {
		s.cfg.OnBatchDone(out)
	}
	b.markDone()
}

// prune forgets finished batches older than RetainFor.
func (s *Scheduler) prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.batches {
		b.mu.Lock()
		done := b.outcome.CompletedAt
		b.mu.Unlock()
		if done != nil && now.Sub(*done) > s.cfg.RetainFor {
			delete(s.batches, id)
		}
	}
}
