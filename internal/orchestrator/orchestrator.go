// Package orchestrator runs the analyzer for one game, aggregates the tracked
// user's moves into game metrics and persists the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/CIPHER-000/chess-AI-sub000/internal/analyzer"
	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// ResultWriter is the slice of the store the orchestrator writes to.
type ResultWriter interface {
	SaveResult(ctx context.Context, r *model.GameAnalysisResult) error
	RecordFailure(ctx context.Context, f *model.AnalysisFailure) error
}

// OpeningDetector finds the opening of a move sequence.
type OpeningDetector interface {
	Detect(moves []string, maxPlies int) *model.Opening
}

// Config configures an Orchestrator.
type Config struct {
	Analyzer *analyzer.Analyzer
	Store    ResultWriter
	Openings OpeningDetector // optional
	// AccuracyDivisor scales ACPL into the accuracy penalty.
	AccuracyDivisor float64
	// CriticalCPL is the loss at or above which a user move is critical.
	CriticalCPL int
	// OpeningSearchPlies bounds opening detection.
	OpeningSearchPlies int
	Logger             zerolog.Logger
	Now                func() time.Time
}

// Orchestrator turns one game into a stored GameAnalysisResult.
type Orchestrator struct {
	cfg Config
	log zerolog.Logger
}

// New returns an Orchestrator with defaults applied.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("orchestrator: analyzer is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	if cfg.AccuracyDivisor <= 0 {
		cfg.AccuracyDivisor = 10
	}
	if cfg.CriticalCPL <= 0 {
		cfg.CriticalCPL = 150
	}
	if cfg.OpeningSearchPlies <= 0 {
		cfg.OpeningSearchPlies = 30
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Job is one game to analyse on behalf of a user.
type Job struct {
	Game *model.Game
	User *model.User
	Mode model.Mode
}

// Run analyses the job's game with ev and persists the result. On analyzer
// failure a failure record is written and the game's analyzed state and
// any prior result are left alone.
func (o *Orchestrator) Run(ctx context.Context, job Job, ev engine.Evaluator) (*model.GameAnalysisResult, error) {
	start := o.cfg.Now()
	game := job.Game
	log := o.log.With().Int64("game_id", game.ID).Int64("user_id", game.UserID).Logger()

	if _, err := game.UserColor(usernameOf(job.User)); err != nil {
		o.recordFailure(ctx, game, err, log)
		return nil, err
	}

	records, err := o.cfg.Analyzer.Analyze(ctx, game.ID, game.Moves, ev)
	if err != nil {
		o.recordFailure(ctx, game, err, log)
		return nil, err
	}

	res, err := o.Summarize(game, job.User, records)
	if err != nil {
		o.recordFailure(ctx, game, err, log)
		return nil, err
	}
	res.Mode = job.Mode
	res.Engine = ev.Name()
	res.Depth = o.cfg.Analyzer.Budget().Depth
	res.CreatedAt = o.cfg.Now()
	res.Duration = res.CreatedAt.Sub(start)

	// persistence must not be cut short by the caller going away
	if err := o.cfg.Store.SaveResult(context.WithoutCancel(ctx), res); err != nil {
		err = fmt.Errorf("save result for game %d: %v: %w", game.ID, err, model.ErrPersistence)
		log.Error().Err(err).Msg("failed to persist analysis")
		return nil, err
	}

	log.Info().
		Str("mode", string(res.Mode)).
		Float64("acpl", res.ACPL).
		Float64("accuracy", res.Accuracy).
		Int("moves", len(records)).
		Dur("dur", res.Duration).
		Msg("game analysed")
	return res, nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, game *model.Game, err error, log zerolog.Logger) {
	f := &model.AnalysisFailure{
		GameID:      game.ID,
		Kind:        model.FailureKindOf(err),
		Message:     err.Error(),
		MovesDigest: game.MovesDigest(),
		At:          o.cfg.Now(),
	}
	var ae *model.AnalysisError
	if errors.As(err, &ae) {
		f.Ply = ae.Ply
		f.Move = ae.Move
	}
	log.Warn().Err(err).Str("kind", string(f.Kind)).Int("ply", f.Ply).Str("move", f.Move).Msg("game analysis failed")
	if werr := o.cfg.Store.RecordFailure(context.WithoutCancel(ctx), f); werr != nil {
		log.Error().Err(werr).Msg("failed to record analysis failure")
	}
}

func usernameOf(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}

// Summarize aggregates records into a result for the game's tracked user.
// It does not touch the store. The user must have played one side of the game.
func (o *Orchestrator) Summarize(game *model.Game, user *model.User, records []model.MoveRecord) (*model.GameAnalysisResult, error) {
	color, err := game.UserColor(usernameOf(user))
	if err != nil {
		return nil, err
	}

	res := &model.GameAnalysisResult{
		GameID:      game.ID,
		UserID:      game.UserID,
		UserColor:   color,
		UserResult:  game.ResultFor(color),
		UserRating:  game.Participant(color).Rating,
		GameEndTime: game.EndTime,
		TimeClass:   game.TimeClass,
		Moves:       records,
	}

	oppCPL, oppMoves := 0, 0
	for _, rec := range records {
		if rec.Color != color {
			oppCPL += rec.CentipawnLoss
			oppMoves++
			continue
		}
		res.TotalCPL += rec.CentipawnLoss
		res.MoveCount++
		res.Phases.For(rec.Phase).Add(rec.CentipawnLoss)
		res.Counts.Add(rec.Classification)
		if rec.CentipawnLoss >= o.cfg.CriticalCPL {
			res.CriticalPlies = append(res.CriticalPlies, rec.Ply)
		}
	}

	acpl := 0.0
	if res.MoveCount > 0 {
		acpl = float64(res.TotalCPL) / float64(res.MoveCount)
	}
	res.ACPL = model.Round2(acpl)
	res.Accuracy = model.Round2(Accuracy(acpl, o.cfg.AccuracyDivisor))
	if oppMoves > 0 {
		res.OpponentACPL = model.Round2(float64(oppCPL) / float64(oppMoves))
	}
	res.Phases.Finish()

	if o.cfg.Openings != nil {
		res.Opening = o.cfg.Openings.Detect(game.Moves, o.cfg.OpeningSearchPlies)
	}
	return res, nil
}

// Accuracy maps ACPL onto [0, 100].
func Accuracy(acpl, divisor float64) float64 {
	if divisor <= 0 {
		divisor = 10
	}
	return math.Max(0, math.Min(100, 100-acpl/divisor))
}
