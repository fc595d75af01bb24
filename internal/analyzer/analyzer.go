// Package analyzer replays a game and turns engine evaluations into per-move
// centipawn loss, quality tiers and phase tags.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CIPHER-000/chess-AI-sub000/internal/board"
	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// Config configures an Analyzer. Zero-valued sections get defaults.
type Config struct {
	Thresholds Thresholds
	Refinement Refinement
	Phases     PhaseRule
	Budget     engine.Budget
	Logger     zerolog.Logger
}

// Analyzer produces MoveRecords for a game. It is stateless and safe for
// concurrent use; the evaluator passed to Analyze is not.
type Analyzer struct {
	cfg Config
	log zerolog.Logger
}

// New validates cfg and returns an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Refinement.GreatGain == 0 && cfg.Refinement.BrilliantGain == 0 {
		enabled := cfg.Refinement.Enabled
		cfg.Refinement = DefaultRefinement()
		cfg.Refinement.Enabled = enabled
	}
	if cfg.Phases == (PhaseRule{}) {
		cfg.Phases = DefaultPhaseRule()
	}
	if cfg.Budget.Depth <= 0 && cfg.Budget.MoveTime <= 0 {
		cfg.Budget.Depth = 15
	}
	return &Analyzer{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "analyzer").Logger(),
	}, nil
}

// Budget returns the per-position engine budget.
func (a *Analyzer) Budget() engine.Budget { return a.cfg.Budget }

// Thresholds returns the classification bounds in use.
func (a *Analyzer) Thresholds() Thresholds { return a.cfg.Thresholds }

// positionEval is a position's score from its side to move's perspective.
type positionEval struct {
	score    int
	mate     int
	isMate   bool
	bestMove string
}

// Analyze evaluates every ply of moves. Any unparsable move or evaluator
// failure aborts the game with an *model.AnalysisError; no partial records
// are returned.
func (a *Analyzer) Analyze(ctx context.Context, gameID int64, moves []string, ev engine.Evaluator) ([]model.MoveRecord, error) {
	if len(moves) == 0 {
		return nil, &model.AnalysisError{GameID: gameID, Err: fmt.Errorf("no moves: %w", model.ErrUnparsableGame)}
	}

	replay := board.NewReplay()
	before, err := a.evaluate(ctx, ev, replay)
	if err != nil {
		return nil, &model.AnalysisError{GameID: gameID, Ply: 0, Err: err}
	}

	records := make([]model.MoveRecord, 0, len(moves))
	for ply, san := range moves {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mover := replay.SideToMove()
		material := replay.NonPawnMaterial()

		uci, err := replay.Play(san)
		if err != nil {
			return nil, &model.AnalysisError{
				GameID: gameID, Ply: ply, Move: san,
				Err: fmt.Errorf("%v: %w", err, model.ErrUnparsableGame),
			}
		}

		after, err := a.evaluate(ctx, ev, replay)
		if err != nil {
			a.log.Warn().Err(err).Int64("game_id", gameID).Int("ply", ply).Str("move", san).Msg("evaluation failed")
			return nil, &model.AnalysisError{GameID: gameID, Ply: ply, Move: san, Err: err}
		}

		scoreBefore := before.score
		scoreAfter := -after.score
		cpl := CentipawnLoss(scoreBefore, scoreAfter)
		class := a.cfg.Refinement.Refine(a.cfg.Thresholds.Classify(cpl), scoreBefore, scoreAfter)

		rec := model.MoveRecord{
			Ply:            ply,
			MoveNumber:     ply/2 + 1,
			Color:          mover,
			SAN:            san,
			UCI:            uci,
			CentipawnLoss:  cpl,
			Classification: class,
			Phase:          a.cfg.Phases.PhaseOf(ply, material),
			BestMove:       before.bestMove,
			ScoreBefore:    scoreBefore,
			ScoreAfter:     scoreAfter,
		}
		if after.isMate {
			rec.MateIn = -after.mate
		}
		records = append(records, rec)

		before = after
	}
	return records, nil
}

// evaluate scores the replay's current position. Checkmate and stalemate are
// decided from the board so no engine call is spent on them.
func (a *Analyzer) evaluate(ctx context.Context, ev engine.Evaluator, replay *board.Replay) (positionEval, error) {
	switch replay.Status() {
	case board.Checkmate:
		return positionEval{score: -MateScore, isMate: true}, nil
	case board.Stalemate:
		return positionEval{}, nil
	}

	res, err := ev.Evaluate(ctx, replay.FEN(), a.cfg.Budget)
	if err != nil {
		if !errors.Is(err, model.ErrEvaluatorUnavailable) && ctx.Err() == nil {
			err = fmt.Errorf("%v: %w", err, model.ErrEvaluatorUnavailable)
		}
		return positionEval{}, err
	}
	return positionEval{
		score:    Score(res),
		mate:     res.Mate,
		isMate:   res.IsMate,
		bestMove: res.BestMove,
	}, nil
}
