package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/freeeve/uci"
	"github.com/rs/zerolog"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// UCIConfig configures Stockfish-compatible engine sessions.
type UCIConfig struct {
	Path          string
	HashMB        int
	Threads       int
	Nice          int
	CeilingFactor float64
	HardTimeout   time.Duration
	Logger        zerolog.Logger
}

// UCIFactory starts one engine process per session.
type UCIFactory struct {
	cfg UCIConfig
	log zerolog.Logger
}

// NewUCIFactory validates the engine path and fills defaults.
func NewUCIFactory(cfg UCIConfig) (*UCIFactory, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path is required")
	}
	path, err := exec.LookPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("engine binary: %w", err)
	}
	cfg.Path = path
	if cfg.HashMB <= 0 {
		cfg.HashMB = 512
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 2
	}
	if cfg.CeilingFactor <= 0 {
		cfg.CeilingFactor = 3
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = 30 * time.Second
	}
	if cfg.Nice > 19 {
		cfg.Logger.Warn().Int("requested", cfg.Nice).Int("clamped", 19).Msg("nice value clamped to max 19")
		cfg.Nice = 19
	}
	return &UCIFactory{cfg: cfg, log: cfg.Logger.With().Str("component", "engine").Logger()}, nil
}

// NewSession starts an engine process and applies the configured options.
func (f *UCIFactory) NewSession(ctx context.Context) (Evaluator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eng, err := uci.NewEngine(f.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("start engine: %v: %w", err, model.ErrEvaluatorUnavailable)
	}
	opts := uci.Options{
		Hash:    f.cfg.HashMB,
		Threads: f.cfg.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := eng.SetOptions(opts); err != nil {
		eng.Close()
		return nil, fmt.Errorf("set engine options: %v: %w", err, model.ErrEvaluatorUnavailable)
	}
	if f.cfg.Nice > 0 {
		if err := eng.SetNice(f.cfg.Nice); err != nil {
			f.log.Warn().Err(err).Int("nice", f.cfg.Nice).Msg("failed to set nice value")
		}
	}
	f.log.Debug().Int("threads", f.cfg.Threads).Int("hash_mb", f.cfg.HashMB).Msg("engine session started")
	return &uciSession{
		eng:  eng,
		name: filepath.Base(f.cfg.Path),
		cfg:  f.cfg,
		log:  f.log,
	}, nil
}

type uciSession struct {
	mu     sync.Mutex
	eng    *uci.Engine
	name   string
	cfg    UCIConfig
	log    zerolog.Logger
	broken bool
	closed bool
}

type goResult struct {
	res *uci.Results
	err error
}

func (s *uciSession) Name() string { return s.name }

// Evaluate searches fen within the budget. A search that outlives the hard
// ceiling kills the engine; the session is unusable afterwards.
func (s *uciSession) Evaluate(ctx context.Context, fen string, budget Budget) (Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken || s.closed {
		return Evaluation{}, fmt.Errorf("session no longer usable: %w", model.ErrEvaluatorUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	if err := s.eng.SetFEN(fen); err != nil {
		s.markBroken()
		return Evaluation{}, fmt.Errorf("set FEN: %v: %w", err, model.ErrEvaluatorUnavailable)
	}

	depth, movetime, filter := searchArgs(budget)
	ceiling := budget.Ceiling(s.cfg.CeilingFactor, s.cfg.HardTimeout)

	done := make(chan goResult, 1)
	eng := s.eng
	go func() {
		res, err := eng.Go(depth, "", movetime, filter)
		done <- goResult{res: res, err: err}
	}()

	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	var out goResult
	select {
	case out = <-done:
	case <-timer.C:
		s.log.Warn().Str("fen", fen).Dur("ceiling", ceiling).Msg("evaluation exceeded hard ceiling, killing engine")
		s.markBroken()
		return Evaluation{}, fmt.Errorf("after %s: %w", ceiling, model.ErrEvaluationTimeout)
	case <-ctx.Done():
		s.markBroken()
		return Evaluation{}, fmt.Errorf("evaluation abandoned: %v: %w", ctx.Err(), model.ErrEvaluatorUnavailable)
	}

	if out.err != nil {
		s.markBroken()
		return Evaluation{}, fmt.Errorf("engine search: %v: %w", out.err, model.ErrEvaluatorUnavailable)
	}
	if out.res == nil || len(out.res.Results) == 0 {
		return Evaluation{}, fmt.Errorf("no results from engine: %w", model.ErrEvaluatorUnavailable)
	}

	best := out.res.Results[0]
	for _, r := range out.res.Results {
		if r.Depth > best.Depth {
			best = r
		}
	}

	ev := Evaluation{
		Depth:    best.Depth,
		BestMove: out.res.BestMove,
		PV:       append([]string(nil), best.BestMoves...),
	}
	if ev.BestMove == "" && len(best.BestMoves) > 0 {
		ev.BestMove = best.BestMoves[0]
	}
	if best.Mate {
		ev.IsMate = true
		ev.Mate = best.Score
	} else {
		ev.CP = best.Score
	}
	return ev, nil
}

// searchArgs maps a budget onto go command arguments. A move time makes the
// engine stop on its own and report the deepest line reached, so results are
// not filtered to an exact depth. Without either limit the search runs to
// depth 15.
func searchArgs(b Budget) (depth int, movetime int64, filter uint) {
	if b.MoveTime > 0 {
		ms := b.MoveTime.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		return max(b.Depth, 0), ms, 0
	}
	depth = b.Depth
	if depth <= 0 {
		depth = 15
	}
	return depth, 0, uci.HighestDepthOnly
}

// markBroken stops the engine process. Callers hold s.mu.
func (s *uciSession) markBroken() {
	s.broken = true
	if !s.closed {
		s.closed = true
		s.eng.Close()
	}
}

func (s *uciSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.eng.Close()
	}
	return nil
}
