// Package enginetest provides deterministic evaluators for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// ScriptFunc answers the n-th call (0-based) of a session for the given FEN.
type ScriptFunc func(call int, fen string) (engine.Evaluation, error)

// Scripted is an evaluator driven by a ScriptFunc.
type Scripted struct {
	mu     sync.Mutex
	script ScriptFunc
	calls  int
	closed bool
	fens   []string
}

// New returns a Scripted evaluator.
func New(script ScriptFunc) *Scripted {
	return &Scripted{script: script}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Evaluate(ctx context.Context, fen string, _ engine.Budget) (engine.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.Evaluation{}, fmt.Errorf("scripted session closed: %w", model.ErrEvaluatorUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return engine.Evaluation{}, err
	}
	n := s.calls
	s.calls++
	s.fens = append(s.fens, fen)
	return s.script(n, fen)
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Calls returns how many evaluations were requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FENs returns the positions evaluated, in order.
func (s *Scripted) FENs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fens...)
}

// Constant scores every position cp for the side to move.
func Constant(cp int) ScriptFunc {
	return func(int, string) (engine.Evaluation, error) {
		return engine.Evaluation{CP: cp, BestMove: "e2e4", Depth: 12}, nil
	}
}

// Sequence returns evals[n] for the n-th call and repeats the last one after.
func Sequence(evals ...engine.Evaluation) ScriptFunc {
	return func(n int, _ string) (engine.Evaluation, error) {
		if len(evals) == 0 {
			return engine.Evaluation{}, fmt.Errorf("empty sequence: %w", model.ErrEvaluatorUnavailable)
		}
		if n >= len(evals) {
			n = len(evals) - 1
		}
		return evals[n], nil
	}
}

// FromLosses builds position scores such that ply k loses exactly losses[k]
// centipawns for the side that played it, given one evaluation per position
// starting from the initial one.
func FromLosses(losses ...int) ScriptFunc {
	evals := make([]engine.Evaluation, len(losses)+1)
	for k, loss := range losses {
		evals[k+1] = engine.Evaluation{CP: loss - evals[k].CP, Depth: 12}
	}
	for i := range evals {
		evals[i].BestMove = "e2e4"
		evals[i].Depth = 12
	}
	return Sequence(evals...)
}

// FailAt makes call n return ErrEvaluatorUnavailable and delegates the rest.
func FailAt(n int, next ScriptFunc) ScriptFunc {
	return func(call int, fen string) (engine.Evaluation, error) {
		if call == n {
			return engine.Evaluation{}, fmt.Errorf("scripted crash at call %d: %w", n, model.ErrEvaluatorUnavailable)
		}
		return next(call, fen)
	}
}

// Factory hands out Scripted sessions built from the same script and counts them.
type Factory struct {
	Script  ScriptFunc
	Err     error
	created atomic.Int64
}

func (f *Factory) NewSession(ctx context.Context) (engine.Evaluator, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.created.Add(1)
	return New(f.Script), nil
}

// Sessions returns the number of sessions created.
func (f *Factory) Sessions() int64 { return f.created.Load() }
