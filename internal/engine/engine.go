// Package engine defines the position evaluator used by the analyzer and a
// UCI-backed implementation.
package engine

import (
	"context"
	"time"
)

// Budget bounds a single evaluation.
type Budget struct {
	Depth    int
	MoveTime time.Duration
}

// Ceiling returns the hard wall-clock limit for one call. A zero MoveTime
// falls back to the given timeout.
func (b Budget) Ceiling(factor float64, fallback time.Duration) time.Duration {
	if b.MoveTime > 0 {
		if factor <= 0 {
			factor = 3
		}
		return time.Duration(float64(b.MoveTime) * factor)
	}
	return fallback
}

// Evaluation is an engine verdict from the side to move's perspective.
type Evaluation struct {
	CP       int
	Mate     int // moves to mate; positive when the side to move mates
	IsMate   bool
	BestMove string
	PV       []string
	Depth    int
}

// Evaluator is one engine session. Sessions are not safe for concurrent use;
// each worker owns its own.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, budget Budget) (Evaluation, error)
	Name() string
	Close() error
}

// Factory creates evaluator sessions.
type Factory interface {
	NewSession(ctx context.Context) (Evaluator, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Evaluator, error)

func (f FactoryFunc) NewSession(ctx context.Context) (Evaluator, error) { return f(ctx) }
