package model

import (
	"errors"
	"fmt"
)

var (
	// ErrEvaluatorUnavailable means the engine crashed, closed its pipe or returned nothing.
	ErrEvaluatorUnavailable = errors.New("evaluator unavailable")
	// ErrEvaluationTimeout means an evaluation exceeded its hard ceiling.
	ErrEvaluationTimeout = fmt.Errorf("evaluation timed out: %w", ErrEvaluatorUnavailable)
	// ErrUnparsableGame means the move sequence could not be replayed.
	ErrUnparsableGame = errors.New("unparsable game")
	// ErrQuotaRaceRejected is returned by quota stores when a concurrent grant won.
	ErrQuotaRaceRejected = errors.New("quota increment lost race")
	ErrUserNotFound      = errors.New("user not found")
	ErrGameNotFound      = errors.New("game not found")
	ErrResultNotFound    = errors.New("analysis result not found")
	ErrInvalidSelection  = errors.New("invalid game selection")
	ErrBatchNotFound     = errors.New("batch not found")
	// ErrUserNotInGame means the owner's username matches neither side of the game.
	ErrUserNotInGame = errors.New("user did not play in game")
	// ErrSchedulerStopped is returned for submissions after the worker pool shut down.
	ErrSchedulerStopped = errors.New("scheduler stopped")
	// ErrPersistence wraps storage failures on the result write path.
	ErrPersistence = errors.New("persistence failure")
)

// FailureKind classifies why a game's analysis failed.
type FailureKind string

const (
	FailureEvaluatorUnavailable FailureKind = "evaluator_unavailable"
	FailureUnparsableGame       FailureKind = "unparsable_game"
	FailurePersistence          FailureKind = "persistence"
	FailureUserNotInGame        FailureKind = "user_not_in_game"
	FailureInternal             FailureKind = "internal"
)

// FailureKindOf maps an error onto the failure taxonomy.
func FailureKindOf(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnparsableGame):
		return FailureUnparsableGame
	case errors.Is(err, ErrEvaluatorUnavailable):
		return FailureEvaluatorUnavailable
	case errors.Is(err, ErrPersistence):
		return FailurePersistence
	case errors.Is(err, ErrUserNotInGame):
		return FailureUserNotInGame
	default:
		return FailureInternal
	}
}

// AnalysisError carries the position at which a game's analysis stopped.
type AnalysisError struct {
	GameID int64
	Ply    int
	Move   string
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Move == "" {
		return fmt.Sprintf("game %d ply %d: %v", e.GameID, e.Ply, e.Err)
	}
	return fmt.Sprintf("game %d ply %d (%s): %v", e.GameID, e.Ply, e.Move, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
