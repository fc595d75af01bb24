// Package store defines the persistence contracts of the analysis pipeline
// and provides an in-memory implementation. A gorm-backed implementation
// lives in sqlstore.
package store

import (
	"context"
	"time"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// GameFilter narrows ListGames. Zero fields do not filter.
type GameFilter struct {
	EndedAfter     time.Time
	TimeClasses    []string
	OnlyUnanalyzed bool
	// Rated keeps only rated (true) or unrated (false) games when set.
	Rated *bool
	// Limit caps the result to the newest Limit games.
	Limit int
}

// Matches reports whether g passes the filter.
func (f GameFilter) Matches(g *model.Game) bool {
	if f.OnlyUnanalyzed && g.Analyzed {
		return false
	}
	if !f.EndedAfter.IsZero() && g.EndTime.Before(f.EndedAfter) {
		return false
	}
	if f.Rated != nil && g.Rated != *f.Rated {
		return false
	}
	if len(f.TimeClasses) > 0 {
		ok := false
		for _, tc := range f.TimeClasses {
			if tc == g.TimeClass {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// GameStore reads and seeds games. Ingestion itself happens elsewhere.
type GameStore interface {
	GetGame(ctx context.Context, id int64) (*model.Game, error)
	// ListGames returns a user's games ordered by end time, newest first.
	ListGames(ctx context.Context, userID int64, filter GameFilter) ([]*model.Game, error)
	PutGame(ctx context.Context, g *model.Game) error
}

// UserStore holds users and their quota state.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	PutUser(ctx context.Context, u *model.User) error
	// ConsumeAIQuota atomically grants one AI analysis to a free user when
	// used < limit. It returns the updated user and whether the grant was
	// made. Pro users are granted without touching the counter. Exhaustion
	// is stamped the first time used reaches limit. A concurrent grant that
	// took the last slot first yields model.ErrQuotaRaceRejected.
	ConsumeAIQuota(ctx context.Context, userID int64, now time.Time) (*model.User, bool, error)
	// SetTier changes a user's tier and limit; resetTrial zeroes the
	// counter and clears the exhaustion stamp.
	SetTier(ctx context.Context, userID int64, tier model.Tier, limit int, resetTrial bool) (*model.User, error)
}

// ResultStore persists analysis outcomes.
type ResultStore interface {
	// SaveResult upserts the result, sets the game's analyzed flag and
	// clears any recorded failure in one atomic write.
	SaveResult(ctx context.Context, r *model.GameAnalysisResult) error
	GetResult(ctx context.Context, gameID int64) (*model.GameAnalysisResult, error)
	// DeleteResult removes the result and clears the analyzed flag atomically.
	DeleteResult(ctx context.Context, gameID int64) error
	// ListResults returns a user's results with game end time in [start, end).
	ListResults(ctx context.Context, userID int64, start, end time.Time) ([]*model.GameAnalysisResult, error)
	// PageResults returns a window of a user's results, newest game first,
	// and the user's total result count.
	PageResults(ctx context.Context, userID int64, offset, limit int) ([]*model.GameAnalysisResult, int, error)
	RecordFailure(ctx context.Context, f *model.AnalysisFailure) error
	// GetFailure returns nil, nil when the game has no recorded failure.
	GetFailure(ctx context.Context, gameID int64) (*model.AnalysisFailure, error)
}

// Store is the full persistence surface.
type Store interface {
	GameStore
	UserStore
	ResultStore
	Close() error
}
