package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/tier"
)

// SelectionKind picks how a batch chooses its games.
type SelectionKind string

const (
	SelectExplicit   SelectionKind = "explicit"
	SelectRecent     SelectionKind = "recent"
	SelectUnanalyzed SelectionKind = "unanalyzed"
)

// Selection describes which of a user's games a batch targets. Rated and
// MaxGames narrow automatic selections; MaxGames keeps the newest games.
type Selection struct {
	Kind        SelectionKind `json:"kind"`
	GameIDs     []int64       `json:"game_ids,omitempty"`
	Days        int           `json:"days,omitempty"`
	TimeClasses []string      `json:"time_classes,omitempty"`
	Rated       *bool         `json:"rated,omitempty"`
	MaxGames    int           `json:"max_games,omitempty"`
}

// Validate rejects selections that cannot be resolved.
func (s Selection) Validate() error {
	if s.MaxGames < 0 {
		return fmt.Errorf("max games must not be negative: %w", model.ErrInvalidSelection)
	}
	switch s.Kind {
	case SelectExplicit:
		if len(s.GameIDs) == 0 {
			return fmt.Errorf("explicit selection needs game ids: %w", model.ErrInvalidSelection)
		}
		if s.Rated != nil || s.MaxGames > 0 {
			return fmt.Errorf("rated and max games do not apply to explicit ids: %w", model.ErrInvalidSelection)
		}
	case SelectRecent:
		if s.Days <= 0 {
			return fmt.Errorf("recent selection needs a positive day count: %w", model.ErrInvalidSelection)
		}
	case SelectUnanalyzed:
	default:
		return fmt.Errorf("unknown selection kind %q: %w", s.Kind, model.ErrInvalidSelection)
	}
	return nil
}

// automatic selections skip games whose failure cannot change on retry.
func (s Selection) automatic() bool { return s.Kind != SelectExplicit }

// Request is one analyzeBatch call.
type Request struct {
	UserID          int64
	Selection       Selection
	ForceReanalysis bool
	// EngineOnly skips the tier gate and never consumes AI quota.
	EngineOnly bool
}

// GameStatus is the lifecycle state of one game within a batch.
type GameStatus string

const (
	StatusQueued    GameStatus = "queued"
	StatusRunning   GameStatus = "running"
	StatusSucceeded GameStatus = "succeeded"
	StatusFailed    GameStatus = "failed"
	StatusSkipped   GameStatus = "skipped"
	StatusCancelled GameStatus = "cancelled"
)

// SkipInProgress is the reason given for games claimed by another batch.
const SkipInProgress = "in_progress"

// EmptyReason explains why a batch queued nothing.
type EmptyReason string

const (
	EmptyNoGames         EmptyReason = "no_games"
	EmptyAlreadyAnalyzed EmptyReason = "already_analyzed"
	EmptyInProgress      EmptyReason = "in_progress"
)

// GameOutcome is one selected game's fate.
type GameOutcome struct {
	GameID      int64             `json:"game_id"`
	Status      GameStatus        `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	FailureKind model.FailureKind `json:"failure_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	Mode        model.Mode        `json:"mode,omitempty"`
	ACPL        *float64          `json:"acpl,omitempty"`
	Accuracy    *float64          `json:"accuracy,omitempty"`
}

// Outcome is the caller-visible state of a batch.
type Outcome struct {
	BatchID         string        `json:"batch_id,omitempty"`
	UserID          int64         `json:"user_id"`
	Selection       Selection     `json:"selection"`
	ForceReanalysis bool          `json:"force_reanalysis"`
	Mode            model.Mode    `json:"mode,omitempty"`
	Decision        tier.Decision `json:"decision"`
	RemainingQuota  int           `json:"remaining_quota"`
	UpgradePrompt   string        `json:"upgrade_prompt,omitempty"`
	GamesQueued     int           `json:"games_queued"`
	EmptyReason     EmptyReason   `json:"empty_reason,omitempty"`
	Games           []GameOutcome `json:"games"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	Cancelled       bool          `json:"cancelled"`
}

// Done reports whether every queued game reached a final state.
func (o *Outcome) Done() bool { return o.CompletedAt != nil }

// Count returns how many games have the given status.
func (o *Outcome) Count(s GameStatus) int {
	n := 0
	for _, g := range o.Games {
		if g.Status == s {
			n++
		}
	}
	return n
}

// batch tracks a submitted batch while its jobs run.
type batch struct {
	mu      sync.Mutex
	outcome Outcome
	index   map[int64]int
	pending int
	done    chan struct{}
	once    sync.Once
}

func newBatch(o Outcome) *batch {
	b := &batch{outcome: o, index: make(map[int64]int, len(o.Games)), done: make(chan struct{})}
	for i, g := range o.Games {
		b.index[g.GameID] = i
		if g.Status == StatusQueued {
			b.pending++
		}
	}
	return b
}

func (b *batch) snapshot() Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.outcome
	o.Games = append([]GameOutcome(nil), b.outcome.Games...)
	o.Selection.GameIDs = append([]int64(nil), b.outcome.Selection.GameIDs...)
	return o
}

// start moves a queued game to running. It returns false when the game was
// cancelled before a worker reached it.
func (b *batch) start(gameID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[gameID]
	if !ok || b.outcome.Games[i].Status != StatusQueued {
		return false
	}
	b.outcome.Games[i].Status = StatusRunning
	return true
}

// finish records a final state and reports whether the batch just completed.
func (b *batch) finish(gameID int64, update func(*GameOutcome), now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[gameID]
	if !ok || b.outcome.Games[i].Status != StatusRunning {
		return false
	}
	update(&b.outcome.Games[i])
	b.pending--
	return b.completeLocked(now)
}

// cancelQueued marks every still-queued game cancelled and returns their ids.
func (b *batch) cancelQueued(now time.Time) (ids []int64, completed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcome.Cancelled = true
	for i := range b.outcome.Games {
		g := &b.outcome.Games[i]
		if g.Status == StatusQueued {
			g.Status = StatusCancelled
			ids = append(ids, g.GameID)
		}
	}
	if len(ids) == 0 {
		return nil, false
	}
	b.pending -= len(ids)
	return ids, b.completeLocked(now)
}

// markDone wakes waiters. It is called after completion callbacks ran.
func (b *batch) markDone() {
	b.once.Do(func() { close(b.done) })
}

func (b *batch) completeLocked(now time.Time) bool {
	if b.pending == 0 && b.outcome.CompletedAt == nil {
		t := now
		b.outcome.CompletedAt = &t
		return true
	}
	return false
}
