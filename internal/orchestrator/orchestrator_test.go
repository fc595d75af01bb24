package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIPHER-000/chess-AI-sub000/internal/analyzer"
	"github.com/CIPHER-000/chess-AI-sub000/internal/eco"
	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/engine/enginetest"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store"
)

var endTime = time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)

func shuffleGame(n int) []string {
	moves := make([]string, 0, 4*n)
	for i := 0; i < n; i++ {
		moves = append(moves, "Nf3", "Nf6", "Ng1", "Ng8")
	}
	return moves
}

type fixture struct {
	orch  *Orchestrator
	store *store.Memory
	user  *model.User
	game  *model.Game
}

func newFixture(t *testing.T, moves []string) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	user := &model.User{ID: 1, Username: "alice", Tier: model.TierFree, AIAnalysesLimit: 5}
	game := &model.Game{
		ID:      10,
		UserID:  1,
		Moves:   moves,
		White:   model.Player{Username: "Alice", Rating: 1500},
		Black:   model.Player{Username: "bob", Rating: 1550},
		Winner:  "white",
		EndTime: endTime,
	}
	require.NoError(t, st.PutUser(ctx, user))
	require.NoError(t, st.PutGame(ctx, game))

	a, err := analyzer.New(analyzer.Config{Logger: zerolog.Nop()})
	require.NoError(t, err)
	o, err := New(Config{
		Analyzer: a,
		Store:    st,
		Openings: eco.Default(),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return &fixture{orch: o, store: st, user: user, game: game}
}

func (f *fixture) run(t *testing.T, script enginetest.ScriptFunc) (*model.GameAnalysisResult, error) {
	t.Helper()
	return f.orch.Run(context.Background(), Job{Game: f.game, User: f.user, Mode: model.ModeEngineOnly}, enginetest.New(script))
}

// whiteLosses builds per-ply losses where only white's moves at the given
// plies lose the given amounts.
func whiteLosses(plies int, at map[int]int) []int {
	losses := make([]int, plies)
	for ply, loss := range at {
		losses[ply] = loss
	}
	return losses
}

func TestRunSingleBlunder(t *testing.T) {
	f := newFixture(t, shuffleGame(10))
	res, err := f.run(t, enginetest.FromLosses(whiteLosses(40, map[int]int{24: 350})...))
	require.NoError(t, err)

	assert.Equal(t, model.White, res.UserColor)
	assert.Equal(t, model.ResultWin, res.UserResult)
	assert.Equal(t, 1500, res.UserRating)
	assert.Equal(t, 20, res.MoveCount)
	assert.Equal(t, 350, res.TotalCPL)
	assert.Equal(t, 17.5, res.ACPL)
	assert.Equal(t, 98.25, res.Accuracy)
	assert.Equal(t, 1, res.Counts.Blunder)
	assert.Equal(t, 19, res.Counts.Best)
	assert.Equal(t, res.MoveCount, res.Counts.Total())
	assert.Equal(t, []int{24}, res.CriticalPlies)
	assert.Equal(t, 0.0, res.OpponentACPL)
	assert.Len(t, res.Moves, 40)

	require.NotNil(t, res.Phases.Opening.ACPL)
	assert.Equal(t, 0.0, *res.Phases.Opening.ACPL)
	assert.Equal(t, 10, res.Phases.Opening.Moves)
	require.NotNil(t, res.Phases.Middlegame.ACPL)
	assert.Equal(t, 35.0, *res.Phases.Middlegame.ACPL)
	assert.Nil(t, res.Phases.Endgame.ACPL, "no endgame moves")

	require.NotNil(t, res.Opening)
	assert.Equal(t, "A04", res.Opening.ECO)
	assert.Equal(t, "scripted", res.Engine)

	g, err := f.store.GetGame(context.Background(), f.game.ID)
	require.NoError(t, err)
	assert.True(t, g.Analyzed)
	stored, err := f.store.GetResult(context.Background(), f.game.ID)
	require.NoError(t, err)
	assert.Equal(t, 17.5, stored.ACPL)
}

func TestRunAllBestMoves(t *testing.T) {
	f := newFixture(t, shuffleGame(10))
	res, err := f.run(t, enginetest.Constant(0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.ACPL)
	assert.Equal(t, 100.0, res.Accuracy)
	assert.Equal(t, 20, res.Counts.Best)
	assert.Empty(t, res.CriticalPlies)
}

func TestRunAccuracyClampedUnderMate(t *testing.T) {
	f := newFixture(t, []string{"f3", "e5", "g4", "Qh4#"})
	res, err := f.run(t, enginetest.Sequence(
		engine.Evaluation{CP: 0},
		engine.Evaluation{CP: 0},
		engine.Evaluation{CP: 0},
		engine.Evaluation{IsMate: true, Mate: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, 5000.0, res.ACPL)
	assert.Equal(t, 0.0, res.Accuracy)
	assert.GreaterOrEqual(t, res.Accuracy, 0.0)
	assert.LessOrEqual(t, res.Accuracy, 100.0)
}

func TestRunEvaluatorFailureLeavesGameUnanalyzed(t *testing.T) {
	f := newFixture(t, shuffleGame(10))
	res, err := f.run(t, enginetest.FailAt(16, enginetest.Constant(0)))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrEvaluatorUnavailable)

	ctx := context.Background()
	g, _ := f.store.GetGame(ctx, f.game.ID)
	assert.False(t, g.Analyzed)
	_, err = f.store.GetResult(ctx, f.game.ID)
	assert.ErrorIs(t, err, model.ErrResultNotFound)

	fail, err := f.store.GetFailure(ctx, f.game.ID)
	require.NoError(t, err)
	require.NotNil(t, fail)
	assert.Equal(t, model.FailureEvaluatorUnavailable, fail.Kind)
	assert.Equal(t, 15, fail.Ply)
	assert.Equal(t, "Ng8", fail.Move)
	assert.Equal(t, f.game.MovesDigest(), fail.MovesDigest)
	assert.False(t, fail.Permanent())
}

func TestRunForcedReanalysisOverwrites(t *testing.T) {
	f := newFixture(t, shuffleGame(10))
	_, err := f.run(t, enginetest.Constant(0))
	require.NoError(t, err)

	res, err := f.run(t, enginetest.FromLosses(whiteLosses(40, map[int]int{0: 60, 2: 60})...))
	require.NoError(t, err)
	assert.Equal(t, 6.0, res.ACPL)

	stored, err := f.store.GetResult(context.Background(), f.game.ID)
	require.NoError(t, err)
	assert.Equal(t, 6.0, stored.ACPL)
	assert.Equal(t, 2, stored.Counts.Inaccuracy)
}

func TestRunFailedReanalysisKeepsPriorResult(t *testing.T) {
	f := newFixture(t, shuffleGame(10))
	_, err := f.run(t, enginetest.Constant(0))
	require.NoError(t, err)

	_, err = f.run(t, enginetest.FailAt(3, enginetest.Constant(0)))
	require.Error(t, err)

	ctx := context.Background()
	g, _ := f.store.GetGame(ctx, f.game.ID)
	assert.True(t, g.Analyzed)
	stored, err := f.store.GetResult(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Accuracy)
}

func TestRunUnparsableGameIsPermanent(t *testing.T) {
	f := newFixture(t, []string{"e4", "e5", "Ke3"})
	_, err := f.run(t, enginetest.Constant(0))
	assert.ErrorIs(t, err, model.ErrUnparsableGame)

	fail, err := f.store.GetFailure(context.Background(), f.game.ID)
	require.NoError(t, err)
	require.NotNil(t, fail)
	assert.True(t, fail.Permanent())
	assert.Equal(t, "Ke3", fail.Move)
}

type failingWriter struct{ store.ResultStore }

func (failingWriter) SaveResult(context.Context, *model.GameAnalysisResult) error {
	return errors.New("disk full")
}

func (failingWriter) RecordFailure(context.Context, *model.AnalysisFailure) error { return nil }

func TestRunPersistenceFailure(t *testing.T) {
	a, err := analyzer.New(analyzer.Config{Logger: zerolog.Nop()})
	require.NoError(t, err)
	o, err := New(Config{Analyzer: a, Store: failingWriter{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	game := &model.Game{ID: 1, UserID: 1, Moves: []string{"e4", "e5"}, White: model.Player{Username: "x"}}
	_, err = o.Run(context.Background(), Job{Game: game, User: &model.User{Username: "x"}}, enginetest.New(enginetest.Constant(0)))
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.Equal(t, model.FailurePersistence, model.FailureKindOf(err))
}

func TestSummarizeBlackUser(t *testing.T) {
	f := newFixture(t, shuffleGame(1))
	f.user.Username = "BOB"
	records := []model.MoveRecord{
		{Ply: 0, Color: model.White, CentipawnLoss: 40, Classification: model.ClassGood},
		{Ply: 1, Color: model.Black, CentipawnLoss: 200, Classification: model.ClassMistake},
		{Ply: 2, Color: model.White, CentipawnLoss: 0, Classification: model.ClassBest},
		{Ply: 3, Color: model.Black, CentipawnLoss: 0, Classification: model.ClassBest},
	}
	res, err := f.orch.Summarize(f.game, f.user, records)
	require.NoError(t, err)
	assert.Equal(t, model.Black, res.UserColor)
	assert.Equal(t, model.ResultLoss, res.UserResult)
	assert.Equal(t, 1550, res.UserRating)
	assert.Equal(t, 100.0, res.ACPL)
	assert.Equal(t, 90.0, res.Accuracy)
	assert.Equal(t, 20.0, res.OpponentACPL)
	assert.Equal(t, []int{1}, res.CriticalPlies)
	assert.Equal(t, 2, res.Counts.Total())
}

func TestRunUserNotInGame(t *testing.T) {
	f := newFixture(t, shuffleGame(2))
	f.user.Username = "carol"
	ev := enginetest.New(enginetest.Constant(0))
	res, err := f.orch.Run(context.Background(), Job{Game: f.game, User: f.user, Mode: model.ModeEngineOnly}, ev)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrUserNotInGame)
	assert.Equal(t, 0, ev.Calls())

	ctx := context.Background()
	g, _ := f.store.GetGame(ctx, f.game.ID)
	assert.False(t, g.Analyzed)
	_, err = f.store.GetResult(ctx, f.game.ID)
	assert.ErrorIs(t, err, model.ErrResultNotFound)
	fail, err := f.store.GetFailure(ctx, f.game.ID)
	require.NoError(t, err)
	require.NotNil(t, fail)
	assert.Equal(t, model.FailureUserNotInGame, fail.Kind)
	assert.False(t, fail.Permanent())

	_, err = f.orch.Summarize(f.game, nil, nil)
	assert.ErrorIs(t, err, model.ErrUserNotInGame)
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		acpl float64
		want float64
	}{
		{0, 100},
		{17.5, 98.25},
		{250, 75},
		{1000, 0},
		{20000, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Accuracy(tt.acpl, 10), 1e-9, "acpl=%v", tt.acpl)
	}
}
