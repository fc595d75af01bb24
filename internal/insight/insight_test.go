package insight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store"
)

var day0 = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

type fixedLister struct {
	results []*model.GameAnalysisResult
	err     error
	calls   int
}

func (f *fixedLister) ListResults(_ context.Context, _ int64, _, _ time.Time) ([]*model.GameAnalysisResult, error) {
	f.calls++
	return f.results, f.err
}

func result(id int64, end time.Time, totalCPL, moves, rating int, res model.GameResult, opening *model.Opening) *model.GameAnalysisResult {
	r := &model.GameAnalysisResult{
		GameID:      id,
		UserID:      1,
		UserResult:  res,
		UserRating:  rating,
		GameEndTime: end,
		TotalCPL:    totalCPL,
		MoveCount:   moves,
		Opening:     opening,
	}
	r.Phases.Middlegame = model.PhaseStats{TotalCPL: totalCPL, Moves: moves}
	return r
}

func TestSummarizeEmptyWindow(t *testing.T) {
	lister := &fixedLister{}
	a := New(Config{Store: lister})

	sum, err := a.Summarize(context.Background(), 1, day0, day0.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, sum.GamesAnalyzed)
	assert.Nil(t, sum.ACPL)
	assert.Nil(t, sum.Accuracy)
	assert.Nil(t, sum.MedianGameACPL)
	assert.Empty(t, sum.TopOpenings)
	assert.NotNil(t, sum.TopOpenings)
	assert.Equal(t, model.TrendStable, sum.Trend)
}

func TestSummarizeInvertedWindowSkipsStore(t *testing.T) {
	lister := &fixedLister{}
	a := New(Config{Store: lister})

	sum, err := a.Summarize(context.Background(), 1, day0, day0)
	require.NoError(t, err)
	assert.Zero(t, sum.GamesAnalyzed)
	assert.Zero(t, lister.calls)
}

func TestSummarizeStoreError(t *testing.T) {
	boom := errors.New("boom")
	a := New(Config{Store: &fixedLister{err: boom}})
	_, err := a.Summarize(context.Background(), 1, day0, day0.Add(time.Hour))
	assert.ErrorIs(t, err, boom)
}

func TestSummarizeWeightsByMoveCount(t *testing.T) {
	italian := &model.Opening{ECO: "C50", Name: "Italian Game"}
	sicilian := &model.Opening{ECO: "B20", Name: "Sicilian Defense"}
	lister := &fixedLister{results: []*model.GameAnalysisResult{
		result(1, day0, 200, 10, 1500, model.ResultWin, italian),
		result(2, day0.Add(time.Hour), 600, 30, 1510, model.ResultLoss, italian),
		result(3, day0.Add(2*time.Hour), 0, 20, 1530, model.ResultDraw, sicilian),
	}}
	lister.results[0].Counts = model.ClassificationCounts{Best: 8, Blunder: 2}
	lister.results[1].Counts = model.ClassificationCounts{Best: 29, Mistake: 1}
	lister.results[2].Counts = model.ClassificationCounts{Best: 19, Inaccuracy: 1}

	a := New(Config{Store: lister})
	sum, err := a.Summarize(context.Background(), 1, day0, day0.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 3, sum.GamesAnalyzed)
	assert.Equal(t, 60, sum.MovesAnalyzed)
	// 800 / 60, not the mean of the per-game ACPLs
	require.NotNil(t, sum.ACPL)
	assert.Equal(t, 13.33, *sum.ACPL)
	require.NotNil(t, sum.Accuracy)
	assert.Equal(t, 98.67, *sum.Accuracy)

	require.NotNil(t, sum.Phases.Middlegame.ACPL)
	assert.Equal(t, 13.33, *sum.Phases.Middlegame.ACPL)
	assert.Nil(t, sum.Phases.Opening.ACPL)

	assert.Equal(t, 60, sum.Counts.Total())
	assert.Equal(t, model.MistakeTally{Blunders: 2, Mistakes: 1, Inaccuracies: 1}, sum.Mistakes)

	// per-game ACPLs are 20, 20, 0
	require.NotNil(t, sum.MedianGameACPL)
	assert.Equal(t, 20.0, *sum.MedianGameACPL)
	require.NotNil(t, sum.GameACPLStdDev)
	assert.Equal(t, 9.43, *sum.GameACPLStdDev)

	assert.Equal(t, 30, sum.RatingChange)
	assert.Equal(t, model.TrendImproving, sum.Trend)

	require.Len(t, sum.TopOpenings, 2)
	top := sum.TopOpenings[0]
	assert.Equal(t, "C50", top.ECO)
	assert.Equal(t, 2, top.Games)
	assert.Equal(t, 1, top.Wins)
	assert.Equal(t, 1, top.Losses)
	assert.Equal(t, 50.0, top.WinRate)
	assert.Equal(t, 20.0, top.ACPL)
	assert.Equal(t, 1, sum.TopOpenings[1].Draws)
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name   string
		first  int
		last   int
		expect string
	}{
		{"improving", 1500, 1521, model.TrendImproving},
		{"declining", 1500, 1479, model.TrendDeclining},
		{"within band", 1500, 1520, model.TrendStable},
		{"unrated", 0, 1600, model.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(Config{})
			sum := a.Aggregate(&model.UserPerformanceSummary{}, []*model.GameAnalysisResult{
				result(1, day0, 10, 10, tt.first, model.ResultWin, nil),
				result(2, day0.Add(time.Hour), 10, 10, tt.last, model.ResultWin, nil),
			})
			assert.Equal(t, tt.expect, sum.Trend)
		})
	}
}

func TestTopOpeningsLimit(t *testing.T) {
	var results []*model.GameAnalysisResult
	for i := 0; i < 8; i++ {
		o := &model.Opening{ECO: string(rune('A'+i)) + "00", Name: "Opening"}
		for j := 0; j <= i; j++ {
			results = append(results, result(int64(len(results)+1), day0, 5, 5, 0, model.ResultWin, o))
		}
	}
	a := New(Config{TopOpenings: 3})
	sum := a.Aggregate(&model.UserPerformanceSummary{}, results)
	require.Len(t, sum.TopOpenings, 3)
	assert.Equal(t, "H00", sum.TopOpenings[0].ECO)
	assert.Equal(t, 8, sum.TopOpenings[0].Games)
	assert.Equal(t, "F00", sum.TopOpenings[2].ECO)
}

func TestTopOpeningsSameCodeOrderedByName(t *testing.T) {
	names := []string{"Sicilian Defense: Najdorf", "Sicilian Defense", "Sicilian Defense: Dragon"}
	a := New(Config{TopOpenings: 2})
	for run := 0; run < 5; run++ {
		var results []*model.GameAnalysisResult
		for i, name := range names {
			results = append(results, result(int64(i+1), day0, 5, 5, 0, model.ResultWin, &model.Opening{ECO: "B90", Name: name}))
		}
		sum := a.Aggregate(&model.UserPerformanceSummary{}, results)
		require.Len(t, sum.TopOpenings, 2)
		assert.Equal(t, "Sicilian Defense", sum.TopOpenings[0].Name)
		assert.Equal(t, "Sicilian Defense: Dragon", sum.TopOpenings[1].Name)
	}
}

func TestSummarizeFromMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.PutUser(ctx, &model.User{ID: 1, Username: "alice", Tier: model.TierFree, AIAnalysesLimit: 5}))
	for i := int64(1); i <= 3; i++ {
		end := day0.Add(time.Duration(i) * 24 * time.Hour)
		require.NoError(t, m.PutGame(ctx, &model.Game{ID: i, UserID: 1, Moves: []string{"e4"}, EndTime: end}))
		require.NoError(t, m.SaveResult(ctx, result(i, end, int(i)*10, 10, 0, model.ResultWin, nil)))
	}

	a := New(Config{Store: m})
	// end is exclusive: game 3 ends exactly at the boundary
	sum, err := a.Summarize(ctx, 1, day0, day0.Add(3*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.GamesAnalyzed)
	require.NotNil(t, sum.ACPL)
	assert.Equal(t, 1.5, *sum.ACPL)
}
