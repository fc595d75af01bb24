// Package insight projects stored analysis results onto time-windowed
// performance summaries. It never calls the engine or touches quota.
package insight

import (
	"context"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/orchestrator"
)

// ResultLister is the range query the aggregator reads from.
type ResultLister interface {
	ListResults(ctx context.Context, userID int64, start, end time.Time) ([]*model.GameAnalysisResult, error)
}

// Config configures an Aggregator.
type Config struct {
	Store           ResultLister
	TopOpenings     int
	AccuracyDivisor float64
	// TrendThreshold is the rating change beyond which performance counts
	// as improving or declining.
	TrendThreshold int
}

// Aggregator computes UserPerformanceSummary values on demand.
type Aggregator struct {
	cfg Config
}

// New returns an Aggregator with defaults applied.
func New(cfg Config) *Aggregator {
	if cfg.TopOpenings <= 0 {
		cfg.TopOpenings = 5
	}
	if cfg.AccuracyDivisor <= 0 {
		cfg.AccuracyDivisor = 10
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = 20
	}
	return &Aggregator{cfg: cfg}
}

// Summarize aggregates a user's results with game end time in [start, end).
// An empty window yields a zero summary.
func (a *Aggregator) Summarize(ctx context.Context, userID int64, start, end time.Time) (*model.UserPerformanceSummary, error) {
	sum := &model.UserPerformanceSummary{
		UserID:      userID,
		PeriodStart: start,
		PeriodEnd:   end,
		TopOpenings: []model.OpeningStat{},
		Trend:       model.TrendStable,
	}
	if !end.After(start) {
		return sum, nil
	}
	results, err := a.cfg.Store.ListResults(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return a.Aggregate(sum, results), nil
}

// Aggregate folds results into sum. Results must be ordered by game end time.
func (a *Aggregator) Aggregate(sum *model.UserPerformanceSummary, results []*model.GameAnalysisResult) *model.UserPerformanceSummary {
	if len(results) == 0 {
		return sum
	}

	totalCPL := 0
	gameACPLs := make([]float64, 0, len(results))
	openings := make(map[string]*openingAcc)
	for _, r := range results {
		sum.GamesAnalyzed++
		sum.MovesAnalyzed += r.MoveCount
		totalCPL += r.TotalCPL
		sum.Counts.Merge(r.Counts)
		sum.Phases.Opening.Merge(r.Phases.Opening)
		sum.Phases.Middlegame.Merge(r.Phases.Middlegame)
		sum.Phases.Endgame.Merge(r.Phases.Endgame)
		if r.MoveCount > 0 {
			gameACPLs = append(gameACPLs, float64(r.TotalCPL)/float64(r.MoveCount))
		}
		if r.Opening != nil {
			acc, ok := openings[r.Opening.ECO+"\x00"+r.Opening.Name]
			if !ok {
				acc = &openingAcc{stat: model.OpeningStat{ECO: r.Opening.ECO, Name: r.Opening.Name}}
				openings[r.Opening.ECO+"\x00"+r.Opening.Name] = acc
			}
			acc.add(r)
		}
	}

	if sum.MovesAnalyzed > 0 {
		acpl := float64(totalCPL) / float64(sum.MovesAnalyzed)
		rounded := model.Round2(acpl)
		accuracy := model.Round2(orchestrator.Accuracy(acpl, a.cfg.AccuracyDivisor))
		sum.ACPL = &rounded
		sum.Accuracy = &accuracy
	}
	sum.Phases.Finish()

	if len(gameACPLs) > 0 {
		if med, err := stats.Median(gameACPLs); err == nil {
			med = model.Round2(med)
			sum.MedianGameACPL = &med
		}
		if sd, err := stats.StandardDeviation(gameACPLs); err == nil {
			sd = model.Round2(sd)
			sum.GameACPLStdDev = &sd
		}
	}

	first, last := results[0], results[len(results)-1]
	if first.UserRating > 0 && last.UserRating > 0 {
		sum.RatingChange = last.UserRating - first.UserRating
	}
	switch {
	case sum.RatingChange > a.cfg.TrendThreshold:
		sum.Trend = model.TrendImproving
	case sum.RatingChange < -a.cfg.TrendThreshold:
		sum.Trend = model.TrendDeclining
	default:
		sum.Trend = model.TrendStable
	}

	sum.Mistakes = model.MistakeTally{
		Blunders:     sum.Counts.Blunder,
		Mistakes:     sum.Counts.Mistake,
		Inaccuracies: sum.Counts.Inaccuracy,
	}
	sum.TopOpenings = a.topOpenings(openings)
	return sum
}

type openingAcc struct {
	stat     model.OpeningStat
	totalCPL int
	moves    int
}

func (o *openingAcc) add(r *model.GameAnalysisResult) {
	o.stat.Games++
	switch r.UserResult {
	case model.ResultWin:
		o.stat.Wins++
	case model.ResultDraw:
		o.stat.Draws++
	case model.ResultLoss:
		o.stat.Losses++
	}
	o.totalCPL += r.TotalCPL
	o.moves += r.MoveCount
}

func (a *Aggregator) topOpenings(openings map[string]*openingAcc) []model.OpeningStat {
	out := make([]model.OpeningStat, 0, len(openings))
	for _, acc := range openings {
		st := acc.stat
		st.WinRate = model.Round2(float64(st.Wins) / float64(st.Games) * 100)
		if acc.moves > 0 {
			st.ACPL = model.Round2(float64(acc.totalCPL) / float64(acc.moves))
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		if out[i].ECO != out[j].ECO {
			return out[i].ECO < out[j].ECO
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > a.cfg.TopOpenings {
		out = out[:a.cfg.TopOpenings]
	}
	return out
}
