package model

import "time"

// Performance trends reported by summaries.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// OpeningStat aggregates the games played in one opening.
type OpeningStat struct {
	ECO     string  `json:"eco"`
	Name    string  `json:"name"`
	Games   int     `json:"games"`
	Wins    int     `json:"wins"`
	Draws   int     `json:"draws"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
	ACPL    float64 `json:"acpl"`
}

// MistakeTally counts the costly moves in a window.
type MistakeTally struct {
	Blunders     int `json:"blunders"`
	Mistakes     int `json:"mistakes"`
	Inaccuracies int `json:"inaccuracies"`
}

// UserPerformanceSummary is computed on demand from stored results in [PeriodStart, PeriodEnd).
type UserPerformanceSummary struct {
	UserID         int64                `json:"user_id"`
	PeriodStart    time.Time            `json:"period_start"`
	PeriodEnd      time.Time            `json:"period_end"`
	GamesAnalyzed  int                  `json:"games_analyzed"`
	MovesAnalyzed  int                  `json:"moves_analyzed"`
	ACPL           *float64             `json:"acpl"`
	Accuracy       *float64             `json:"accuracy"`
	Counts         ClassificationCounts `json:"counts"`
	Phases         PhaseBreakdown       `json:"phases"`
	TopOpenings    []OpeningStat        `json:"top_openings"`
	MedianGameACPL *float64             `json:"median_game_acpl"`
	GameACPLStdDev *float64             `json:"game_acpl_stddev"`
	RatingChange   int                  `json:"rating_change"`
	Trend          string               `json:"trend"`
	Mistakes       MistakeTally         `json:"frequent_mistakes"`
}
