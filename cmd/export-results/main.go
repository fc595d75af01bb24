package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/CIPHER-000/chess-AI-sub000/internal/config"
	"github.com/CIPHER-000/chess-AI-sub000/internal/logx"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/service"
)

func main() {
	var (
		driver     = flag.String("db-driver", "sqlite", "database driver: sqlite or postgres")
		dsn        = flag.String("db-dsn", "./data/analysis.db", "database DSN")
		userID     = flag.Int64("user", 0, "user id to export")
		days       = flag.Int("days", 30, "export games that ended in the last N days (ignored with -start)")
		startFlag  = flag.String("start", "", "window start, RFC3339")
		endFlag    = flag.String("end", "", "window end, RFC3339 (default now)")
		outputPath = flag.String("output", "moves.csv", "output CSV file, - for stdout")
	)
	flag.Parse()

	logger := logx.New(logx.Options{Level: "info", Out: os.Stderr})
	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	end := time.Now()
	if *endFlag != "" {
		t, err := time.Parse(time.RFC3339, *endFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -end: %v\n", err)
			os.Exit(2)
		}
		end = t
	}
	start := end.AddDate(0, 0, -*days)
	if *startFlag != "" {
		t, err := time.Parse(time.RFC3339, *startFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -start: %v\n", err)
			os.Exit(2)
		}
		start = t
	}

	st, err := service.OpenStore(config.DatabaseConfig{Driver: *driver, DSN: *dsn, LogLevel: "warn"}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	results, err := st.ListResults(context.Background(), *userID, start, end)
	if err != nil {
		logger.Fatal().Err(err).Msg("list results")
	}

	var out io.Writer = os.Stdout
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("create output file")
		}
		defer f.Close()
		out = f
	}

	rows, err := writeCSV(out, results)
	if err != nil {
		logger.Fatal().Err(err).Msg("write csv")
	}
	logger.Info().
		Int64("user_id", *userID).
		Int("games", len(results)).
		Int("moves", rows).
		Str("output", *outputPath).
		Msg("export complete")
}

var csvHeader = []string{
	"game_id", "end_time", "mode", "user_color", "ply", "move_number", "color",
	"san", "uci", "best_move", "cpl", "classification", "phase",
	"score_before", "score_after", "mate_in", "user_move",
}

// writeCSV writes one row per analysed move and returns the row count.
func writeCSV(w io.Writer, results []*model.GameAnalysisResult) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	rows := 0
	for _, r := range results {
		gameID := strconv.FormatInt(r.GameID, 10)
		endTime := r.GameEndTime.UTC().Format(time.RFC3339)
		for _, m := range r.Moves {
			rec := []string{
				gameID,
				endTime,
				string(r.Mode),
				string(r.UserColor),
				strconv.Itoa(m.Ply),
				strconv.Itoa(m.MoveNumber),
				string(m.Color),
				m.SAN,
				m.UCI,
				m.BestMove,
				strconv.Itoa(m.CentipawnLoss),
				m.Classification.String(),
				m.Phase.String(),
				strconv.Itoa(m.ScoreBefore),
				strconv.Itoa(m.ScoreAfter),
				strconv.Itoa(m.MateIn),
				strconv.FormatBool(m.Color == r.UserColor),
			}
			if err := cw.Write(rec); err != nil {
				return rows, err
			}
			rows++
		}
	}
	cw.Flush()
	return rows, cw.Error()
}
