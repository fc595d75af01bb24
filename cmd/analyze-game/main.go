package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CIPHER-000/chess-AI-sub000/internal/analyzer"
	"github.com/CIPHER-000/chess-AI-sub000/internal/board"
	"github.com/CIPHER-000/chess-AI-sub000/internal/config"
	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/logx"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/orchestrator"
	"github.com/CIPHER-000/chess-AI-sub000/internal/service"
)

func main() {
	var (
		configPath    = flag.String("config", "config.yaml", "YAML config file (optional)")
		file          = flag.String("file", "", "file containing PGN movetext")
		moves         = flag.String("moves", "", "movetext, e.g. \"1. e4 e5 2. Nf3\"")
		color         = flag.String("color", "white", "side to summarise: white or black")
		stockfishPath = flag.String("stockfish", "", "path to Stockfish executable")
		depth         = flag.Int("depth", 0, "engine search depth per position")
	)
	flag.Parse()

	logger := logx.New(logx.Options{Level: "warn", Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if *stockfishPath != "" {
		cfg.Engine.Path = *stockfishPath
	}
	if *depth > 0 {
		cfg.Engine.Depth = *depth
	}

	movetext := *moves
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			logger.Fatal().Err(err).Str("file", *file).Msg("read movetext")
		}
		movetext = string(data)
	}
	sans := board.SplitMovetext(stripHeaders(movetext))
	if len(sans) == 0 {
		fmt.Fprintln(os.Stderr, "no moves given; use -moves or -file")
		os.Exit(2)
	}
	userColor := model.Color(strings.ToLower(*color))
	if userColor != model.White && userColor != model.Black {
		fmt.Fprintf(os.Stderr, "invalid color %q\n", *color)
		os.Exit(2)
	}

	factory, err := engine.NewUCIFactory(engine.UCIConfig{
		Path:          cfg.Engine.Path,
		HashMB:        cfg.Engine.HashMB,
		Threads:       cfg.Engine.Threads,
		Nice:          cfg.Engine.Nice,
		CeilingFactor: float64(cfg.Engine.CeilingFactor),
		HardTimeout:   cfg.Engine.HardTimeout,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("engine unavailable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := analyze(ctx, cfg, factory, sans, userColor)
	if err != nil {
		logger.Fatal().Err(err).Msg("analysis failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Fatal().Err(err).Msg("write result")
	}
}

// analyze runs one game through the analyzer on a fresh session and
// summarises it for the chosen side without touching any store.
func analyze(ctx context.Context, cfg *config.Config, factory engine.Factory, sans []string, side model.Color) (*model.GameAnalysisResult, error) {
	logger := logx.New(logx.Options{Level: cfg.Log.Level, Out: os.Stderr})
	an, err := analyzer.New(service.AnalyzerConfig(cfg, logger))
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(orchestrator.Config{
		Analyzer:           an,
		Store:              discard{},
		Openings:           service.Openings(cfg.Analysis.ECODir, logger),
		AccuracyDivisor:    cfg.Analysis.AccuracyDivisor,
		CriticalCPL:        cfg.Analysis.CriticalCPL,
		OpeningSearchPlies: cfg.Analysis.OpeningSearchPlies,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	session, err := factory.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	game := &model.Game{ID: 1, UserID: 1, Moves: sans, EndTime: time.Now()}
	user := &model.User{ID: 1, Username: "you"}
	if side == model.White {
		game.White.Username = user.Username
	} else {
		game.Black.Username = user.Username
	}
	return orch.Run(ctx, orchestrator.Job{Game: game, User: user, Mode: model.ModeEngineOnly}, session)
}

// stripHeaders drops PGN tag pair lines such as [Event "..."].
func stripHeaders(pgnText string) string {
	var b strings.Builder
	for _, line := range strings.Split(pgnText, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// discard satisfies the orchestrator's writer for one-off runs.
type discard struct{}

func (discard) SaveResult(context.Context, *model.GameAnalysisResult) error { return nil }
func (discard) RecordFailure(context.Context, *model.AnalysisFailure) error { return nil }
