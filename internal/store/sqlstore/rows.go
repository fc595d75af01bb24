package sqlstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store"
)

type userRow struct {
	ID               int64  `gorm:"primaryKey;autoIncrement:false"`
	Username         string `gorm:"size:64;index"`
	Tier             string `gorm:"size:16;not null"`
	AIAnalysesUsed   int    `gorm:"not null"`
	AIAnalysesLimit  int    `gorm:"not null"`
	TrialExhaustedAt *time.Time
}

func (userRow) TableName() string { return "users" }

func userToRow(u *model.User) userRow {
	return userRow{
		ID:               u.ID,
		Username:         u.Username,
		Tier:             string(u.Tier),
		AIAnalysesUsed:   u.AIAnalysesUsed,
		AIAnalysesLimit:  u.AIAnalysesLimit,
		TrialExhaustedAt: u.TrialExhaustedAt,
	}
}

func (r *userRow) toModel() *model.User {
	u := &model.User{
		ID:              r.ID,
		Username:        r.Username,
		Tier:            model.Tier(r.Tier),
		AIAnalysesUsed:  r.AIAnalysesUsed,
		AIAnalysesLimit: r.AIAnalysesLimit,
	}
	if r.TrialExhaustedAt != nil {
		t := r.TrialExhaustedAt.UTC()
		u.TrialExhaustedAt = &t
	}
	return u
}

type gameRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement:false"`
	ExternalID    string `gorm:"size:128"`
	UserID        int64  `gorm:"not null;index:idx_games_user_end,priority:1"`
	Moves         string `gorm:"type:text"`
	WhiteUsername string `gorm:"size:64"`
	WhiteRating   int
	BlackUsername string `gorm:"size:64"`
	BlackRating   int
	TimeControl   string `gorm:"size:32"`
	TimeClass     string `gorm:"size:16"`
	Rated         bool
	Winner        string    `gorm:"size:8"`
	EndTime       time.Time `gorm:"index:idx_games_user_end,priority:2"`
	Analyzed      bool      `gorm:"not null"`
}

func (gameRow) TableName() string { return "games" }

func gameToRow(g *model.Game) gameRow {
	return gameRow{
		ID:            g.ID,
		ExternalID:    g.ExternalID,
		UserID:        g.UserID,
		Moves:         strings.Join(g.Moves, " "),
		WhiteUsername: g.White.Username,
		WhiteRating:   g.White.Rating,
		BlackUsername: g.Black.Username,
		BlackRating:   g.Black.Rating,
		TimeControl:   g.TimeControl,
		TimeClass:     g.TimeClass,
		Rated:         g.Rated,
		Winner:        g.Winner,
		EndTime:       g.EndTime.UTC(),
		Analyzed:      g.Analyzed,
	}
}

func (r *gameRow) toModel() *model.Game {
	return &model.Game{
		ID:          r.ID,
		ExternalID:  r.ExternalID,
		UserID:      r.UserID,
		Moves:       strings.Fields(r.Moves),
		White:       model.Player{Username: r.WhiteUsername, Rating: r.WhiteRating},
		Black:       model.Player{Username: r.BlackUsername, Rating: r.BlackRating},
		TimeControl: r.TimeControl,
		TimeClass:   r.TimeClass,
		Rated:       r.Rated,
		Winner:      r.Winner,
		EndTime:     r.EndTime.UTC(),
		Analyzed:    r.Analyzed,
	}
}

// resultRow flattens a GameAnalysisResult. Per-move records are stored as a
// compressed blob; everything the window queries touch is a column.
type resultRow struct {
	GameID       int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID       int64     `gorm:"not null;index:idx_results_user_end,priority:1"`
	GameEndTime  time.Time `gorm:"index:idx_results_user_end,priority:2"`
	UserColor    string    `gorm:"size:8"`
	UserResult   string    `gorm:"size:8"`
	UserRating   int
	TimeClass    string `gorm:"size:16"`
	Mode         string `gorm:"size:16"`
	ACPL         float64
	Accuracy     float64
	TotalCPL     int
	MoveCount    int
	OpponentACPL float64

	OpeningCPL      int
	OpeningMoves    int
	MiddlegameCPL   int
	MiddlegameMoves int
	EndgameCPL      int
	EndgameMoves    int

	Brilliant  int
	Great      int
	Best       int
	Excellent  int
	Good       int
	Inaccuracy int
	Mistake    int
	Blunder    int

	OpeningECO    *string `gorm:"size:8"`
	OpeningName   *string `gorm:"size:128"`
	CriticalPlies string  `gorm:"size:512"`
	Moves         []byte
	Engine        string `gorm:"size:64"`
	Depth         int
	DurationNS    int64
	CreatedAt     time.Time
}

func (resultRow) TableName() string { return "game_analysis_results" }

func resultToRow(r *model.GameAnalysisResult) (resultRow, error) {
	blob, err := store.EncodeMoves(r.Moves)
	if err != nil {
		return resultRow{}, err
	}
	row := resultRow{
		GameID:       r.GameID,
		UserID:       r.UserID,
		GameEndTime:  r.GameEndTime.UTC(),
		UserColor:    string(r.UserColor),
		UserResult:   string(r.UserResult),
		UserRating:   r.UserRating,
		TimeClass:    r.TimeClass,
		Mode:         string(r.Mode),
		ACPL:         r.ACPL,
		Accuracy:     r.Accuracy,
		TotalCPL:     r.TotalCPL,
		MoveCount:    r.MoveCount,
		OpponentACPL: r.OpponentACPL,

		OpeningCPL:      r.Phases.Opening.TotalCPL,
		OpeningMoves:    r.Phases.Opening.Moves,
		MiddlegameCPL:   r.Phases.Middlegame.TotalCPL,
		MiddlegameMoves: r.Phases.Middlegame.Moves,
		EndgameCPL:      r.Phases.Endgame.TotalCPL,
		EndgameMoves:    r.Phases.Endgame.Moves,

		Brilliant:  r.Counts.Brilliant,
		Great:      r.Counts.Great,
		Best:       r.Counts.Best,
		Excellent:  r.Counts.Excellent,
		Good:       r.Counts.Good,
		Inaccuracy: r.Counts.Inaccuracy,
		Mistake:    r.Counts.Mistake,
		Blunder:    r.Counts.Blunder,

		CriticalPlies: joinInts(r.CriticalPlies),
		Moves:         blob,
		Engine:        r.Engine,
		Depth:         r.Depth,
		DurationNS:    int64(r.Duration),
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.Opening != nil {
		eco, name := r.Opening.ECO, r.Opening.Name
		row.OpeningECO = &eco
		row.OpeningName = &name
	}
	return row, nil
}

func (r *resultRow) toModel() (*model.GameAnalysisResult, error) {
	moves, err := store.DecodeMoves(r.Moves)
	if err != nil {
		return nil, err
	}
	plies, err := splitInts(r.CriticalPlies)
	if err != nil {
		return nil, err
	}
	res := &model.GameAnalysisResult{
		GameID:       r.GameID,
		UserID:       r.UserID,
		UserColor:    model.Color(r.UserColor),
		UserResult:   model.GameResult(r.UserResult),
		UserRating:   r.UserRating,
		GameEndTime:  r.GameEndTime.UTC(),
		TimeClass:    r.TimeClass,
		Mode:         model.Mode(r.Mode),
		ACPL:         r.ACPL,
		Accuracy:     r.Accuracy,
		TotalCPL:     r.TotalCPL,
		MoveCount:    r.MoveCount,
		OpponentACPL: r.OpponentACPL,
		Phases: model.PhaseBreakdown{
			Opening:    model.PhaseStats{TotalCPL: r.OpeningCPL, Moves: r.OpeningMoves},
			Middlegame: model.PhaseStats{TotalCPL: r.MiddlegameCPL, Moves: r.MiddlegameMoves},
			Endgame:    model.PhaseStats{TotalCPL: r.EndgameCPL, Moves: r.EndgameMoves},
		},
		Counts: model.ClassificationCounts{
			Brilliant:  r.Brilliant,
			Great:      r.Great,
			Best:       r.Best,
			Excellent:  r.Excellent,
			Good:       r.Good,
			Inaccuracy: r.Inaccuracy,
			Mistake:    r.Mistake,
			Blunder:    r.Blunder,
		},
		CriticalPlies: plies,
		Moves:         moves,
		Engine:        r.Engine,
		Depth:         r.Depth,
		Duration:      time.Duration(r.DurationNS),
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.OpeningECO != nil {
		res.Opening = &model.Opening{ECO: *r.OpeningECO}
		if r.OpeningName != nil {
			res.Opening.Name = *r.OpeningName
		}
	}
	res.Phases.Finish()
	return res, nil
}

type failureRow struct {
	GameID      int64  `gorm:"primaryKey;autoIncrement:false"`
	Kind        string `gorm:"size:32"`
	Message     string `gorm:"type:text"`
	Ply         int
	Move        string `gorm:"size:16"`
	MovesDigest string `gorm:"size:32"`
	At          time.Time
}

func (failureRow) TableName() string { return "analysis_failures" }

func failureToRow(f *model.AnalysisFailure) failureRow {
	return failureRow{
		GameID:      f.GameID,
		Kind:        string(f.Kind),
		Message:     f.Message,
		Ply:         f.Ply,
		Move:        f.Move,
		MovesDigest: f.MovesDigest,
		At:          f.At.UTC(),
	}
}

func (r *failureRow) toModel() *model.AnalysisFailure {
	return &model.AnalysisFailure{
		GameID:      r.GameID,
		Kind:        model.FailureKind(r.Kind),
		Message:     r.Message,
		Ply:         r.Ply,
		Move:        r.Move,
		MovesDigest: r.MovesDigest,
		At:          r.At.UTC(),
	}
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
