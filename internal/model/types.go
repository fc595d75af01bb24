package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Color is the side a player has in a game.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Tier is a user's subscription level.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPro
}

// Mode is the kind of analysis a run performs.
type Mode string

const (
	ModeEngineOnly Mode = "engine_only"
	ModeAIEnhanced Mode = "ai_enhanced"
)

// GameResult is the outcome of a game for one participant.
type GameResult string

const (
	ResultWin  GameResult = "win"
	ResultLoss GameResult = "loss"
	ResultDraw GameResult = "draw"
)

// Player is one participant of a game.
type Player struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// Game is a recorded game owned by a user.
type Game struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	UserID      int64     `json:"user_id"`
	Moves       []string  `json:"moves"` // SAN, mainline only
	White       Player    `json:"white"`
	Black       Player    `json:"black"`
	TimeControl string    `json:"time_control,omitempty"`
	TimeClass   string    `json:"time_class,omitempty"`
	Rated       bool      `json:"rated"`
	Winner      string    `json:"winner,omitempty"` // white, black, draw or empty
	EndTime     time.Time `json:"end_time"`
	Analyzed    bool      `json:"analyzed"`
}

// UserColor returns the side played by username. Matching is
// case-insensitive.
func (g *Game) UserColor(username string) (Color, error) {
	switch {
	case strings.EqualFold(g.White.Username, username):
		return White, nil
	case strings.EqualFold(g.Black.Username, username):
		return Black, nil
	}
	return "", fmt.Errorf("game %d: %q is neither %q nor %q: %w",
		g.ID, username, g.White.Username, g.Black.Username, ErrUserNotInGame)
}

// Participant returns the player for color c.
func (g *Game) Participant(c Color) Player {
	if c == White {
		return g.White
	}
	return g.Black
}

// ResultFor returns the outcome for color c, or "" when the game has no winner recorded.
func (g *Game) ResultFor(c Color) GameResult {
	switch strings.ToLower(g.Winner) {
	case "draw":
		return ResultDraw
	case string(c):
		return ResultWin
	case string(c.Opponent()):
		return ResultLoss
	default:
		return ""
	}
}

// MovesDigest fingerprints the move sequence so stored failures can tell
// whether a game was edited since it last failed.
func (g *Game) MovesDigest() string {
	sum := sha256.Sum256([]byte(strings.Join(g.Moves, " ")))
	return hex.EncodeToString(sum[:12])
}

// Clone returns a deep copy.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Moves = append([]string(nil), g.Moves...)
	return &cp
}

// MoveRecord is the analysis of a single ply.
type MoveRecord struct {
	Ply            int            `json:"ply"`
	MoveNumber     int            `json:"move_number"`
	Color          Color          `json:"color"`
	SAN            string         `json:"san"`
	UCI            string         `json:"uci"`
	CentipawnLoss  int            `json:"cpl"`
	Classification Classification `json:"classification"`
	Phase          Phase          `json:"phase"`
	BestMove       string         `json:"best_move,omitempty"`
	ScoreBefore    int            `json:"score_before"`      // mover's perspective
	ScoreAfter     int            `json:"score_after"`       // mover's perspective
	MateIn         int            `json:"mate_in,omitempty"` // + mover mates, - mover is mated
}

// Opening is an ECO classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// PhaseStats aggregates CPL over one phase. ACPL is nil when no moves were made in it.
type PhaseStats struct {
	TotalCPL int      `json:"total_cpl"`
	Moves    int      `json:"moves"`
	ACPL     *float64 `json:"acpl"`
}

// Add accumulates one move's loss.
func (p *PhaseStats) Add(cpl int) {
	p.TotalCPL += cpl
	p.Moves++
}

// Merge folds other into p.
func (p *PhaseStats) Merge(other PhaseStats) {
	p.TotalCPL += other.TotalCPL
	p.Moves += other.Moves
}

// Finish computes ACPL from the sums.
func (p *PhaseStats) Finish() {
	p.ACPL = nil
	if p.Moves > 0 {
		v := Round2(float64(p.TotalCPL) / float64(p.Moves))
		p.ACPL = &v
	}
}

// PhaseBreakdown holds one PhaseStats per game phase.
type PhaseBreakdown struct {
	Opening    PhaseStats `json:"opening"`
	Middlegame PhaseStats `json:"middlegame"`
	Endgame    PhaseStats `json:"endgame"`
}

// For returns the stats for phase p.
func (b *PhaseBreakdown) For(p Phase) *PhaseStats {
	switch p {
	case PhaseOpening:
		return &b.Opening
	case PhaseMiddlegame:
		return &b.Middlegame
	default:
		return &b.Endgame
	}
}

// Finish computes ACPL for every phase.
func (b *PhaseBreakdown) Finish() {
	b.Opening.Finish()
	b.Middlegame.Finish()
	b.Endgame.Finish()
}

// GameAnalysisResult is the stored outcome of analysing one game.
type GameAnalysisResult struct {
	GameID        int64                `json:"game_id"`
	UserID        int64                `json:"user_id"`
	UserColor     Color                `json:"user_color"`
	UserResult    GameResult           `json:"user_result,omitempty"`
	UserRating    int                  `json:"user_rating"`
	GameEndTime   time.Time            `json:"game_end_time"`
	TimeClass     string               `json:"time_class,omitempty"`
	Mode          Mode                 `json:"mode"`
	ACPL          float64              `json:"acpl"`
	Accuracy      float64              `json:"accuracy"`
	TotalCPL      int                  `json:"total_cpl"`
	MoveCount     int                  `json:"move_count"`
	OpponentACPL  float64              `json:"opponent_acpl"`
	Phases        PhaseBreakdown       `json:"phases"`
	Counts        ClassificationCounts `json:"counts"`
	Opening       *Opening             `json:"opening"`
	CriticalPlies []int                `json:"critical_plies"`
	Moves         []MoveRecord         `json:"moves"`
	Engine        string               `json:"engine"`
	Depth         int                  `json:"depth"`
	Duration      time.Duration        `json:"duration_ns"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Clone returns a deep copy.
func (r *GameAnalysisResult) Clone() *GameAnalysisResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Moves = append([]MoveRecord(nil), r.Moves...)
	cp.CriticalPlies = append([]int(nil), r.CriticalPlies...)
	if r.Opening != nil {
		o := *r.Opening
		cp.Opening = &o
	}
	cp.Phases.Finish()
	return &cp
}

// AnalysisFailure records why a game could not be analysed.
type AnalysisFailure struct {
	GameID      int64       `json:"game_id"`
	Kind        FailureKind `json:"kind"`
	Message     string      `json:"message"`
	Ply         int         `json:"ply"`
	Move        string      `json:"move,omitempty"`
	MovesDigest string      `json:"moves_digest"`
	At          time.Time   `json:"at"`
}

// Permanent reports whether retrying the same move sequence cannot succeed.
func (f *AnalysisFailure) Permanent() bool {
	return f != nil && f.Kind == FailureUnparsableGame
}

// User carries the quota state used by the tier gate.
type User struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Tier             Tier       `json:"tier"`
	AIAnalysesUsed   int        `json:"ai_analyses_used"`
	AIAnalysesLimit  int        `json:"ai_analyses_limit"` // -1 is unlimited
	TrialExhaustedAt *time.Time `json:"trial_exhausted_at,omitempty"`
}

// Unlimited is the limit reported for tiers without a quota.
const Unlimited = -1

// Remaining returns the AI analyses left, or Unlimited.
func (u *User) Remaining() int {
	if u.Tier == TierPro || u.AIAnalysesLimit < 0 {
		return Unlimited
	}
	if r := u.AIAnalysesLimit - u.AIAnalysesUsed; r > 0 {
		return r
	}
	return 0
}

// Exhausted reports whether a free user has used up the trial.
func (u *User) Exhausted() bool {
	return u.Remaining() == 0
}

// Clone returns a copy that shares nothing with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.TrialExhaustedAt != nil {
		t := *u.TrialExhaustedAt
		cp.TrialExhaustedAt = &t
	}
	return &cp
}

// QuotaStatus is the caller-facing view of a user's quota.
type QuotaStatus struct {
	UserID      int64      `json:"user_id"`
	Tier        Tier       `json:"tier"`
	Used        int        `json:"used"`
	Limit       int        `json:"limit"`
	Remaining   int        `json:"remaining"`
	Exhausted   bool       `json:"exhausted"`
	ExhaustedAt *time.Time `json:"exhausted_at,omitempty"`
}

// QuotaStatusOf projects a user onto its quota status.
func QuotaStatusOf(u *User) QuotaStatus {
	return QuotaStatus{
		UserID:      u.ID,
		Tier:        u.Tier,
		Used:        u.AIAnalysesUsed,
		Limit:       u.AIAnalysesLimit,
		Remaining:   u.Remaining(),
		Exhausted:   u.Exhausted(),
		ExhaustedAt: u.TrialExhaustedAt,
	}
}
