// Package board replays SAN move sequences and answers the position
// questions the analyzer needs: FEN, side to move, material and terminal state.
package board

import (
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// Status describes whether the side to move has any legal move.
type Status uint8

const (
	Ongoing Status = iota
	Checkmate
	Stalemate
)

// Piece values used for the non-pawn material count.
var pieceValues = [256]int{
	'q': 9, 'r': 5, 'b': 3, 'n': 3,
	'Q': 9, 'R': 5, 'B': 3, 'N': 3,
}

// StartingNonPawnMaterial is the non-pawn material of both sides combined at the start.
const StartingNonPawnMaterial = 2 * (9 + 2*5 + 2*3 + 2*3)

// Replay walks a game's mainline from the initial position.
type Replay struct {
	pos *pgn.GameState
	fen string
	ply int
}

// NewReplay starts from the standard initial position.
func NewReplay() *Replay {
	pos := pgn.NewStartingPosition()
	return &Replay{pos: pos, fen: pos.ToFEN()}
}

// FEN returns the current position.
func (r *Replay) FEN() string { return r.fen }

// Ply returns the number of moves applied so far.
func (r *Replay) Ply() int { return r.ply }

// Key returns the packed position used for opening lookups.
func (r *Replay) Key() pgn.PackedPosition { return r.pos.Pack() }

// SideToMove returns the color to play.
func (r *Replay) SideToMove() model.Color {
	if r.pos.SideToMove == pgn.Black {
		return model.Black
	}
	return model.White
}

// NonPawnMaterial sums queen, rook, bishop and knight values for both sides.
func (r *Replay) NonPawnMaterial() int {
	total := 0
	for sq := pgn.Square(0); sq < 64; sq++ {
		total += pieceValues[r.pos.PieceAt(sq)]
	}
	return total
}

// Status reports checkmate or stalemate for the side to move.
func (r *Replay) Status() Status {
	if len(pgn.GenerateLegalMoves(r.pos)) > 0 {
		return Ongoing
	}
	if r.pos.IsInCheck() {
		return Checkmate
	}
	return Stalemate
}

// Play applies one SAN move and returns it in UCI notation.
func (r *Replay) Play(san string) (string, error) {
	clean := CleanSAN(san)
	if clean == "" {
		return "", fmt.Errorf("empty move")
	}
	mv, err := pgn.ParseSAN(r.pos, clean)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", san, err)
	}
	if err := pgn.ApplyMove(r.pos, mv); err != nil {
		return "", fmt.Errorf("apply %q: %w", san, err)
	}
	r.fen = r.pos.ToFEN()
	r.ply++
	return mv.String(), nil
}

// CleanSAN strips check marks and annotation glyphs the parser does not accept.
func CleanSAN(san string) string {
	s := strings.TrimSpace(san)
	s = strings.TrimRight(s, "+#!?")
	// 0-0 style castling is common in exported movetext
	switch s {
	case "0-0":
		s = "O-O"
	case "0-0-0":
		s = "O-O-O"
	}
	return s
}
