package analyzer

import (
	"fmt"

	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// MateScore is the centipawn value a forced mate saturates to.
const MateScore = 10000

// Thresholds are inclusive upper CPL bounds for each tier. A move losing more
// than Mistake is a blunder.
type Thresholds struct {
	Best       int
	Excellent  int
	Good       int
	Inaccuracy int
	Mistake    int
}

// DefaultThresholds returns the standard tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Best: 10, Excellent: 25, Good: 50, Inaccuracy: 100, Mistake: 300}
}

// Validate checks that the bounds are non-negative and strictly ascending.
func (t Thresholds) Validate() error {
	bounds := []int{t.Best, t.Excellent, t.Good, t.Inaccuracy, t.Mistake}
	if bounds[0] < 0 {
		return fmt.Errorf("thresholds must be non-negative, got best=%d", t.Best)
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			return fmt.Errorf("thresholds must be strictly ascending: %v", bounds)
		}
	}
	return nil
}

// Classify maps a centipawn loss onto a tier. It depends on nothing but cpl.
func (t Thresholds) Classify(cpl int) model.Classification {
	switch {
	case cpl <= t.Best:
		return model.ClassBest
	case cpl <= t.Excellent:
		return model.ClassExcellent
	case cpl <= t.Good:
		return model.ClassGood
	case cpl <= t.Inaccuracy:
		return model.ClassInaccuracy
	case cpl <= t.Mistake:
		return model.ClassMistake
	default:
		return model.ClassBlunder
	}
}

// Refinement upgrades best-tier moves that swing the evaluation. Disabled by
// default, in which case classification is a function of CPL alone.
type Refinement struct {
	Enabled bool
	// GreatGain is the minimum evaluation gain for a great move.
	GreatGain int
	// BrilliantGain is the minimum gain for a brilliant move, which also
	// requires the mover not to be winning beforehand.
	BrilliantGain int
	// WinningAt is the pre-move score at or above which a position counts as already winning.
	WinningAt int
}

// DefaultRefinement returns the refinement parameters, disabled.
func DefaultRefinement() Refinement {
	return Refinement{GreatGain: 100, BrilliantGain: 200, WinningAt: 100}
}

// Refine applies the refinement to a classified move.
func (r Refinement) Refine(class model.Classification, before, after int) model.Classification {
	if !r.Enabled || class != model.ClassBest {
		return class
	}
	gain := after - before
	switch {
	case gain >= r.BrilliantGain && before < r.WinningAt:
		return model.ClassBrilliant
	case gain >= r.GreatGain:
		return model.ClassGreat
	}
	return class
}

// PhaseRule tags plies with a game phase.
type PhaseRule struct {
	// OpeningPlies is the number of plies counted as opening.
	OpeningPlies int
	// EndgameMaterial is the combined non-pawn material at or below which a
	// position is an endgame, whatever the ply.
	EndgameMaterial int
}

// DefaultPhaseRule returns the first ten full moves as opening and
// endgame once non-pawn material drops to 26 or less.
func DefaultPhaseRule() PhaseRule {
	return PhaseRule{OpeningPlies: 20, EndgameMaterial: 26}
}

// PhaseOf returns the phase of a move played at ply with the given non-pawn
// material on the board before it.
func (p PhaseRule) PhaseOf(ply, nonPawnMaterial int) model.Phase {
	switch {
	case nonPawnMaterial <= p.EndgameMaterial:
		return model.PhaseEndgame
	case ply < p.OpeningPlies:
		return model.PhaseOpening
	default:
		return model.PhaseMiddlegame
	}
}

// Score converts an evaluation to a bounded centipawn score from the side to
// move's perspective. Mates saturate to +/-MateScore.
func Score(ev engine.Evaluation) int {
	if ev.IsMate {
		if ev.Mate > 0 {
			return MateScore
		}
		return -MateScore
	}
	return clamp(ev.CP, -MateScore, MateScore)
}

// CentipawnLoss is how much worse the position got for the mover. Both scores
// are from the mover's perspective.
func CentipawnLoss(before, after int) int {
	if loss := before - after; loss > 0 {
		return loss
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
