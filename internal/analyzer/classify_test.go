package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CIPHER-000/chess-AI-sub000/internal/engine"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

func TestClassifyBoundaries(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		cpl  int
		want model.Classification
	}{
		{0, model.ClassBest},
		{10, model.ClassBest},
		{11, model.ClassExcellent},
		{25, model.ClassExcellent},
		{26, model.ClassGood},
		{50, model.ClassGood},
		{51, model.ClassInaccuracy},
		{100, model.ClassInaccuracy},
		{101, model.ClassMistake},
		{300, model.ClassMistake},
		{301, model.ClassBlunder},
		{20000, model.ClassBlunder},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Classify(tt.cpl), "cpl=%d", tt.cpl)
	}
}

func TestClassifyIsMonotonic(t *testing.T) {
	th := DefaultThresholds()
	prev := th.Classify(0)
	for cpl := 1; cpl <= 2*MateScore; cpl++ {
		got := th.Classify(cpl)
		if got > prev {
			t.Fatalf("tier improved from %s to %s at cpl=%d", prev, got, cpl)
		}
		assert.Equal(t, got, th.Classify(cpl))
		prev = got
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Best: 10, Excellent: 10, Good: 50, Inaccuracy: 100, Mistake: 300}.Validate())
	assert.Error(t, Thresholds{Best: -1, Excellent: 10, Good: 50, Inaccuracy: 100, Mistake: 300}.Validate())
}

func TestRefine(t *testing.T) {
	r := DefaultRefinement()
	assert.Equal(t, model.ClassBest, r.Refine(model.ClassBest, 0, 500), "disabled refinement leaves tier alone")

	r.Enabled = true
	tests := []struct {
		name          string
		class         model.Classification
		before, after int
		want          model.Classification
	}{
		{"small gain stays best", model.ClassBest, 0, 50, model.ClassBest},
		{"great", model.ClassBest, 0, 150, model.ClassGreat},
		{"brilliant from equal", model.ClassBest, 0, 250, model.ClassBrilliant},
		{"big gain while winning is great", model.ClassBest, 400, 700, model.ClassGreat},
		{"only best tier refines", model.ClassGood, 0, 900, model.ClassGood},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Refine(tt.class, tt.before, tt.after))
		})
	}
}

func TestPhaseOf(t *testing.T) {
	p := DefaultPhaseRule()
	assert.Equal(t, model.PhaseOpening, p.PhaseOf(0, 62))
	assert.Equal(t, model.PhaseOpening, p.PhaseOf(19, 62))
	assert.Equal(t, model.PhaseMiddlegame, p.PhaseOf(20, 62))
	assert.Equal(t, model.PhaseMiddlegame, p.PhaseOf(60, 27))
	assert.Equal(t, model.PhaseEndgame, p.PhaseOf(60, 26))
	assert.Equal(t, model.PhaseEndgame, p.PhaseOf(5, 10), "material rule wins over ply")
}

func TestScoreSaturation(t *testing.T) {
	assert.Equal(t, MateScore, Score(engine.Evaluation{IsMate: true, Mate: 3}))
	assert.Equal(t, -MateScore, Score(engine.Evaluation{IsMate: true, Mate: -1}))
	assert.Equal(t, -MateScore, Score(engine.Evaluation{IsMate: true, Mate: 0}))
	assert.Equal(t, MateScore, Score(engine.Evaluation{CP: 25000}))
	assert.Equal(t, -MateScore, Score(engine.Evaluation{CP: -25000}))
	assert.Equal(t, 35, Score(engine.Evaluation{CP: 35}))
}

func TestCentipawnLossNeverNegative(t *testing.T) {
	for _, before := range []int{-MateScore, -300, 0, 300, MateScore} {
		for _, after := range []int{-MateScore, -300, 0, 300, MateScore} {
			cpl := CentipawnLoss(before, after)
			assert.GreaterOrEqual(t, cpl, 0)
			assert.LessOrEqual(t, cpl, 2*MateScore)
		}
	}
	assert.Equal(t, 350, CentipawnLoss(0, -350))
	assert.Equal(t, 0, CentipawnLoss(-100, 200))
}
