package model

import (
	"fmt"
	"math"
)

// Classification is a move-quality tier. Higher values are better moves.
type Classification uint8

const (
	ClassBlunder Classification = iota
	ClassMistake
	ClassInaccuracy
	ClassGood
	ClassExcellent
	ClassBest
	ClassGreat
	ClassBrilliant
	numClassifications
)

var classNames = [numClassifications]string{
	"blunder", "mistake", "inaccuracy", "good", "excellent", "best", "great", "brilliant",
}

func (c Classification) String() string {
	if c < numClassifications {
		return classNames[c]
	}
	return fmt.Sprintf("classification(%d)", uint8(c))
}

// MarshalText encodes the tier name.
func (c Classification) MarshalText() ([]byte, error) {
	if c >= numClassifications {
		return nil, fmt.Errorf("unknown classification %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a tier name.
func (c *Classification) UnmarshalText(b []byte) error {
	v, err := ParseClassification(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseClassification maps a tier name to its value.
func ParseClassification(s string) (Classification, error) {
	for i, n := range classNames {
		if n == s {
			return Classification(i), nil
		}
	}
	return 0, fmt.Errorf("unknown classification %q", s)
}

// ClassificationCounts tallies moves per tier.
type ClassificationCounts struct {
	Brilliant  int `json:"brilliant"`
	Great      int `json:"great"`
	Best       int `json:"best"`
	Excellent  int `json:"excellent"`
	Good       int `json:"good"`
	Inaccuracy int `json:"inaccuracy"`
	Mistake    int `json:"mistake"`
	Blunder    int `json:"blunder"`
}

func (c *ClassificationCounts) slot(class Classification) *int {
	switch class {
	case ClassBrilliant:
		return &c.Brilliant
	case ClassGreat:
		return &c.Great
	case ClassBest:
		return &c.Best
	case ClassExcellent:
		return &c.Excellent
	case ClassGood:
		return &c.Good
	case ClassInaccuracy:
		return &c.Inaccuracy
	case ClassMistake:
		return &c.Mistake
	default:
		return &c.Blunder
	}
}

// Add counts one move of the given tier.
func (c *ClassificationCounts) Add(class Classification) {
	*c.slot(class)++
}

// Get returns the count for a tier.
func (c ClassificationCounts) Get(class Classification) int {
	return *c.slot(class)
}

// Merge adds other's counts into c.
func (c *ClassificationCounts) Merge(other ClassificationCounts) {
	for class := ClassBlunder; class < numClassifications; class++ {
		*c.slot(class) += other.Get(class)
	}
}

// Total is the number of moves counted.
func (c ClassificationCounts) Total() int {
	n := 0
	for class := ClassBlunder; class < numClassifications; class++ {
		n += c.Get(class)
	}
	return n
}

// Phase is the stage of the game a move was played in.
type Phase uint8

const (
	PhaseOpening Phase = iota
	PhaseMiddlegame
	PhaseEndgame
)

func (p Phase) String() string {
	switch p {
	case PhaseOpening:
		return "opening"
	case PhaseMiddlegame:
		return "middlegame"
	case PhaseEndgame:
		return "endgame"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "opening":
		*p = PhaseOpening
	case "middlegame":
		*p = PhaseMiddlegame
	case "endgame":
		*p = PhaseEndgame
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
