package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

func playAll(t *testing.T, sans ...string) (*Replay, []string) {
	t.Helper()
	r := NewReplay()
	ucis := make([]string, 0, len(sans))
	for _, san := range sans {
		uci, err := r.Play(san)
		require.NoError(t, err, "move %s", san)
		ucis = append(ucis, uci)
	}
	return r, ucis
}

func TestReplayStartingPosition(t *testing.T) {
	r := NewReplay()
	assert.Equal(t, model.White, r.SideToMove())
	assert.Equal(t, StartingNonPawnMaterial, r.NonPawnMaterial())
	assert.Equal(t, 62, StartingNonPawnMaterial)
	assert.Equal(t, Ongoing, r.Status())
	assert.Equal(t, 0, r.Ply())
}

func TestReplayUCIDerivation(t *testing.T) {
	tests := []struct {
		name  string
		moves []string
		want  []string
	}{
		{
			name:  "pawns and knights",
			moves: []string{"e4", "e5", "Nf3", "Nc6"},
			want:  []string{"e2e4", "e7e5", "g1f3", "b8c6"},
		},
		{
			name:  "short castle",
			moves: []string{"e4", "e5", "Nf3", "Nc6", "Bc4", "Bc5", "O-O"},
			want:  []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "f8c5", "e1g1"},
		},
		{
			name:  "capture with check suffix",
			moves: []string{"e4", "d5", "exd5", "Qxd5", "Nc3", "Qe5+"},
			want:  []string{"e2e4", "d7d5", "e4d5", "d8d5", "b1c3", "d5e5"},
		},
		{
			name:  "en passant",
			moves: []string{"e4", "a6", "e5", "d5", "exd6"},
			want:  []string{"e2e4", "a7a6", "e4e5", "d7d5", "e5d6"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := playAll(t, tt.moves...)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplayPromotion(t *testing.T) {
	_, got := playAll(t, "h4", "g5", "hxg5", "h6", "gxh6", "Nf6", "h7", "Ng8", "hxg8=Q")
	assert.Equal(t, "h7g8q", got[len(got)-1])
}

func TestReplayRejectsIllegalMove(t *testing.T) {
	r := NewReplay()
	_, err := r.Play("e5")
	assert.Error(t, err)
	_, err = r.Play("Qxf7")
	assert.Error(t, err)
	_, err = r.Play("")
	assert.Error(t, err)
	assert.Equal(t, 0, r.Ply())
}

func TestReplayCheckmate(t *testing.T) {
	r, _ := playAll(t, "f3", "e5", "g4", "Qh4#")
	assert.Equal(t, Checkmate, r.Status())
	assert.Equal(t, model.White, r.SideToMove())
}

func TestReplayMaterialAfterCaptures(t *testing.T) {
	r, _ := playAll(t, "e4", "d5", "exd5", "Qxd5", "Nc3", "Qxd2+", "Bxd2")
	// black queen gone
	assert.Equal(t, StartingNonPawnMaterial-9, r.NonPawnMaterial())
}

func TestCleanSAN(t *testing.T) {
	tests := map[string]string{
		"Nf3":    "Nf3",
		"Qh4#":   "Qh4",
		"e8=Q+":  "e8=Q",
		"Bxf7+!": "Bxf7",
		"0-0":    "O-O",
		" Rd1?? ": "Rd1",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanSAN(in), in)
	}
}

func TestReplaySideToMoveAndMaterialTrackPosition(t *testing.T) {
	r, _ := playAll(t, "e4", "d5", "exd5", "Qxd5", "Nc3")
	assert.Equal(t, model.Black, r.SideToMove())
	assert.Contains(t, r.FEN(), " b ")
	assert.Equal(t, StartingNonPawnMaterial, r.NonPawnMaterial())

	// promotion adds a queen and removes a knight
	r, _ = playAll(t, "h4", "g5", "hxg5", "h6", "gxh6", "Nf6", "h7", "Ng8", "hxg8=Q")
	assert.Equal(t, model.Black, r.SideToMove())
	assert.Equal(t, StartingNonPawnMaterial-3+9, r.NonPawnMaterial())
}
