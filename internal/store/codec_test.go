package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

func TestMovesCodecRoundTrip(t *testing.T) {
	records := []model.MoveRecord{
		{Ply: 0, MoveNumber: 1, Color: model.White, SAN: "e4", UCI: "e2e4", CentipawnLoss: 0,
			Classification: model.ClassBest, Phase: model.PhaseOpening, BestMove: "e2e4", ScoreBefore: 30, ScoreAfter: 30},
		{Ply: 1, MoveNumber: 1, Color: model.Black, SAN: "f6", UCI: "f7f6", CentipawnLoss: 10000,
			Classification: model.ClassBlunder, Phase: model.PhaseOpening, BestMove: "e7e5", ScoreBefore: -30, ScoreAfter: -10000, MateIn: -3},
	}
	blob, err := EncodeMoves(records)
	require.NoError(t, err)

	got, err := DecodeMoves(blob)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestDecodeMovesRejectsGarbage(t *testing.T) {
	_, err := DecodeMoves([]byte("not zstd"))
	assert.Error(t, err)

	got, err := DecodeMoves(nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}
