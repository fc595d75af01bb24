package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// Move record encoding, zstd-compressed as a whole:
// - Version (uint8): 1 byte
// - Count (uint16): 2 bytes
// then per record:
// - Ply (uint16): 2 bytes
// - Color (uint8): 1 byte, 0=white 1=black
// - CPL (uint16): 2 bytes
// - Classification (uint8): 1 byte
// - Phase (uint8): 1 byte
// - ScoreBefore (int16): 2 bytes
// - ScoreAfter (int16): 2 bytes
// - MateIn (int16): 2 bytes
// - SAN, UCI, BestMove: uint8 length + bytes each

const (
	movesCodecVersion = 1
	moveHeaderSize    = 2 + 1 + 2 + 1 + 1 + 2 + 2 + 2
	maxEncodedMoves   = 1<<16 - 1
)

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder
}

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return decoder
}

// EncodeMoves serialises and compresses move records for blob storage.
func EncodeMoves(records []model.MoveRecord) ([]byte, error) {
	if len(records) > maxEncodedMoves {
		return nil, fmt.Errorf("too many moves to encode: %d", len(records))
	}
	buf := make([]byte, 3, 3+len(records)*(moveHeaderSize+16))
	buf[0] = movesCodecVersion
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(records)))

	var hdr [moveHeaderSize]byte
	for _, r := range records {
		binary.BigEndian.PutUint16(hdr[0:2], uint16(r.Ply))
		hdr[2] = 0
		if r.Color == model.Black {
			hdr[2] = 1
		}
		binary.BigEndian.PutUint16(hdr[3:5], uint16(r.CentipawnLoss))
		hdr[5] = uint8(r.Classification)
		hdr[6] = uint8(r.Phase)
		binary.BigEndian.PutUint16(hdr[7:9], uint16(int16(r.ScoreBefore)))
		binary.BigEndian.PutUint16(hdr[9:11], uint16(int16(r.ScoreAfter)))
		binary.BigEndian.PutUint16(hdr[11:13], uint16(int16(r.MateIn)))
		buf = append(buf, hdr[:]...)
		for _, s := range []string{r.SAN, r.UCI, r.BestMove} {
			if len(s) > 255 {
				return nil, fmt.Errorf("move text too long at ply %d", r.Ply)
			}
			buf = append(buf, uint8(len(s)))
			buf = append(buf, s...)
		}
	}
	return zstdEncoder().EncodeAll(buf, nil), nil
}

// DecodeMoves reverses EncodeMoves.
func DecodeMoves(blob []byte) ([]model.MoveRecord, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	data, err := zstdDecoder().DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress moves: %w", err)
	}
	if len(data) < 3 {
		return nil, fmt.Errorf("moves too short: got %d bytes", len(data))
	}
	if data[0] != movesCodecVersion {
		return nil, fmt.Errorf("unknown moves encoding version %d", data[0])
	}
	count := int(binary.BigEndian.Uint16(data[1:3]))
	out := make([]model.MoveRecord, 0, count)
	pos := 3
	for i := 0; i < count; i++ {
		if len(data) < pos+moveHeaderSize {
			return nil, fmt.Errorf("move %d truncated", i)
		}
		h := data[pos : pos+moveHeaderSize]
		r := model.MoveRecord{
			Ply:            int(binary.BigEndian.Uint16(h[0:2])),
			Color:          model.White,
			CentipawnLoss:  int(binary.BigEndian.Uint16(h[3:5])),
			Classification: model.Classification(h[5]),
			Phase:          model.Phase(h[6]),
			ScoreBefore:    int(int16(binary.BigEndian.Uint16(h[7:9]))),
			ScoreAfter:     int(int16(binary.BigEndian.Uint16(h[9:11]))),
			MateIn:         int(int16(binary.BigEndian.Uint16(h[11:13]))),
		}
		if h[2] == 1 {
			r.Color = model.Black
		}
		r.MoveNumber = r.Ply/2 + 1
		pos += moveHeaderSize

		fields := [3]*string{&r.SAN, &r.UCI, &r.BestMove}
		for _, f := range fields {
			if len(data) < pos+1 {
				return nil, fmt.Errorf("move %d truncated", i)
			}
			n := int(data[pos])
			pos++
			if len(data) < pos+n {
				return nil, fmt.Errorf("move %d truncated", i)
			}
			*f = string(data[pos : pos+n])
			pos += n
		}
		out = append(out, r)
	}
	return out, nil
}
