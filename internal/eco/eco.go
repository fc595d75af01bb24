// Package eco provides ECO (Encyclopedia of Chess Openings) lookup.
package eco

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/CIPHER-000/chess-AI-sub000/internal/board"
	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

//go:embed data/openings.tsv
var defaultTSV string

// Database holds ECO opening data indexed by position.
type Database struct {
	byPosition map[pgn.PackedPosition]model.Opening
	count      int
	skipped    int
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{
		byPosition: make(map[pgn.PackedPosition]model.Opening),
	}
}

// Default returns a database loaded with the bundled opening table.
func Default() *Database {
	db := NewDatabase()
	// the bundled table is fixed; bad lines are counted in Skipped
	_ = db.LoadReader(strings.NewReader(defaultTSV))
	return db
}

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return db.LoadReader(f)
}

// LoadReader reads "eco\tname\tpgn" lines. Later lines for the same
// position replace earlier ones.
func (db *Database) LoadReader(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		replay, err := replayMovetext(parts[2])
		if err != nil {
			db.skipped++
			continue
		}

		key := replay.Key()
		if _, exists := db.byPosition[key]; !exists {
			db.count++
		}
		db.byPosition[key] = model.Opening{ECO: parts[0], Name: parts[1]}
	}

	return scanner.Err()
}

// replayMovetext applies movetext like "1. e4 e5 2. Nf3 Nc6".
func replayMovetext(movetext string) (*board.Replay, error) {
	r := board.NewReplay()
	for _, san := range board.SplitMovetext(movetext) {
		if _, err := r.Play(san); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Lookup returns the ECO opening for a position, or nil if not found.
func (db *Database) Lookup(pos pgn.PackedPosition) *model.Opening {
	if o, ok := db.byPosition[pos]; ok {
		return &o
	}
	return nil
}

// Detect replays up to maxPlies moves of a game and returns the deepest
// position that matches a known opening. Replay stops at the first move that
// does not parse; whatever matched before it still counts.
func (db *Database) Detect(moves []string, maxPlies int) *model.Opening {
	if maxPlies <= 0 || maxPlies > len(moves) {
		maxPlies = len(moves)
	}
	var found *model.Opening
	r := board.NewReplay()
	for _, san := range moves[:maxPlies] {
		if _, err := r.Play(san); err != nil {
			break
		}
		if o := db.Lookup(r.Key()); o != nil {
			found = o
		}
	}
	return found
}

// Count returns the number of distinct positions loaded.
func (db *Database) Count() int {
	return db.count
}

// Skipped returns how many lines failed to replay.
func (db *Database) Skipped() int {
	return db.skipped
}
