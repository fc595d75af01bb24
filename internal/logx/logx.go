package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction.
type Options struct {
	Level string // trace, debug, info, warn, error; default info
	JSON  bool
	Out   io.Writer // default os.Stdout
}

// shortCaller renders "file.go:123" padded for alignment.
func shortCaller(pc uintptr, file string, line int) string {
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%-28s", fmt.Sprintf("%s:%d", short, line))
}

// NewLogger returns a zerolog logger writing console output to stdout at info level.
func NewLogger() zerolog.Logger {
	return New(Options{})
}

// New builds a logger from opts. Unknown levels fall back to info.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	zerolog.CallerMarshalFunc = shortCaller

	var w io.Writer = out
	if !opts.JSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}
