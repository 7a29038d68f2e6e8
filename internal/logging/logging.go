// Package logging builds the slog logger shared by agentlens components.
package logging

import (
	"io"
	"log/slog"
)

// New returns a text logger writing to w. The returned LevelVar lets a
// config reload flip debug output without rebuilding the logger.
func New(w io.Writer, debug bool) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	SetDebug(level, debug)
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("component", "agentlens"), level
}

// SetDebug switches level between Debug and Warn.
func SetDebug(level *slog.LevelVar, debug bool) {
	if debug {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(slog.LevelWarn)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
