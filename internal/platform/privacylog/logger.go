package privacylog

import (
	"io"
	"log/slog"
	"os"
)

// DefaultLogger is a JSON logger on stderr with sanitization applied.
func DefaultLogger() *slog.Logger {
	return NewLogger(os.Stderr, slog.LevelInfo)
}

func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(WrapHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// Discard drops every record. Used when a component is built without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
