// Package hoardlog configures the structured logger used at the allocator's
// error-handling seams (init failure, the out-of-address-space abort, and
// debug-level migration tracing). Grounded on the one logging idiom the
// retrieval pack's closest example actually imports directly: log/slog.
package hoardlog

import (
	"log/slog"
	"os"
)

// New returns a logger writing structured text to w (os.Stderr if nil),
// at debug level when debug is true and info level otherwise.
func New(w *os.File, debug bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
