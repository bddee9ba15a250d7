//go:build linux

package hoard

import "log/slog"

// logger is a thin wrapper around *slog.Logger tagging every record with
// the hoard subsystem, so allocator.go's call sites stay short.
type logger struct {
	l *slog.Logger
}

func newLogger(l *slog.Logger) *logger {
	return &logger{l: l.With("subsystem", "hoard")}
}

func (lg *logger) info(msg string, args ...any)  { lg.l.Info(msg, args...) }
func (lg *logger) debug(msg string, args ...any) { lg.l.Debug(msg, args...) }
func (lg *logger) error(msg string, args ...any) { lg.l.Error(msg, args...) }
