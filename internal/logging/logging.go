// Package logging holds the shared slog conventions.
//
// Loggers are dependency-injected: main builds the one real handler and every
// component receives a *slog.Logger through its Config, scoping it once at
// construction with With("component", ...). Nothing in this module calls
// slog.SetDefault or reads the global logger.
//
// Hot paths (matcher scoring, canonicalisation, queue push) do not log;
// lifecycle boundaries and failures do.
package logging

import (
	"context"
	"log/slog"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that drops everything. Components fall back to it
// when no logger is configured, so logging stays optional without nil checks
// at every call site.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default resolves an optional logger: the given one when non-nil, otherwise
// Discard(). Constructors call this before scoping:
//
//	logger := logging.Default(cfg.Logger).With("component", "pipeline")
func Default(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}
