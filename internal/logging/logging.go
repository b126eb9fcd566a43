// Package logging provides the dependency-injected logger helper shared by
// standardbloom, expiringbloom, and internal/rotator.
//
// Logging is dependency-injected, never global: each filter or rotator
// scopes its own logger at construction time via Default, and attaches a
// "component" attribute with slog.Logger.With. Global configuration
// (output format, level, destination) is the embedding application's
// concern, not this module's — components here never call
// slog.SetDefault or reach for a package-level logger.
package logging

import (
	"context"
	"log/slog"
)

// discardHandler is a handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output, the default for a
// filter or rotator constructed without an explicit logger.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger. The
// standard pattern for every optional *slog.Logger parameter in this
// module:
//
//	func Create(cfg Config, backend store.PartitionedStore, logger *slog.Logger) (*Filter, error) {
//	    f := &Filter{logger: logging.Default(logger).With("component", "standardbloom")}
//	    ...
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
