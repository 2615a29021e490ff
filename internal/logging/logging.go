// Package logging carries the slog plumbing shared by the CLI and the
// HTTP server.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// LevelReportIO sits between Debug (-4) and Info (0): request and
// response detail that is too chatty for normal runs.
const LevelReportIO slog.Level = -2

type Options struct {
	AddSource bool
	Level     slog.Leveler
}

// NewHandler builds the standard text handler used across the app.
func NewHandler(w io.Writer, opts *Options) slog.Handler {
	if opts == nil {
		opts = &Options{Level: slog.LevelInfo}
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource: opts.AddSource,
		Level:     opts.Level,
	})
}

// allows a single handler instance to call multiple handlers
// prefering this over recursion as it feels much simpler especially when one handler may error
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{
		handlers: handlers,
	}
}

func (h *MultiHandler) AddHandler(handler slog.Handler) {
	h.handlers = append(h.handlers, handler)
}

// if any is true return true
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// always calls each handler returning all errors wrapped
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs error
	for _, handler := range h.handlers {
		err := handler.Handle(ctx, r)
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}
