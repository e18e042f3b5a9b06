// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler implements slog.Handler over zerolog so libraries that want
// an *slog.Logger (sutureslog) still write through the global logger.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	groups []string
}

// NewSlogLogger returns an *slog.Logger backed by the global zerolog logger.
func NewSlogLogger() *slog.Logger {
	return slog.New(&SlogHandler{logger: Logger()})
}

// Enabled reports whether records at level would be logged.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= slogToZerologLevel(level)
}

// Handle writes one record through zerolog.
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	var ev *zerolog.Event
	switch record.Level {
	case slog.LevelDebug:
		ev = h.logger.Debug()
	case slog.LevelWarn:
		ev = h.logger.Warn()
	case slog.LevelError:
		ev = h.logger.Error()
	default:
		ev = h.logger.Info()
	}

	for _, attr := range h.attrs {
		ev = addAttr(ev, attr, h.groups)
	}
	record.Attrs(func(attr slog.Attr) bool {
		ev = addAttr(ev, attr, h.groups)
		return true
	})

	ev.Msg(record.Message)
	return nil
}

// WithAttrs returns a handler carrying the extra attributes.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &SlogHandler{logger: h.logger, attrs: merged, groups: h.groups}
}

// WithGroup returns a handler that prefixes keys with the group name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &SlogHandler{logger: h.logger, attrs: h.attrs, groups: groups}
}

func addAttr(ev *zerolog.Event, attr slog.Attr, groups []string) *zerolog.Event {
	key := attr.Key
	for _, g := range groups {
		key = g + "." + key
	}

	switch attr.Value.Kind() {
	case slog.KindString:
		return ev.Str(key, attr.Value.String())
	case slog.KindInt64:
		return ev.Int64(key, attr.Value.Int64())
	case slog.KindUint64:
		return ev.Uint64(key, attr.Value.Uint64())
	case slog.KindFloat64:
		return ev.Float64(key, attr.Value.Float64())
	case slog.KindBool:
		return ev.Bool(key, attr.Value.Bool())
	case slog.KindDuration:
		return ev.Dur(key, attr.Value.Duration())
	case slog.KindTime:
		return ev.Time(key, attr.Value.Time())
	case slog.KindGroup:
		for _, ga := range attr.Value.Group() {
			ev = addAttr(ev, ga, append(groups, attr.Key))
		}
		return ev
	default:
		return ev.Interface(key, attr.Value.Any())
	}
}

func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
