// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// formattingHandler writes human-readable lines of the form
//
//	2006-01-02 15:04:05 INF message (key=value, ...) [pkg]
//
// honoring the per-package levels in globalLevels.
type formattingHandler struct {
	mut   sync.Mutex
	out   io.Writer
	pkg   string
	attrs []slog.Attr
}

func (h *formattingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= globalLevels.Get(h.pkg)
}

func (h *formattingHandler) Handle(_ context.Context, rec slog.Record) error {
	buf := new(bytes.Buffer)
	buf.WriteString(rec.Time.Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(levelString(rec.Level))
	buf.WriteByte(' ')
	buf.WriteString(rec.Message)

	var attrs []slog.Attr
	attrs = append(attrs, h.attrs...)
	rec.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	first := true
	for _, a := range attrs {
		if a.Equal(slog.Attr{}) || a.Key == "pkg" {
			continue
		}
		if first {
			buf.WriteString(" (")
			first = false
		} else {
			buf.WriteString(", ")
		}
		fmt.Fprintf(buf, "%s=%v", a.Key, a.Value)
	}
	if !first {
		buf.WriteByte(')')
	}
	if h.pkg != "" {
		fmt.Fprintf(buf, " [%s]", h.pkg)
	}
	buf.WriteByte('\n')

	h.mut.Lock()
	defer h.mut.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *formattingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &formattingHandler{out: h.out, pkg: h.pkg}
	nh.attrs = append(append(nh.attrs, h.attrs...), attrs...)
	for _, a := range attrs {
		if a.Key == "pkg" {
			nh.pkg = a.Value.String()
		}
	}
	return nh
}

func (h *formattingHandler) WithGroup(string) slog.Handler {
	// Groups are not used in this codebase.
	return h
}

func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DBG"
	case level < slog.LevelWarn:
		return "INF"
	case level < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}
