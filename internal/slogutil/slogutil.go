// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package slogutil sets up the process-wide slog handler and provides the
// common attribute constructors.
package slogutil

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var globalLevels = &levelTracker{
	levels: make(map[string]slog.Level),
}

func init() {
	var out io.Writer = os.Stdout
	if os.Getenv("LOGGER_DISCARD") != "" {
		// Hack to completely disable logging, for example when running
		// benchmarks.
		out = io.Discard
	}
	slog.SetDefault(slog.New(&formattingHandler{out: out}))

	SetLevelOverrides(os.Getenv("CLTRACE"))
}

// SetLevelOverrides applies per-package level overrides in the CLTRACE
// format: mentioning a package makes it DEBUG level,
//
//	CLTRACE="classifier,history"
//
// and a specific level can be given after a colon:
//
//	CLTRACE="classifier:WARN,history:DEBUG"
func SetLevelOverrides(cltrace string) {
	for _, pkg := range strings.Split(cltrace, ",") {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			continue
		}
		level := slog.LevelDebug
		if cutPkg, levelStr, ok := strings.Cut(pkg, ":"); ok {
			pkg = cutPkg
			if err := level.UnmarshalText([]byte(levelStr)); err != nil {
				slog.Warn("Bad log level requested in CLTRACE", slog.String("pkg", pkg), slog.String("level", levelStr), Error(err))
				continue
			}
		}
		globalLevels.Set(pkg, level)
	}
}

func SetDefaultLevel(level slog.Level) {
	globalLevels.SetDefault(level)
}
