// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package snapshot copies bounded tail slices of the system and baseband
// logs into bundle directories, and flushes the live logcat buffers into a
// boot log file.
package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/slogutil"
	"github.com/log-capture/crashlogd/internal/sysutil"
)

// Channel selects which log stream to snapshot.
type Channel int

const (
	ApLog Channel = iota
	BpLog
)

type Snapshotter struct {
	cfg    *config.Config
	runner sysutil.Runner
	log    *slog.Logger
}

func New(cfg *config.Config, runner sysutil.Runner) *Snapshotter {
	return &Snapshotter{
		cfg:    cfg,
		runner: runner,
		log:    slog.With("pkg", "snapshot"),
	}
}

// Copy snapshots the tail of the channel's current log into the bundle as
// <name>_<event>_<ts>. When the current log is smaller than the rotation
// threshold the previous generation is copied too, so a freshly rotated
// log does not lose the interesting part.
func (s *Snapshotter) Copy(event, bundleDir, ts string, ch Channel) {
	src := s.cfg.AplogFile
	suffix := ""
	if ch == BpLog {
		src = s.cfg.BplogFile
		suffix = ".istp"
	}

	info, err := os.Stat(src)
	if err != nil {
		return
	}
	dst := filepath.Join(bundleDir, fmt.Sprintf("%s_%s_%s%s", filepath.Base(src), event, ts, suffix))
	if err := sysutil.CopyFile(src, dst, config.FileSizeMax); err != nil {
		s.log.Warn("Cannot snapshot log", slogutil.FilePath(src), slogutil.Error(err))
	}

	if info.Size() >= config.SecondLogThreshold {
		return
	}
	prev := src + ".1"
	if _, err := os.Stat(prev); err != nil {
		return
	}
	dst = filepath.Join(bundleDir, fmt.Sprintf("%s_%s_%s%s", filepath.Base(prev), event, ts, suffix))
	if err := sysutil.CopyFile(prev, dst, config.FileSizeMax); err != nil {
		s.log.Warn("Cannot snapshot log", slogutil.FilePath(prev), slogutil.Error(err))
	}
}

// FlushBoot dumps the combined platform log buffers into the bundle as
// aplog_boot_<event>_<ts> and makes the result world readable.
func (s *Snapshotter) FlushBoot(event, bundleDir, ts string) {
	out := filepath.Join(bundleDir, fmt.Sprintf("%s_%s_%s", s.cfg.AplogBootName, event, ts))
	if err := s.runner.Run(s.cfg.LogcatCmd, out); err != nil {
		s.log.Warn("Flush of boot log failed", slogutil.Error(err))
	}
	if err := os.Chmod(out, 0o644); err != nil {
		s.log.Debug("Cannot chmod boot log", slogutil.FilePath(out), slogutil.Error(err))
	}
}
