// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package classifier

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/log-capture/crashlogd/internal/props"
	"github.com/log-capture/crashlogd/internal/slogutil"
	"github.com/log-capture/crashlogd/internal/sysutil"
)

// traceMarker references the VM trace file inside a dropbox entry.
const traceMarker = "Trace file:"

// traceScanLines bounds how far into the entry the marker is looked for.
const traceScanLines = 100

// backtrace extracts and parses the user stack trace of an ANR or UI
// watchdog entry, unless disabled by policy.
func (s *Service) backtrace(dest, bundleDir string) {
	if props.BoolValue(s.st.Get(props.PropANRUserstack, "0")) {
		return
	}
	s.processTrace(dest, bundleDir)
}

// processTrace gunzips the entry when needed, finds the referenced trace
// file, moves it into the bundle as trace_all_stack.txt and hands it to
// the external backtrace parser. The referenced trace is removed so the VM
// can write a fresh one.
func (s *Service) processTrace(dest, bundleDir string) {
	if strings.HasSuffix(dest, ".gz") {
		if err := s.runner.Run(s.cfg.GunzipCmd, dest); err != nil {
			s.log.Warn("Cannot decompress dropbox entry", slogutil.FilePath(dest), slogutil.Error(err))
			return
		}
		dest = strings.TrimSuffix(dest, ".gz")
	}

	fd, err := os.Open(dest)
	if err != nil {
		s.log.Warn("Cannot open dropbox entry", slogutil.FilePath(dest), slogutil.Error(err))
		return
	}
	defer fd.Close()

	sc := bufio.NewScanner(fd)
	for i := 0; i < traceScanLines && sc.Scan(); i++ {
		line := sc.Text()
		if !strings.HasPrefix(line, traceMarker) {
			continue
		}
		tracefile := strings.TrimSuffix(line[len(traceMarker):], "\n")
		target := filepath.Join(bundleDir, "trace_all_stack.txt")
		if err := sysutil.CopyFile(tracefile, target, 0); err != nil {
			s.log.Warn("Cannot copy trace file", slogutil.FilePath(tracefile), slogutil.Error(err))
			return
		}
		if err := os.Remove(tracefile); err != nil {
			s.log.Warn("Cannot remove trace file", slogutil.FilePath(tracefile), slogutil.Error(err))
		}
		if err := s.runner.Run(s.cfg.BacktraceCmd, target); err != nil {
			s.log.Warn("Backtrace parser failed", slogutil.Error(err))
		}
		return
	}
}
