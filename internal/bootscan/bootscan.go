// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bootscan reconstructs crash events from residual state left by
// the previous boot: the saved kernel panic buffers, the fabric error
// register dump, the modem shutdown trigger, the recovery failure marker
// and the startup reason on the kernel command line. It runs exactly once,
// before the live watch loop starts.
package bootscan

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/log-capture/crashlogd/internal/bundle"
	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/events"
	"github.com/log-capture/crashlogd/internal/history"
	"github.com/log-capture/crashlogd/internal/slogutil"
	"github.com/log-capture/crashlogd/internal/snapshot"
	"github.com/log-capture/crashlogd/internal/sysutil"
)

// fabricType maps a DW0 register line tail to its crash type. The table
// is ordered; the first match wins.
type fabricType struct {
	keyword string
	tail    string
	name    string
}

var fabricTypes = []fabricType{
	{"DW0:", "f501", events.TypeMemError},
	{"DW0:", "f502", events.TypeInstError},
	{"DW0:", "f504", events.TypeSRAMECCError},
	{"DW0:", "dd", events.TypeHWWDTLogError},
}

// Panic console markers distinguishing forced and fake panics.
const (
	forcedPanicMarker = "Kernel panic - not syncing: Kernel Watchdog"
	fakePanicMarker   = "EIP is at panic_dbg_set"
)

type Scanner struct {
	cfg   *config.Config
	alloc *bundle.Allocator
	hist  *history.History
	snap  *snapshot.Snapshotter
	keyer *events.Keyer
	log   *slog.Logger
}

func New(cfg *config.Config, alloc *bundle.Allocator, hist *history.History, snap *snapshot.Snapshotter, keyer *events.Keyer) *Scanner {
	return &Scanner{
		cfg:   cfg,
		alloc: alloc,
		hist:  hist,
		snap:  snap,
		keyer: keyer,
		log:   slog.With("pkg", "bootscan"),
	}
}

// Run performs the one-shot boot inspection. A failed bundle allocation is
// never fatal: the event is recorded without a path and scanning
// continues.
func (s *Scanner) Run(startupReason string) {
	s.checkFabric()
	s.checkPanic()
	s.checkModemShutdown()
	s.checkStartupReason(startupReason)
	s.checkRecovery()
}

func (s *Scanner) stamp() (ts, date string) {
	now := time.Now()
	return now.Format(events.FileTimeFormat), now.Format(events.RecordTimeFormat)
}

// exists honors the test flag forcing the residual-state checks true.
func (s *Scanner) exists(path string) bool {
	if s.cfg.TestMode {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// checkFabric classifies a saved fabric error dump by scanning its DW0
// lines against the known signature table, falling back to the generic
// fabric error type.
func (s *Scanner) checkFabric() {
	if !s.exists(s.cfg.FabricErrorProc) {
		return
	}
	ts, date := s.stamp()

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		key := s.keyer.Key(events.ClassCrash, events.TypeFabricError)
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: events.TypeFabricError, Key: key, Date: date})
		return
	}

	saved := filepath.Join(dir, fmt.Sprintf("%s_%s.txt", filepath.Base(s.cfg.SavedFabricFile), ts))
	if err := sysutil.CopyFile(s.cfg.SavedFabricFile, saved, config.FileSizeMax); err != nil {
		s.log.Warn("Cannot copy fabric error dump", slogutil.Error(err))
	}

	typ := events.TypeFabricError
	for _, ft := range fabricTypes {
		if fileContainsLine(saved, ft.keyword, ft.tail) {
			typ = ft.name
			break
		}
	}
	key := s.keyer.Key(events.ClassCrash, typ)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: typ, Bundle: dir + "/", Key: key, Date: date})
}

// checkPanic collects the saved panic buffers, acknowledges the panic to
// the kernel and classifies it from the console contents.
func (s *Scanner) checkPanic() {
	if !s.exists(s.cfg.PanicConsoleProc) {
		return
	}
	ts, date := s.stamp()

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		key := s.keyer.Key(events.ClassCrash, events.TypeKernelCrash)
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: events.TypeKernelCrash, Key: key, Date: date})
		return
	}

	for _, saved := range []string{s.cfg.SavedThreadFile, s.cfg.SavedConsoleFile, s.cfg.SavedLogcatFile} {
		dst := filepath.Join(dir, fmt.Sprintf("%s_%s.txt", filepath.Base(saved), ts))
		if err := sysutil.CopyFile(saved, dst, config.FileSizeMax); err != nil {
			s.log.Warn("Cannot copy panic buffer", slogutil.FilePath(saved), slogutil.Error(err))
		}
	}

	// Consume the panic record so the next boot does not see it again.
	if err := sysutil.WriteFileValue(s.cfg.PanicConsoleProc, "1"); err != nil {
		s.log.Warn("Cannot acknowledge kernel panic", slogutil.Error(err))
	}

	typ := events.TypeKernelCrash
	if fileContainsLine(s.cfg.SavedConsoleFile, forcedPanicMarker, "") {
		typ = events.TypeKernelForceCrash
	} else if fileContainsLine(s.cfg.SavedConsoleFile, fakePanicMarker, "") {
		typ = events.TypeKernelFakeCrash
	}
	key := s.keyer.Key(events.ClassCrash, typ)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: typ, Bundle: dir + "/", Key: key, Date: date})
}

// checkModemShutdown records an MSHUTDOWN left by the previous boot and
// clears its trigger.
func (s *Scanner) checkModemShutdown() {
	if _, err := os.Stat(s.cfg.ModemShutdownTrigger); err != nil {
		return
	}
	defer os.Remove(s.cfg.ModemShutdownTrigger)

	ts, date := s.stamp()
	key := s.keyer.Key(events.ClassCrash, events.TypeModemShutdown)

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: events.TypeModemShutdown, Key: key, Date: date})
		return
	}

	time.Sleep(s.cfg.SettleDelay)
	s.snap.Copy(events.TypeModemShutdown, dir, ts, snapshot.ApLog)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: events.TypeModemShutdown, Bundle: dir + "/", Key: key, Date: date})
}

// checkStartupReason records a watchdog crash when the boot was caused by
// a watchdog reset, with a full boot log flush.
func (s *Scanner) checkStartupReason(reason string) {
	if !strings.Contains(reason, "WDT_RESET") {
		return
	}
	ts, date := s.stamp()
	key := s.keyer.Key(events.ClassCrash, events.TypeWDT)

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: events.TypeWDT, Subtype: reason, Key: key, Date: date})
		return
	}

	s.snap.FlushBoot(events.TypeWDT, dir, ts)
	time.Sleep(s.cfg.SettleDelay)
	s.snap.Copy(events.TypeWDT, dir, ts, snapshot.ApLog)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: events.TypeWDT, Subtype: reason, Bundle: dir + "/", Key: key, Date: date})
}

// checkRecovery records a failed recovery and preserves its last log.
func (s *Scanner) checkRecovery() {
	if _, err := os.Stat(s.cfg.RecoveryTrigger); err != nil {
		return
	}
	defer os.Remove(s.cfg.RecoveryTrigger)

	_, date := s.stamp()
	key := s.keyer.Key(events.ClassCrash, events.TypeRecoveryError)

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: events.TypeRecoveryError, Key: key, Date: date})
		return
	}

	if err := sysutil.CopyFile(s.cfg.RecoveryLog, filepath.Join(dir, "recovery_last_log"), config.FileSizeMax); err != nil {
		s.log.Warn("Cannot copy recovery log", slogutil.Error(err))
	}
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: events.TypeRecoveryError, Bundle: dir + "/", Key: key, Date: date})
}

// ReadStartupReason decodes the wake source index from the kernel command
// line, trying the current parameter name before the legacy one.
func ReadStartupReason(cmdlineFile string) string {
	reason := events.StartupReasons[7] // UNKNOWN
	bs, err := os.ReadFile(cmdlineFile)
	if err != nil {
		return reason
	}
	cmdline := string(bs)
	for _, param := range []string{"androidboot.wakesrc=", "androidboot.mode="} {
		i := strings.Index(cmdline, param)
		if i < 0 {
			continue
		}
		idx := leadingInt(cmdline[i+len(param):])
		if idx >= 0 && idx < len(events.StartupReasons) {
			return events.StartupReasons[idx]
		}
		return reason
	}
	return reason
}

// leadingInt parses the leading decimal digits, or returns 0 for none, as
// atoi does.
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return v
}

// fileContainsLine reports whether any line of the file contains the
// keyword and, when tail is given, ends with it. The tail comparison
// window deliberately matches the historical implementation.
func fileContainsLine(path, keyword, tail string) bool {
	fd, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fd.Close()

	sc := bufio.NewScanner(fd)
	sc.Buffer(make([]byte, 4096), 64*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, keyword) {
			continue
		}
		if tail == "" {
			return true
		}
		// The historical check looked at the tail-sized window one
		// byte before the line terminator.
		if len(line) > len(tail) && strings.HasSuffix(line, tail) {
			return true
		}
	}
	return false
}
