// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bundle carves the on-disk output space into a capped rotating
// set of per-event directories and persists the rotation cursor.
package bundle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/slogutil"
)

// Mode selects which of the three bundle spaces to allocate from.
type Mode int

const (
	ModeCrash Mode = iota
	ModeStats
	ModeAplogs
)

func (m Mode) String() string {
	switch m {
	case ModeCrash:
		return "crash"
	case ModeStats:
		return "stats"
	case ModeAplogs:
		return "aplogs"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrAllocFailed is returned when no bundle directory could be produced.
// Callers record the event without a bundle path and skip artifact copies.
var ErrAllocFailed = errors.New("bundle allocation failed")

type Allocator struct {
	cfg *config.Config
	log *slog.Logger
}

func NewAllocator(cfg *config.Config) *Allocator {
	return &Allocator{
		cfg: cfg,
		log: slog.With("pkg", "bundle"),
	}
}

// Allocate reserves the next slot in the given mode and returns its
// directory, created empty with mode 0777. The cursor advances before the
// slot is handed out, so no two events ever share a live bundle.
func (a *Allocator) Allocate(mode Mode) (int, string, error) {
	slot, err := a.advanceCursor(mode)
	if err != nil {
		a.log.Warn("Cannot advance rotation cursor", slog.String("mode", mode.String()), slogutil.Error(err))
		metricAllocTotal.WithLabelValues(mode.String(), "failure").Inc()
		return -1, "", fmt.Errorf("%w: %s", ErrAllocFailed, err)
	}

	dir := a.SlotDir(mode, slot)
	if err := clobberDir(dir); err != nil {
		a.log.Warn("Cannot prepare bundle directory", slogutil.FilePath(dir), slogutil.Error(err))
		metricAllocTotal.WithLabelValues(mode.String(), "failure").Inc()
		return -1, "", fmt.Errorf("%w: %s", ErrAllocFailed, err)
	}
	metricAllocTotal.WithLabelValues(mode.String(), "success").Inc()
	return slot, dir, nil
}

// SlotDir returns the directory for a slot in the given mode under the
// currently selected storage root.
func (a *Allocator) SlotDir(mode Mode, slot int) string {
	return a.rootFor(mode) + strconv.Itoa(slot)
}

// advanceCursor performs the read-modify-write on the cursor file. The
// two-step open-read-close/open-write-close is deliberately kept
// non-atomic to preserve the historical on-disk behavior.
func (a *Allocator) advanceCursor(mode Mode) (int, error) {
	path := a.cursorFile(mode)

	bs, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// First allocation ever in this mode: hand out slot 0 and
		// leave the cursor pointing at 1.
		a.log.Info("No rotation cursor, starting from slot 0", slogutil.FilePath(path))
		if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
			return -1, err
		}
		return 0, nil
	}
	if err != nil {
		return -1, err
	}

	cur, err := strconv.Atoi(strings.TrimSpace(string(bs)))
	if err != nil || cur < 0 {
		cur = 0
	}
	slot := cur % config.MaxDir
	next := (slot + 1) % a.cfg.RuntimeMax
	if err := os.WriteFile(path, []byte(strconv.Itoa(next)), 0o644); err != nil {
		return -1, err
	}
	return slot, nil
}

// ResetCursor rewinds a mode to slot 0. Used on software updates.
func (a *Allocator) ResetCursor(mode Mode) error {
	return os.WriteFile(a.cursorFile(mode), []byte("0"), 0o644)
}

func (a *Allocator) cursorFile(mode Mode) string {
	switch mode {
	case ModeCrash:
		return a.cfg.CrashCursorFile
	case ModeAplogs:
		return a.cfg.AplogsCursorFile
	default:
		return a.cfg.StatsCursorFile
	}
}

// rootFor picks the bundle root prefix for the mode, preferring removable
// media when present. The choice is re-evaluated on every allocation so a
// hot-swapped card is observed.
func (a *Allocator) rootFor(mode Mode) string {
	if a.sdcardPresent() {
		switch mode {
		case ModeCrash:
			return a.cfg.CrashDirSD
		case ModeAplogs:
			return a.cfg.AplogsDirSD
		default:
			return a.cfg.StatsDirSD
		}
	}
	switch mode {
	case ModeCrash:
		return a.cfg.CrashDirEMMC
	case ModeAplogs:
		return a.cfg.AplogsDirEMMC
	default:
		return a.cfg.StatsDirEMMC
	}
}

func (a *Allocator) sdcardPresent() bool {
	if _, err := os.Stat(a.cfg.SDCardRoot); err == nil {
		return true
	}
	if err := os.MkdirAll(a.cfg.SDCardRoot, 0o777); err != nil {
		return false
	}
	_, err := os.Stat(a.cfg.SDCardRoot)
	return err == nil
}

// clobberDir leaves dir existing and empty: direct children are removed
// (non-recursively), the directory itself recreated with mode 0777.
func clobberDir(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dir), 0o777); err != nil {
			return err
		}
		return os.Mkdir(dir, 0o777)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		os.Remove(filepath.Join(dir, ent.Name()))
	}
	os.Remove(dir)
	return os.Mkdir(dir, 0o777)
}
