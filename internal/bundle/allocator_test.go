// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/log-capture/crashlogd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.LogsDir = dir
	cfg.CrashDirEMMC = filepath.Join(dir, "crashlog")
	cfg.StatsDirEMMC = filepath.Join(dir, "stats")
	cfg.AplogsDirEMMC = filepath.Join(dir, "aplogs")
	cfg.CrashCursorFile = filepath.Join(dir, "currentcrashlog")
	cfg.StatsCursorFile = filepath.Join(dir, "currentstatslog")
	cfg.AplogsCursorFile = filepath.Join(dir, "currentaplogslog")

	// Block removable-media detection by parking the root under a file.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.SDCardRoot = filepath.Join(blocker, "data", "logs")
	return cfg
}

func TestAllocateFirstEver(t *testing.T) {
	cfg := testConfig(t)
	a := NewAllocator(cfg)

	slot, dir, err := a.Allocate(ModeCrash)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
	require.Equal(t, cfg.CrashDirEMMC+"0", dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	bs, err := os.ReadFile(cfg.CrashCursorFile)
	require.NoError(t, err)
	require.Equal(t, "1", string(bs))
}

func TestAllocateWrapsAround(t *testing.T) {
	cfg := testConfig(t)
	cfg.RuntimeMax = 5
	a := NewAllocator(cfg)

	var slots []int
	for i := 0; i < 12; i++ {
		slot, _, err := a.Allocate(ModeStats)
		require.NoError(t, err)
		slots = append(slots, slot)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 0, 1, 2, 3, 4, 0, 1}, slots)
}

func TestAllocateClobbersReusedSlot(t *testing.T) {
	cfg := testConfig(t)
	cfg.RuntimeMax = 2
	a := NewAllocator(cfg)

	_, dir, err := a.Allocate(ModeCrash)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("old"), 0o644))

	_, _, err = a.Allocate(ModeCrash)
	require.NoError(t, err)

	// Third allocation reuses slot 0; it must come back empty.
	slot, dir2, err := a.Allocate(ModeCrash)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
	require.Equal(t, dir, dir2)

	entries, err := os.ReadDir(dir2)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestAllocateUnreadableCursorFails(t *testing.T) {
	cfg := testConfig(t)
	a := NewAllocator(cfg)

	// A directory in place of the cursor file is unreadable without
	// being absent.
	require.NoError(t, os.Mkdir(cfg.StatsCursorFile, 0o755))

	_, _, err := a.Allocate(ModeStats)
	require.ErrorIs(t, err, ErrAllocFailed)
}

func TestAllocateGarbageCursor(t *testing.T) {
	cfg := testConfig(t)
	a := NewAllocator(cfg)

	require.NoError(t, os.WriteFile(cfg.CrashCursorFile, []byte("bogus"), 0o644))
	slot, _, err := a.Allocate(ModeCrash)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
}

func TestResetCursor(t *testing.T) {
	cfg := testConfig(t)
	a := NewAllocator(cfg)

	for i := 0; i < 3; i++ {
		_, _, err := a.Allocate(ModeAplogs)
		require.NoError(t, err)
	}
	require.NoError(t, a.ResetCursor(ModeAplogs))

	slot, _, err := a.Allocate(ModeAplogs)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
}

func TestModeDistinctCursors(t *testing.T) {
	cfg := testConfig(t)
	a := NewAllocator(cfg)

	_, _, err := a.Allocate(ModeCrash)
	require.NoError(t, err)
	_, _, err = a.Allocate(ModeCrash)
	require.NoError(t, err)

	slot, _, err := a.Allocate(ModeStats)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
}
