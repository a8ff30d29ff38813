// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package bootscan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/log-capture/crashlogd/internal/bundle"
	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/events"
	"github.com/log-capture/crashlogd/internal/history"
	"github.com/log-capture/crashlogd/internal/props"
	"github.com/log-capture/crashlogd/internal/snapshot"
)

type recordingRunner struct {
	cmdlines []string
	args     [][]string
}

func (r *recordingRunner) Run(cmdline string, args ...string) error {
	r.cmdlines = append(r.cmdlines, cmdline)
	r.args = append(r.args, args)
	return nil
}

type fixture struct {
	cfg     *config.Config
	scanner *Scanner
	runner  *recordingRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.LogsDir = dir
	cfg.HistoryFile = filepath.Join(dir, "history_event")
	cfg.UptimeFile = filepath.Join(dir, "uptime")
	cfg.CrashDirEMMC = filepath.Join(dir, "crashlog")
	cfg.StatsDirEMMC = filepath.Join(dir, "stats")
	cfg.AplogsDirEMMC = filepath.Join(dir, "aplogs")
	cfg.CrashCursorFile = filepath.Join(dir, "currentcrashlog")
	cfg.StatsCursorFile = filepath.Join(dir, "currentstatslog")
	cfg.AplogsCursorFile = filepath.Join(dir, "currentaplogslog")
	cfg.AplogFile = filepath.Join(dir, "aplog")
	cfg.BplogFile = filepath.Join(dir, "bplog")
	cfg.SettleDelay = 0

	cfg.PanicConsoleProc = filepath.Join(dir, "proc_ipanic_console")
	cfg.FabricErrorProc = filepath.Join(dir, "proc_fabric_err")
	cfg.SavedConsoleFile = filepath.Join(dir, "saved_console")
	cfg.SavedThreadFile = filepath.Join(dir, "saved_threads")
	cfg.SavedLogcatFile = filepath.Join(dir, "saved_logcat")
	cfg.SavedFabricFile = filepath.Join(dir, "saved_fabric")
	cfg.ModemShutdownTrigger = filepath.Join(dir, "modemcrash", "mshutdown.txt")
	cfg.RecoveryTrigger = filepath.Join(dir, "recoveryfail")
	cfg.RecoveryLog = filepath.Join(dir, "last_log")
	cfg.CmdlineFile = filepath.Join(dir, "cmdline")

	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.SDCardRoot = filepath.Join(blocker, "data", "logs")

	st := &props.MapStore{}
	runner := &recordingRunner{}
	alloc := bundle.NewAllocator(cfg)
	hist := history.New(cfg, st, runner, config.Identity{BuildVersion: "B1", UUID: "u1"})
	snap := snapshot.New(cfg, runner)
	keyer := &events.Keyer{Build: "B1", UUID: "u1", Uptime: func() (time.Duration, error) { return time.Hour, nil }}

	return &fixture{
		cfg:     cfg,
		scanner: New(cfg, alloc, hist, snap, keyer),
		runner:  runner,
	}
}

func (f *fixture) ledger(t *testing.T) string {
	t.Helper()
	bs, err := os.ReadFile(f.cfg.HistoryFile)
	require.NoError(t, err)
	return string(bs)
}

func TestReadStartupReason(t *testing.T) {
	dir := t.TempDir()
	cmdline := filepath.Join(dir, "cmdline")

	cases := []struct {
		content string
		want    string
	}{
		{"console=ttyS0 androidboot.wakesrc=8 quiet", "SWWDT_RESET"},
		{"androidboot.wakesrc=1", "PWR_BUTTON_PRESS"},
		{"androidboot.mode=9", "HWWDT_RESET"},
		{"androidboot.wakesrc=42", "UNKNOWN"},
		{"nothing relevant", "UNKNOWN"},
	}
	for _, c := range cases {
		require.NoError(t, os.WriteFile(cmdline, []byte(c.content), 0o644))
		require.Equal(t, c.want, ReadStartupReason(cmdline), "cmdline %q", c.content)
	}

	require.Equal(t, "UNKNOWN", ReadStartupReason(filepath.Join(dir, "missing")))
}

func TestFabricClassification(t *testing.T) {
	cases := []struct {
		dump string
		want string
	}{
		{"header\nDW0: 0000f501\n", events.TypeMemError},
		{"DW0: 0000f502\n", events.TypeInstError},
		{"DW0: 0000f504\n", events.TypeSRAMECCError},
		{"DW0: 000000dd\n", events.TypeHWWDTLogError},
		{"DW0: 0000beef\n", events.TypeFabricError},
	}
	for _, c := range cases {
		f := newFixture(t)
		require.NoError(t, os.WriteFile(f.cfg.FabricErrorProc, []byte("1"), 0o644))
		require.NoError(t, os.WriteFile(f.cfg.SavedFabricFile, []byte(c.dump), 0o644))

		f.scanner.Run("COLD_BOOT")

		require.Contains(t, f.ledger(t), "CRASH   ")
		require.Contains(t, f.ledger(t), c.want)
	}
}

func TestPanicClassification(t *testing.T) {
	cases := []struct {
		console string
		want    string
	}{
		{"Kernel panic - not syncing: Kernel Watchdog\n", events.TypeKernelForceCrash},
		{"EIP is at panic_dbg_set\n", events.TypeKernelFakeCrash},
		{"some other panic\n", events.TypeKernelCrash},
	}
	for _, c := range cases {
		f := newFixture(t)
		require.NoError(t, os.WriteFile(f.cfg.PanicConsoleProc, []byte("0"), 0o644))
		require.NoError(t, os.WriteFile(f.cfg.SavedConsoleFile, []byte(c.console), 0o644))
		require.NoError(t, os.WriteFile(f.cfg.SavedThreadFile, []byte("threads"), 0o644))
		require.NoError(t, os.WriteFile(f.cfg.SavedLogcatFile, []byte("logcat"), 0o644))

		f.scanner.Run("COLD_BOOT")

		require.Contains(t, f.ledger(t), c.want)

		// The panic record was acknowledged to the kernel.
		ack, err := os.ReadFile(f.cfg.PanicConsoleProc)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(ack), "1"))

		// All three saved buffers landed in the bundle.
		entries, err := os.ReadDir(f.cfg.CrashDirEMMC + "0")
		require.NoError(t, err)
		require.Len(t, entries, 3)
	}
}

func TestModemShutdown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.cfg.ModemShutdownTrigger), 0o755))
	require.NoError(t, os.WriteFile(f.cfg.ModemShutdownTrigger, []byte(""), 0o644))

	f.scanner.Run("COLD_BOOT")

	require.Contains(t, f.ledger(t), events.TypeModemShutdown)
	_, err := os.Stat(f.cfg.ModemShutdownTrigger)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRecoveryError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.cfg.RecoveryTrigger, []byte(""), 0o644))
	require.NoError(t, os.WriteFile(f.cfg.RecoveryLog, []byte("recovery went sideways"), 0o644))

	f.scanner.Run("COLD_BOOT")

	require.Contains(t, f.ledger(t), events.TypeRecoveryError)

	bs, err := os.ReadFile(filepath.Join(f.cfg.CrashDirEMMC+"0", "recovery_last_log"))
	require.NoError(t, err)
	require.Equal(t, "recovery went sideways", string(bs))

	_, err = os.Stat(f.cfg.RecoveryTrigger)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatchdogStartupReason(t *testing.T) {
	f := newFixture(t)

	f.scanner.Run("HWWDT_RESET")

	require.Contains(t, f.ledger(t), "CRASH   ")
	require.Contains(t, f.ledger(t), "WDT")

	// The boot log flush ran against the fresh bundle.
	require.NotEmpty(t, f.runner.cmdlines)
	require.Equal(t, f.cfg.LogcatCmd, f.runner.cmdlines[0])
}

func TestNoResidualStateNoEvents(t *testing.T) {
	f := newFixture(t)

	f.scanner.Run("COLD_BOOT")

	_, err := os.Stat(f.cfg.HistoryFile)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestAllocationFailureStillRecords(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.cfg.RecoveryTrigger, []byte(""), 0o644))
	require.NoError(t, os.WriteFile(f.cfg.RecoveryLog, []byte("log"), 0o644))
	// Break the cursor so allocation fails.
	require.NoError(t, os.Mkdir(f.cfg.CrashCursorFile, 0o755))

	f.scanner.Run("COLD_BOOT")

	ledger := f.ledger(t)
	require.Contains(t, ledger, events.TypeRecoveryError)
	// Pathless record: the type column is padded, no bundle path follows.
	for _, line := range strings.Split(ledger, "\n") {
		if strings.Contains(line, events.TypeRecoveryError) {
			require.NotContains(t, line, "crashlog")
		}
	}
}
