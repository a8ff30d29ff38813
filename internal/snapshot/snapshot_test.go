// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/log-capture/crashlogd/internal/config"
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

func newTestSnapshotter(t *testing.T) (*Snapshotter, *config.Config, *recordingRunner, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.AplogFile = filepath.Join(dir, "aplog")
	cfg.BplogFile = filepath.Join(dir, "bplog")

	bundleDir := filepath.Join(dir, "crashlog0")
	require.NoError(t, os.Mkdir(bundleDir, 0o755))

	runner := &recordingRunner{}
	return New(cfg, runner), cfg, runner, bundleDir
}

func TestCopySmallLogIncludesPrevious(t *testing.T) {
	s, cfg, _, bundleDir := newTestSnapshotter(t)
	require.NoError(t, os.WriteFile(cfg.AplogFile, []byte("current"), 0o644))
	require.NoError(t, os.WriteFile(cfg.AplogFile+".1", []byte("previous"), 0o644))

	s.Copy("ANR", bundleDir, "20260102030405", ApLog)

	bs, err := os.ReadFile(filepath.Join(bundleDir, "aplog_ANR_20260102030405"))
	require.NoError(t, err)
	require.Equal(t, "current", string(bs))

	bs, err = os.ReadFile(filepath.Join(bundleDir, "aplog.1_ANR_20260102030405"))
	require.NoError(t, err)
	require.Equal(t, "previous", string(bs))
}

func TestCopyLargeLogSkipsPrevious(t *testing.T) {
	s, cfg, _, bundleDir := newTestSnapshotter(t)
	big := make([]byte, config.SecondLogThreshold)
	require.NoError(t, os.WriteFile(cfg.AplogFile, big, 0o644))
	require.NoError(t, os.WriteFile(cfg.AplogFile+".1", []byte("previous"), 0o644))

	s.Copy("MPANIC", bundleDir, "20260102030405", ApLog)

	_, err := os.Stat(filepath.Join(bundleDir, "aplog_MPANIC_20260102030405"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(bundleDir, "aplog.1_MPANIC_20260102030405"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopyBasebandSuffix(t *testing.T) {
	s, cfg, _, bundleDir := newTestSnapshotter(t)
	require.NoError(t, os.WriteFile(cfg.BplogFile, []byte("modemlog"), 0o644))

	s.Copy("MRESET", bundleDir, "20260102030405", BpLog)

	_, err := os.Stat(filepath.Join(bundleDir, "bplog_MRESET_20260102030405.istp"))
	require.NoError(t, err)
}

func TestCopyMissingLogIsQuiet(t *testing.T) {
	s, _, _, bundleDir := newTestSnapshotter(t)
	s.Copy("ANR", bundleDir, "20260102030405", ApLog)
	entries, err := os.ReadDir(bundleDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFlushBoot(t *testing.T) {
	s, cfg, runner, bundleDir := newTestSnapshotter(t)

	s.FlushBoot("WDT", bundleDir, "20260102030405")

	require.Len(t, runner.cmdlines, 1)
	require.Equal(t, cfg.LogcatCmd, runner.cmdlines[0])
	require.Equal(t, []string{filepath.Join(bundleDir, "aplog_boot_WDT_20260102030405")}, runner.args[0])
}
