// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/log-capture/crashlogd/internal/props"
)

func testIdentityConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := Default()
	cfg.UUIDProc = filepath.Join(dir, "emmc0_id_entry")
	cfg.UUIDFile = filepath.Join(dir, "uuid.txt")
	cfg.BuildIDFile = filepath.Join(dir, "buildid.txt")
	cfg.BuildPropFile = filepath.Join(dir, "build.prop")
	return cfg
}

func TestLoadIdentityFromProps(t *testing.T) {
	cfg := testIdentityConfig(t)
	st := &props.MapStore{}
	require.NoError(t, st.Set(props.PropBuild, "BUILD7"))
	require.NoError(t, st.Set(props.PropBoard, "medfield"))
	require.NoError(t, os.WriteFile(cfg.UUIDProc, []byte("cafe0123\n"), 0o644))

	id := LoadIdentity(cfg, st)
	require.Equal(t, "BUILD7", id.BuildVersion)
	require.Equal(t, "medfield", id.BoardVersion)
	require.Equal(t, "cafe0123", id.UUID)

	// The UUID is persisted for the next boot.
	bs, err := os.ReadFile(cfg.UUIDFile)
	require.NoError(t, err)
	require.Equal(t, "cafe0123", string(bs))
}

func TestLoadIdentityBuildPropFallback(t *testing.T) {
	cfg := testIdentityConfig(t)
	st := &props.MapStore{}
	content := "# begin\nro.product.model=toaster\nro.build.version.incremental=INC9\n"
	require.NoError(t, os.WriteFile(cfg.BuildPropFile, []byte(content), 0o644))

	id := LoadIdentity(cfg, st)
	require.Equal(t, "INC9", id.BuildVersion)
	require.Equal(t, "toaster", id.BoardVersion)
}

func TestLoadIdentityUUIDSentinel(t *testing.T) {
	cfg := testIdentityConfig(t)
	id := LoadIdentity(cfg, &props.MapStore{})
	require.Equal(t, DefaultUUID, id.UUID)

	bs, err := os.ReadFile(cfg.UUIDFile)
	require.NoError(t, err)
	require.Equal(t, DefaultUUID, string(bs))
}

func TestSwupdated(t *testing.T) {
	cfg := testIdentityConfig(t)

	// Blank device: no record yet.
	require.True(t, Swupdated(cfg, "B1"))
	// Same build again: no update.
	require.False(t, Swupdated(cfg, "B1"))
	// Changed build: update, record rewritten.
	require.True(t, Swupdated(cfg, "B2"))
	bs, err := os.ReadFile(cfg.BuildIDFile)
	require.NoError(t, err)
	require.Equal(t, "B2", string(bs))
}
