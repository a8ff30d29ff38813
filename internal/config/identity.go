// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"bufio"
	"log/slog"
	"os"
	"strings"

	"github.com/moby/sys/atomicwriter"

	"github.com/log-capture/crashlogd/internal/props"
	"github.com/log-capture/crashlogd/internal/slogutil"
)

// DefaultUUID is recorded when the hardware id entry cannot be read.
const DefaultUUID = "Medfield"

// Identity is the read-mostly device identity established once at startup.
type Identity struct {
	BuildVersion string
	BoardVersion string
	UUID         string
}

// LoadIdentity reads the build and board versions from the property store,
// falling back to scanning the build.prop file, and resolves the device
// UUID, persisting it beside the logs when missing or changed.
func LoadIdentity(cfg *Config, st props.Store) Identity {
	id := Identity{
		BuildVersion: st.Get(props.PropBuild, ""),
		BoardVersion: st.Get(props.PropBoard, ""),
	}
	if id.BuildVersion == "" {
		id.BuildVersion = buildPropValue(cfg.BuildPropFile, props.PropBuild)
	}
	if id.BoardVersion == "" {
		id.BoardVersion = buildPropValue(cfg.BuildPropFile, props.PropBoard)
	}

	id.UUID = readFirstToken(cfg.UUIDProc)
	if id.UUID == "" {
		id.UUID = DefaultUUID
		writeIdentityFile(cfg.UUIDFile, id.UUID)
		return id
	}
	if prev := readFirstToken(cfg.UUIDFile); prev != id.UUID {
		writeIdentityFile(cfg.UUIDFile, id.UUID)
	}
	return id
}

// Swupdated compares the build version against the persisted one and
// updates the record. It reports true when the build changed, including on
// a blank device with no record at all.
func Swupdated(cfg *Config, buildVersion string) bool {
	prev := readFirstToken(cfg.BuildIDFile)
	if prev == buildVersion {
		return false
	}
	writeIdentityFile(cfg.BuildIDFile, buildVersion)
	if prev == "" {
		slog.Info("Reset state after blank device update", slog.String("build", buildVersion), slog.String("pkg", "config"))
	} else {
		slog.Info("Reset state after build update", slog.String("build", buildVersion), slog.String("pkg", "config"))
	}
	return true
}

func writeIdentityFile(path, value string) {
	if err := atomicwriter.WriteFile(path, []byte(value), 0o644); err != nil {
		slog.Warn("Cannot persist identity file", slogutil.FilePath(path), slogutil.Error(err), slog.String("pkg", "config"))
	}
}

// readFirstToken returns the first whitespace-delimited token of the file,
// or empty.
func readFirstToken(path string) string {
	bs, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(bs))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// buildPropValue scans a build.prop style file for "<field>=value".
func buildPropValue(path, field string) string {
	fd, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer fd.Close()
	sc := bufio.NewScanner(fd)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if val, ok := strings.CutPrefix(line, field+"="); ok {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
