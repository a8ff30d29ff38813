// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package sysutil

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const copyBufferSize = 4 * 1024

// Well-known platform uids/gids for ownership of collected logs.
var platformIDs = map[string]int{
	"root":   0,
	"system": 1000,
	"log":    1007,
}

// removableRoot marks destinations that never get ownership fixed up, the
// removable media filesystem not supporting it.
const removableRoot = "/mnt/sdcard"

// CopyFile copies src to dst, creating dst with mode 0660. When maxTail is
// positive and the source is larger, only the final maxTail bytes are
// copied. The destination is handed to root:log unless it lives on
// removable media; ownership errors are ignored (the daemon does not run
// as root in tests).
func CopyFile(src, dst string, maxTail int64) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o660)
	if err != nil {
		return err
	}

	length := info.Size()
	if maxTail > 0 && length > maxTail {
		if _, err := in.Seek(length-maxTail, io.SeekStart); err != nil {
			out.Close()
			return err
		}
		length = maxTail
	}

	buf := make([]byte, copyBufferSize)
	_, err = io.CopyBuffer(out, io.LimitReader(in, length), buf)
	if cerr := out.Close(); err == nil {
		err = cerr
	}

	ChownLog(dst)
	return err
}

// ChownLog hands the path to root:log, best effort.
func ChownLog(path string) {
	if strings.HasPrefix(path, removableRoot) {
		return
	}
	_ = os.Chown(path, platformIDs["root"], platformIDs["log"])
}

// DecodeUID resolves a platform account name or numeric string to an id,
// or -1.
func DecodeUID(s string) int {
	if s == "" {
		return -1
	}
	if id, ok := platformIDs[s]; ok {
		return id
	}
	if id, err := strconv.Atoi(s); err == nil {
		return id
	}
	return -1
}

// CopyDirMatching copies every direct child of srcDir whose name contains
// both substrings into dstDir, removing the source on success. Used to
// sweep modem coredump archives into a bundle.
func CopyDirMatching(srcDir, dstDir, sub1, sub2 string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dstDir); err != nil {
		return err
	}
	for _, ent := range entries {
		name := ent.Name()
		if !strings.Contains(name, sub1) || !strings.Contains(name, sub2) {
			continue
		}
		src := filepath.Join(srcDir, name)
		if err := CopyFile(src, filepath.Join(dstDir, name), 0); err != nil {
			continue
		}
		os.Remove(src)
	}
	return nil
}

// WriteFileValue writes the value into path, creating it 0622 when
// missing. Used for the panic acknowledgment proc write.
func WriteFileValue(path, value string) error {
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o622)
	if err != nil {
		return err
	}
	_, werr := fd.WriteString(value)
	if cerr := fd.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

// TouchFile creates or opens the path with mode 0666 and closes it again,
// producing a close-write notification for watchers.
func TouchFile(path string) error {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return err
	}
	return fd.Close()
}
