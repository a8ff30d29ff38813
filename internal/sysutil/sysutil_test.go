// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package sysutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCopyFileWhole(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	content := bytes.Repeat([]byte("0123456789"), 1000)
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst, 0); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("copy differs: %d bytes vs %d", len(got), len(content))
	}
}

func TestCopyFileTail(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	content := make([]byte, 10000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst, 4000); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4000 {
		t.Fatalf("copied %d bytes, expected 4000", len(got))
	}
	if !bytes.Equal(got, content[6000:]) {
		t.Error("tail copy did not keep the final bytes")
	}
}

func TestCopyFileTailLargerThanFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFile(src, dst, 1<<20); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "short" {
		t.Errorf("got %q", got)
	}
}

func TestCopyDirMatching(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	for _, name := range []string{"cd001.tar.gz", "cd002.tar.gz", "other.txt", "cdnotatar"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := CopyDirMatching(src, dst, "cd", ".tar.gz"); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"cd001.tar.gz", "cd002.tar.gz"} {
		if _, err := os.Stat(filepath.Join(dst, name)); err != nil {
			t.Errorf("%s not copied: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(src, name)); err == nil {
			t.Errorf("%s not removed from source", name)
		}
	}
	if _, err := os.Stat(filepath.Join(src, "other.txt")); err != nil {
		t.Error("unrelated file was touched")
	}
	if _, err := os.Stat(filepath.Join(dst, "cdnotatar")); err == nil {
		t.Error("partial match was copied")
	}
}

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0000:00:00"},
		{90 * time.Second, "0000:01:30"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "0026:03:04"},
		{10000 * time.Hour, "10000:00:00"},
	}
	for _, c := range cases {
		if got := FormatUptime(c.in); got != c.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDecodeUID(t *testing.T) {
	if id := DecodeUID("log"); id != 1007 {
		t.Errorf("log = %d", id)
	}
	if id := DecodeUID("1234"); id != 1234 {
		t.Errorf("1234 = %d", id)
	}
	if id := DecodeUID("nobodyatall"); id != -1 {
		t.Errorf("unknown = %d", id)
	}
	if id := DecodeUID(""); id != -1 {
		t.Errorf("empty = %d", id)
	}
}

func TestUptimeMonotonicEnough(t *testing.T) {
	up, err := Uptime()
	if err != nil {
		t.Skipf("uptime unavailable: %v", err)
	}
	if up <= 0 {
		t.Errorf("uptime %v not positive", up)
	}
}
