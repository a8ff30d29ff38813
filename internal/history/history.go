// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package history maintains the append-only event ledger. The file starts
// with a fixed two-line header whose first line carries the current uptime
// and is rewritten in place; the body is a sequence of fixed-width records
// that downstream parsers rely on byte for byte.
package history

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/events"
	"github.com/log-capture/crashlogd/internal/props"
	"github.com/log-capture/crashlogd/internal/slogutil"
	"github.com/log-capture/crashlogd/internal/sysutil"
)

const columnHeader = "#EVENT  ID                    DATE                 TYPE\n"

// sdcard paths are rewritten to the user-visible mount in ledger records.
const (
	sdcardPrefix  = "/mnt/sdcard"
	sdcardVisible = "/storage/sdcard0"
	emmcLogsPart  = "/data/logs"
)

type History struct {
	cfg    *config.Config
	st     props.Store
	runner sysutil.Runner
	id     config.Identity
	uptime func() (time.Duration, error)
	log    *slog.Logger
}

// An Entry is one ledger record. Bundle, Subtype and Extra are optional;
// an empty Type is only meaningful together with Extra (the periodic
// uptime record).
type Entry struct {
	Class   string
	Type    string
	Subtype string
	Bundle  string
	Extra   string
	Key     string
	Date    string
}

func New(cfg *config.Config, st props.Store, runner sysutil.Runner, id config.Identity) *History {
	return &History{
		cfg:    cfg,
		st:     st,
		runner: runner,
		id:     id,
		uptime: sysutil.Uptime,
		log:    slog.With("pkg", "history"),
	}
}

// Append writes one record, creating the ledger with its header when
// missing, spawns the crash analyzer for CRASH records that carry a
// bundle, and trims the file when it has grown past its bound. The append
// is the commit point of an event; a failure loses the record but never
// the daemon.
func (h *History) Append(e Entry) error {
	if err := h.ensureExists(); err != nil {
		h.log.Warn("Cannot create ledger", slogutil.Error(err))
		return err
	}

	var line string
	switch {
	case e.Bundle != "":
		line = fmt.Sprintf("%-8s%-22s%-20s%s %s\n", e.Class, e.Key, e.Date, e.Type, normalizeBundlePath(e.Bundle))
	case e.Type != "" && e.Extra != "":
		line = fmt.Sprintf("%-8s%-22s%-20s%-16s %s\n", e.Class, e.Key, e.Date, e.Type, e.Extra)
	case e.Type != "":
		line = fmt.Sprintf("%-8s%-22s%-20s%-16s\n", e.Class, e.Key, e.Date, e.Type)
	default:
		line = fmt.Sprintf("%-8s%-22s%-20s%s\n", e.Class, e.Key, e.Date, e.Extra)
	}

	fd, err := os.OpenFile(h.cfg.HistoryFile, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		h.log.Warn("Cannot append to ledger", slogutil.Error(err))
		return err
	}
	_, werr := fd.WriteString(line)
	if cerr := fd.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		h.log.Warn("Cannot append to ledger", slogutil.Error(werr))
		return werr
	}

	metricRecordsTotal.WithLabelValues(e.Class, e.Type).Inc()
	h.log.Info("Recorded event", slog.String("class", e.Class), slog.String("type", e.Type), slog.String("key", e.Key))

	if e.Class == events.ClassCrash && e.Bundle != "" {
		h.analyze(e)
	}

	return h.Truncate()
}

// analyze hands a committed crash to the external analyzer.
func (h *History) analyze(e Entry) {
	subtype := e.Subtype
	if subtype == "" {
		subtype = e.Type
	}
	var uptimeStr string
	if up, err := h.uptime(); err == nil {
		uptimeStr = sysutil.FormatUptime(up)
	}
	err := h.runner.Run(h.cfg.AnalyzerCmd,
		subtype,
		normalizeBundlePath(e.Bundle),
		e.Key,
		uptimeStr,
		h.footprint(),
		h.id.BoardVersion,
		e.Date,
		h.st.Get(props.PropIMEI, ""),
	)
	if err != nil {
		h.log.Warn("Crash analyzer failed", slogutil.Error(err))
	}
}

// footprint is the comma-separated build and firmware version tuple
// stamped on analyzed crashes.
func (h *History) footprint() string {
	get := func(key string) string { return h.st.Get(key, "") }
	return strings.Join([]string{
		h.id.BuildVersion,
		get(props.PropFingerprint),
		get(props.PropKernel),
		get(props.PropUser) + "@" + get(props.PropHost),
		get(props.PropModem),
		get(props.PropIfwi),
		get(props.PropIafw),
		get(props.PropScufw),
		get(props.PropPunit),
		get(props.PropValhooks),
	}, ",")
}

// normalizeBundlePath rewrites removable-media paths to their user-visible
// mount and strips the trailing file name, recording only the directory.
func normalizeBundlePath(path string) string {
	if strings.Contains(path, sdcardPrefix) {
		if i := strings.Index(path, emmcLogsPart); i >= 0 {
			path = sdcardVisible + path[i:]
		}
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}

// ensureExists creates the ledger with its two header lines when missing.
func (h *History) ensureExists() error {
	if _, err := os.Stat(h.cfg.HistoryFile); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	var uptimeStr string
	if up, err := h.uptime(); err == nil {
		uptimeStr = sysutil.FormatUptime(up)
	}
	return h.writeHeader(uptimeStr)
}

func (h *History) writeHeader(uptimeStr string) error {
	content := fmt.Sprintf("#V1.0 %-16s%-24s\n%s", events.ClassCurrentUptime, uptimeStr, columnHeader)
	if err := os.WriteFile(h.cfg.HistoryFile, []byte(content), 0o644); err != nil {
		return err
	}
	sysutil.ChownLog(h.cfg.HistoryFile)
	return nil
}

// Reset replaces the ledger with a fresh header and recreates the uptime
// sentinel. Used after software updates.
func (h *History) Reset() error {
	if err := h.writeHeader("0000:00:00"); err != nil {
		return err
	}
	return sysutil.TouchFile(h.cfg.UptimeFile)
}

// RewriteCurrentUptime overwrites the uptime in the first header line in
// place, without truncating the file. The write is exactly as wide as the
// header's fixed columns; the rest of the file is untouched.
func (h *History) RewriteCurrentUptime(uptimeStr string) error {
	fd, err := os.OpenFile(h.cfg.HistoryFile, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("#V1.0 %-16s%-24s", events.ClassCurrentUptime, uptimeStr)
	_, werr := fd.WriteAt([]byte(header), 0)
	if cerr := fd.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

// SeedPrevious recovers the previous boot's final uptime from the header,
// zeroes the header uptime and appends the boot uptime record with a
// zeroed key column. It returns the recovered uptime, or empty when the
// ledger has no valid header.
func (h *History) SeedPrevious() (string, error) {
	bs, err := os.ReadFile(h.cfg.HistoryFile)
	if err != nil {
		return "", err
	}
	line, _, _ := bytes.Cut(bs, []byte("\n"))
	fields := strings.Fields(string(line))
	// Expected: "#V1.0 CURRENTUPTIME <uptime>"
	if len(fields) < 3 || fields[1] != events.ClassCurrentUptime {
		return "", nil
	}
	lastUptime := fields[2]

	if err := h.RewriteCurrentUptime("0000:00:00"); err != nil {
		return lastUptime, err
	}

	date := time.Now().Format(events.RecordTimeFormat)
	record := fmt.Sprintf("%-8s%s  %-20s%s\n", events.ClassUptime, events.ZeroKey, date, lastUptime)
	fd, err := os.OpenFile(h.cfg.HistoryFile, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return lastUptime, err
	}
	_, werr := fd.WriteString(record)
	if cerr := fd.Close(); werr == nil {
		werr = cerr
	}
	return lastUptime, werr
}

// Truncate bounds the ledger: when the line count reaches MaxRecords plus
// the protected prefix, the middle is dropped, keeping the first
// SavedLines body lines and the newest MaxRecords/2 records. The rewrite
// is whole-file.
func (h *History) Truncate() error {
	bs, err := os.ReadFile(h.cfg.HistoryFile)
	if err != nil {
		return err
	}
	// The protected prefix is the two header lines plus the first
	// SavedLines body lines; the tail keeps the newest MaxRecords/2
	// records and the middle is dropped.
	const headerLines = 2
	count := bytes.Count(bs, []byte("\n"))
	if count < headerLines+config.MaxRecords+config.SavedLines {
		return nil
	}

	drop := count - config.MaxRecords/2
	var prefixEnd, tailStart, seen int
	for i, b := range bs {
		if b != '\n' {
			continue
		}
		seen++
		if seen == headerLines+config.SavedLines {
			prefixEnd = i + 1
		}
		if seen == drop {
			tailStart = i + 1
			break
		}
	}
	if tailStart <= prefixEnd {
		return nil
	}

	out := make([]byte, 0, prefixEnd+len(bs)-tailStart)
	out = append(out, bs[:prefixEnd]...)
	out = append(out, bs[tailStart:]...)
	if err := os.WriteFile(h.cfg.HistoryFile, out, 0o644); err != nil {
		return err
	}
	metricTruncationsTotal.Inc()
	return nil
}
