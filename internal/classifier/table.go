// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package classifier

import (
	"github.com/syncthing/notify"

	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/events"
)

// A WatchEntry ties a watched path to a canonical event name and the
// filename substring that triggers it. The table is ordered; within one
// directory the first matching entry wins, and the entries watching the
// same directory share the union of their masks.
type WatchEntry struct {
	Dir  string
	Mask notify.Event
	Name string
	Cmp  string
	File bool // the watchpoint is a single file
}

const (
	selfGone  = notify.InDeleteSelf | notify.InMoveSelf
	onClosed  = notify.InCloseWrite | selfGone
	onMovedTo = notify.InMovedTo | selfGone
)

// Table returns the watch table. The filename substrings are load-bearing
// for classification and must not be touched. With ModemOnly set only the
// leading modem entries survive.
func Table(cfg *config.Config) []WatchEntry {
	modemDir := cfg.ModemCrashDir()
	table := []WatchEntry{
		{Dir: cfg.UptimeFile, Mask: notify.InCloseWrite, Name: events.ClassCurrentUptime, File: true},
		{Dir: modemDir, Mask: onClosed, Name: events.TypeModemCrash, Cmp: "mpanic.txt"},
		{Dir: modemDir, Mask: onClosed, Name: events.TypeAPIMR, Cmp: "apimr.txt"},
		{Dir: modemDir, Mask: onClosed, Name: events.TypeMReset, Cmp: "mreset.txt"},
		{Dir: cfg.DropboxDir, Mask: onMovedTo, Name: events.TypeSysServerWDT, Cmp: "system_server_watchdog"},
		{Dir: cfg.DropboxDir, Mask: onMovedTo, Name: events.TypeANR, Cmp: "anr"},
		{Dir: cfg.TombstonesDir, Mask: onClosed, Name: events.TypeTombstone, Cmp: "tombstone"},
		{Dir: cfg.DropboxDir, Mask: onMovedTo, Name: events.TypeJavaCrash, Cmp: "crash"},
		{Dir: cfg.CoreDir, Mask: onClosed, Name: events.TypeAPCoredump, Cmp: ".core"},
		{Dir: cfg.DropboxDir, Mask: notify.InMovedTo | onClosed, Name: events.TypeLostDropbox, Cmp: ".lost"},
		{Dir: cfg.StatsTrigDir, Mask: onClosed, Name: events.ClassStatsTrigger, Cmp: "_trigger"},
		{Dir: cfg.AplogsTrigDir, Mask: onClosed, Name: events.ClassAplogTrigger, Cmp: "_trigger"},
	}
	if cfg.ModemOnly {
		table = table[:4]
	}
	return table
}
