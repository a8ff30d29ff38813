// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package classifier

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/log-capture/crashlogd/internal/bundle"
	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/events"
	"github.com/log-capture/crashlogd/internal/history"
	"github.com/log-capture/crashlogd/internal/props"
	"github.com/log-capture/crashlogd/internal/slogutil"
	"github.com/log-capture/crashlogd/internal/snapshot"
	"github.com/log-capture/crashlogd/internal/sysutil"
)

// stamp returns the file-name and record timestamps for one event, taken
// at the same instant.
func stamp() (ts, date string) {
	now := time.Now()
	return now.Format(events.FileTimeFormat), now.Format(events.RecordTimeFormat)
}

// modemReset handles apimr.txt and mreset.txt drops: copy the trigger,
// snapshot both log channels, commit.
func (s *Service) modemReset(e *WatchEntry, name string) {
	ts, date := stamp()
	key := s.keyer.Key(events.ClassCrash, e.Name)

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: e.Name, Key: key, Date: date})
		s.notifyReport()
		return
	}

	src := filepath.Join(e.Dir, name)
	if info, err := os.Stat(src); err == nil && info.Size() != 0 {
		if err := sysutil.CopyFile(src, filepath.Join(dir, name), config.FileSizeMax); err != nil {
			s.log.Warn("Cannot copy modem reset trigger", slogutil.Error(err))
		}
	}

	s.settle()
	s.snap.Copy(e.Name, dir, ts, snapshot.ApLog)
	s.snap.Copy(e.Name, dir, ts, snapshot.BpLog)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: e.Name, Bundle: dir + "/", Key: key, Date: date})
	s.notifyReport()
}

// modemPanic handles mpanic.txt: sweep the modem coredump archives into
// the bundle, copy the panic file, snapshot both log channels.
func (s *Service) modemPanic(e *WatchEntry, name string) {
	ts, date := stamp()
	key := s.keyer.Key(events.ClassCrash, e.Name)

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: e.Name, Key: key, Date: date})
		s.notifyReport()
		return
	}

	if err := sysutil.CopyDirMatching(e.Dir, dir, "cd", ".tar.gz"); err != nil {
		s.log.Warn("Cannot back up modem coredump", slogutil.Error(err))
	}
	src := filepath.Join(e.Dir, name)
	if err := sysutil.CopyFile(src, filepath.Join(dir, name), 0); err != nil {
		s.log.Warn("Cannot copy modem panic trigger", slogutil.Error(err))
	}

	s.settle()
	s.snap.Copy(e.Name, dir, ts, snapshot.ApLog)
	s.snap.Copy(e.Name, dir, ts, snapshot.BpLog)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: e.Name, Bundle: dir + "/", Key: key, Date: date})
	s.notifyReport()
}

// lostDropbox handles the .lost markers the dropbox daemon leaves when it
// drops entries on the floor. The lost entry kind is recovered from the
// marker name.
func (s *Service) lostDropbox(name string) {
	var lost string
	switch {
	case strings.Contains(name, "anr"):
		lost = events.TypeANR
	case strings.Contains(name, "crash"):
		lost = events.TypeJavaCrash
	default:
		return
	}
	subtype := events.TypeLostDropbox + "_" + lost

	ts, date := stamp()
	key := s.keyer.Key(events.ClassCrash, lost)

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: lost, Subtype: subtype, Key: key, Date: date})
		s.notifyReport()
		return
	}

	s.settle()
	s.snap.Copy(lost, dir, ts, snapshot.ApLog)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: lost, Subtype: subtype, Bundle: dir + "/", Key: key, Date: date})
	s.notifyReport()
}

// aplogTrigger collects rotated aplog generations into one bundle per
// packet, then removes the trigger.
func (s *Service) aplogTrigger(e *WatchEntry, name string) {
	nbPacket := propInt(s.st, props.PropAplogNbPacket, 1)
	aplogDepth := propInt(s.st, props.PropAplogDepth, 3)

	for j := 0; j < nbPacket; j++ {
		dir := ""
		logPresent := true
		k := 0
		for ; k < aplogDepth; k++ {
			n := j*aplogDepth + k
			src := s.cfg.AplogFile
			if n > 0 {
				src = s.cfg.AplogFile + "." + strconv.Itoa(n)
			}
			if _, err := os.Stat(src); err != nil {
				logPresent = false
				break
			}
			if k == 0 {
				var err error
				_, dir, err = s.alloc.Allocate(bundle.ModeAplogs)
				if err != nil {
					// No ledger record for this packet; the
					// remaining generations may still fit the
					// next one.
					break
				}
			}
			dst := filepath.Join(dir, "aplog")
			if n > 0 {
				dst = filepath.Join(dir, "aplog."+strconv.Itoa(n))
			}
			if err := sysutil.CopyFile(src, dst, 0); err != nil {
				s.log.Warn("Cannot copy aplog generation", slogutil.FilePath(src), slogutil.Error(err))
			}
		}

		if k != 0 && dir != "" {
			_, date := stamp()
			key := s.keyer.Key(events.ClassAplog, events.ClassAplogTrigger)
			s.hist.Append(history.Entry{Class: events.ClassAplog, Type: events.ClassAplogTrigger, Bundle: dir + "/", Key: key, Date: date})
			s.notifyReport()
			s.restartProfile("2")
		}
		if !logPresent {
			break
		}
	}

	os.Remove(filepath.Join(e.Dir, name))
}

// statsTrigger pairs a stats trigger with its sibling data file, moves
// both into a fresh stats bundle and commits. The record type is the
// trigger name with "trigger" replaced by "data".
func (s *Service) statsTrigger(e *WatchEntry, name string) {
	dataName := name
	if i := strings.Index(dataName, "trigger"); i >= 0 {
		dataName = dataName[:i] + "data"
	}

	_, date := stamp()

	_, dir, err := s.alloc.Allocate(bundle.ModeStats)
	if err != nil {
		key := s.keyer.Key(events.ClassStats, dataName)
		s.hist.Append(history.Entry{Class: events.ClassStats, Type: dataName, Key: key, Date: date})
		s.notifyReport()
		return
	}

	moveIn := func(fn string) {
		src := filepath.Join(e.Dir, fn)
		if err := sysutil.CopyFile(src, filepath.Join(dir, fn), 0); err != nil {
			s.log.Warn("Cannot copy stats file", slogutil.FilePath(src), slogutil.Error(err))
			return
		}
		os.Remove(src)
	}
	moveIn(dataName)
	moveIn(name)

	key := s.keyer.Key(events.ClassStats, dataName)
	s.hist.Append(history.Entry{Class: events.ClassStats, Type: dataName, Bundle: dir + "/", Key: key, Date: date})
	s.notifyReport()
}

// anrOrWatchdog handles ANR and system server watchdog drops, including
// the user stack trace extraction.
func (s *Service) anrOrWatchdog(e *WatchEntry, name string) {
	ts, date := stamp()
	key := s.keyer.Key(events.ClassCrash, e.Name)

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: e.Name, Key: key, Date: date})
		s.notifyReport()
		s.restartProfile("1")
		return
	}

	src := filepath.Join(e.Dir, name)
	if _, err := os.Stat(src); err != nil {
		return
	}
	dst := filepath.Join(dir, name)
	if err := sysutil.CopyFile(src, dst, config.FileSizeMax); err != nil {
		s.log.Warn("Cannot copy dropbox entry", slogutil.Error(err))
	}

	s.settle()
	s.snap.Copy(e.Name, dir, ts, snapshot.ApLog)
	s.backtrace(dst, dir)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: e.Name, Bundle: dir + "/", Key: key, Date: date})
	s.notifyReport()
	s.restartProfile("1")
}

// generic handles the remaining crash producers: tombstones, java
// crashes, core dumps.
func (s *Service) generic(e *WatchEntry, name string) {
	ts, date := stamp()
	key := s.keyer.Key(events.ClassCrash, e.Name)

	_, dir, err := s.alloc.Allocate(bundle.ModeCrash)
	if err != nil {
		s.hist.Append(history.Entry{Class: events.ClassCrash, Type: e.Name, Key: key, Date: date})
		s.notifyReport()
		return
	}

	src := filepath.Join(e.Dir, name)
	if _, err := os.Stat(src); err != nil {
		return
	}
	if strings.Contains(name, ".core") {
		// Core files are large and live in a watched directory; back
		// them up and remove the original.
		if err := sysutil.CopyFile(src, filepath.Join(dir, name), 0); err != nil {
			s.log.Warn("Cannot back up core dump", slogutil.Error(err))
		} else {
			os.Remove(src)
		}
	} else {
		dst := filepath.Join(dir, name)
		if err := sysutil.CopyFile(src, dst, config.FileSizeMax); err != nil {
			s.log.Warn("Cannot copy crash artifact", slogutil.Error(err))
		}
		if strings.Contains(name, "anr") || strings.Contains(name, "system_server_watchdog") {
			s.backtrace(dst, dir)
			s.restartProfile("1")
		}
	}

	s.settle()
	s.snap.Copy(e.Name, dir, ts, snapshot.ApLog)
	s.hist.Append(history.Entry{Class: events.ClassCrash, Type: e.Name, Bundle: dir + "/", Key: key, Date: date})
	s.notifyReport()
}

func propInt(st props.Store, key string, def int) int {
	v, err := strconv.Atoi(st.Get(key, strconv.Itoa(def)))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
