// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package classifier turns raw filesystem-watch notifications into typed
// crash events. One long-running loop reads notifications, picks the
// matching watch entry and runs the event through the sink path: bundle
// allocation, artifact copy, log snapshot, ledger append, notification.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/syncthing/notify"
	"github.com/thejerf/suture/v4"

	"github.com/log-capture/crashlogd/internal/bundle"
	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/events"
	"github.com/log-capture/crashlogd/internal/history"
	"github.com/log-capture/crashlogd/internal/props"
	"github.com/log-capture/crashlogd/internal/slogutil"
	"github.com/log-capture/crashlogd/internal/snapshot"
	"github.com/log-capture/crashlogd/internal/sysutil"
)

// notifyBufferSize absorbs notification bursts while one event is being
// serviced.
const notifyBufferSize = 64

type Service struct {
	cfg    *config.Config
	st     props.Store
	alloc  *bundle.Allocator
	hist   *history.History
	snap   *snapshot.Snapshotter
	keyer  *events.Keyer
	runner sysutil.Runner
	table  []WatchEntry
	log    *slog.Logger

	// loopUptimeEvent counts the 12 hour periods already reported; the
	// next periodic uptime event fires when the uptime crosses into the
	// period with this index.
	loopUptimeEvent int
}

func New(cfg *config.Config, st props.Store, alloc *bundle.Allocator, hist *history.History, snap *snapshot.Snapshotter, keyer *events.Keyer, runner sysutil.Runner) *Service {
	return &Service{
		cfg:             cfg,
		st:              st,
		alloc:           alloc,
		hist:            hist,
		snap:            snap,
		keyer:           keyer,
		runner:          runner,
		table:           Table(cfg),
		log:             slog.With("pkg", "classifier"),
		loopUptimeEvent: 1,
	}
}

func (s *Service) String() string { return "classifier" }

// Serve installs the watches and blocks on the notification channel until
// the context ends. Failure to install a watch is fatal; everything after
// that is logged and survived.
func (s *Service) Serve(ctx context.Context) error {
	ch := make(chan notify.EventInfo, notifyBufferSize)
	if err := s.installWatches(ch); err != nil {
		// Unable to watch anything is the one unrecoverable failure;
		// take the whole process down rather than flap.
		return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, err)
	}
	defer notify.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ei := <-ch:
			s.handle(ch, ei)
		}
	}
}

// installWatches sets up one watchpoint per distinct path with the union
// of the entry masks.
func (s *Service) installWatches(ch chan notify.EventInfo) error {
	masks := make(map[string]notify.Event)
	var order []string
	for _, e := range s.table {
		if _, ok := masks[e.Dir]; !ok {
			order = append(order, e.Dir)
		}
		masks[e.Dir] |= e.Mask
		if e.File {
			_ = sysutil.TouchFile(e.Dir)
		} else {
			_ = os.MkdirAll(e.Dir, 0o777)
		}
	}
	for _, path := range order {
		if err := notify.Watch(path, ch, masks[path]); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		s.log.Info("Watching", slogutil.FilePath(path))
	}
	return nil
}

func (s *Service) handle(ch chan notify.EventInfo, ei notify.EventInfo) {
	path := ei.Path()
	ev := ei.Event()

	if ev&selfGone != 0 {
		s.rewatch(ch, path)
		return
	}

	// The uptime sentinel is the only watched file; everything else
	// arrives as a child of a watched directory.
	for _, e := range s.table {
		if e.File && e.Dir == path {
			s.uptimeTick()
			return
		}
	}

	s.classify(filepath.Dir(path), filepath.Base(path))
}

// classify finds the watch entries for the directory in table order and
// dispatches the filename on the first entry whose pattern chain accepts
// it.
func (s *Service) classify(dir, name string) {
	for i := range s.table {
		e := &s.table[i]
		if e.File || e.Dir != dir {
			continue
		}
		if s.dispatch(e, name) {
			return
		}
	}
}

// rewatch recreates a watched directory that was deleted or moved away and
// installs the watch again.
func (s *Service) rewatch(ch chan notify.EventInfo, path string) {
	var mask notify.Event
	file := false
	for _, e := range s.table {
		if e.Dir == path {
			mask |= e.Mask
			file = file || e.File
		}
	}
	if mask == 0 {
		return
	}
	if file {
		_ = sysutil.TouchFile(path)
	} else {
		_ = os.MkdirAll(path, 0o777)
	}
	if err := notify.Watch(path, ch, mask); err != nil {
		s.log.Error("Cannot re-install watch", slogutil.FilePath(path), slogutil.Error(err))
		return
	}
	s.log.Warn("Watched path was deleted or moved, watching it again", slogutil.FilePath(path))
}

// dispatch runs the filename through the entry's pattern chain; first
// match wins. It reports whether the notification was consumed.
func (s *Service) dispatch(e *WatchEntry, name string) bool {
	switch {
	case strings.Contains(name, e.Cmp) && (strings.Contains(name, "apimr.txt") || strings.Contains(name, "mreset.txt")):
		s.modemReset(e, name)
	case strings.Contains(name, e.Cmp) && strings.Contains(name, "mpanic.txt"):
		s.modemPanic(e, name)
	case strings.Contains(name, e.Cmp) && strings.Contains(name, ".lost"):
		s.lostDropbox(name)
	case e.Name == events.ClassAplogTrigger && strings.Contains(name, "aplog_trigger"):
		s.aplogTrigger(e, name)
	case e.Name == events.ClassStatsTrigger && strings.Contains(name, "trigger"):
		s.statsTrigger(e, name)
	case strings.Contains(name, e.Cmp) && (strings.Contains(name, "anr") || strings.Contains(name, "system_server_watchdog")):
		s.anrOrWatchdog(e, name)
	case strings.Contains(name, e.Cmp):
		s.generic(e, name)
	default:
		return false
	}
	return true
}

// uptimeTick rewrites the current-uptime header and, every twelfth hour of
// uptime, commits a periodic UPTIME event.
func (s *Service) uptimeTick() {
	up, err := sysutil.Uptime()
	if err != nil {
		s.log.Warn("Cannot read uptime", slogutil.Error(err))
		return
	}
	uptimeStr := sysutil.FormatUptime(up)
	if err := s.hist.RewriteCurrentUptime(uptimeStr); err != nil {
		s.log.Warn("Cannot rewrite current uptime", slogutil.Error(err))
	}

	hours := int(up / time.Hour)
	if hours/config.UptimeHourFrequency < s.loopUptimeEvent {
		return
	}
	s.hist.Append(history.Entry{
		Class: events.ClassUptime,
		Extra: uptimeStr,
		Key:   s.keyer.Key(events.ClassUptime, ""),
		Date:  time.Now().Format(events.RecordTimeFormat),
	})
	s.loopUptimeEvent = hours/config.UptimeHourFrequency + 1
	s.notifyReport()
	s.restartProfile("2")
}

func (s *Service) notifyReport() {
	if err := s.runner.Run(s.cfg.NotifierCmd); err != nil {
		s.log.Info("Crash report notification failed", slogutil.Error(err))
	}
}

// restartProfile kicks the profiling service matching the enabled profile,
// if any.
func (s *Service) restartProfile(which string) {
	if strings.HasPrefix(s.st.Get(props.PropProfile, ""), which) {
		_ = s.st.Set(props.PropCtlStart, "profile"+which+"_rest")
	}
}

// settle gives producers time to finish writing before logs are
// snapshotted.
func (s *Service) settle() {
	time.Sleep(s.cfg.SettleDelay)
}
