// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command crashlogd is the crash and event collection daemon. It scans
// the residual state of the previous boot, then watches the log producer
// directories and turns everything abnormal into evidence bundles, ledger
// records and notifications to the reporting agent.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"

	"github.com/log-capture/crashlogd/internal/bootscan"
	"github.com/log-capture/crashlogd/internal/bundle"
	"github.com/log-capture/crashlogd/internal/classifier"
	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/events"
	"github.com/log-capture/crashlogd/internal/history"
	"github.com/log-capture/crashlogd/internal/props"
	"github.com/log-capture/crashlogd/internal/slogutil"
	"github.com/log-capture/crashlogd/internal/snapshot"
	"github.com/log-capture/crashlogd/internal/sysutil"
	"github.com/log-capture/crashlogd/internal/uptimer"
)

type cli struct {
	Max           int    `arg:"" optional:"" help:"Override the bundle rotation modulus."`
	Modem         bool   `help:"Watch only the modem crash entries."`
	Test          bool   `help:"Force the boot scanner's existence checks."`
	MetricsListen string `env:"METRICS_LISTEN_ADDRESS" help:"HTTP listen address for metrics."`
}

func main() {
	var params cli
	parser := kong.Must(&params,
		kong.Name("crashlogd"),
		kong.Description("Crash and event collection daemon."))
	if _, err := parser.Parse(legacyArgs(os.Args[1:])); err != nil {
		fmt.Fprintf(os.Stderr, "crashlogd: %v\n", err)
		os.Exit(1)
	}

	if err := run(&params); err != nil {
		slog.Error("Startup failed", slogutil.Error(err))
		os.Exit(1)
	}
}

// legacyArgs accepts the historical single-dash spellings.
func legacyArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch a {
		case "-modem":
			a = "--modem"
		case "-test":
			a = "--test"
		}
		out = append(out, a)
	}
	return out
}

func run(params *cli) error {
	cfg := config.Default()
	if params.Max > 0 {
		cfg.RuntimeMax = params.Max
	}
	cfg.ModemOnly = params.Modem
	cfg.TestMode = params.Test

	st := props.Store(&props.ExecStore{})

	// The daemon only runs when enabled by policy. When disabled we
	// still consume a pending panic record so it does not survive into
	// a boot where the daemon is enabled again.
	if !props.BoolValue(st.Get(props.PropCrashEnable, "")) {
		if _, err := os.Stat(cfg.PanicConsoleProc); err == nil {
			_ = sysutil.WriteFileValue(cfg.PanicConsoleProc, "1")
		}
		return fmt.Errorf("disabled by %s", props.PropCrashEnable)
	}

	id := config.LoadIdentity(cfg, st)
	slog.Info("Starting crashlogd", slog.String("build", id.BuildVersion), slog.String("board", id.BoardVersion), slog.String("uuid", id.UUID))

	runner := &sysutil.ExecRunner{Log: slog.Default()}
	if err := runner.Run(cfg.DebugFSCmd); err != nil {
		slog.Debug("Cannot mount debugfs", slogutil.Error(err))
	}

	keyer := &events.Keyer{Build: id.BuildVersion, UUID: id.UUID, Uptime: sysutil.Uptime}
	alloc := bundle.NewAllocator(cfg)
	hist := history.New(cfg, st, runner, id)
	snap := snapshot.New(cfg, runner)

	state := decideStartup(cfg, st, id, alloc, hist)
	if !state.skipScan {
		scanner := bootscan.New(cfg, alloc, hist, snap, keyer)
		scanner.Run(state.reason)

		date := time.Now().Format(events.RecordTimeFormat)
		hist.Append(history.Entry{
			Class: events.ClassReboot,
			Type:  state.reason,
			Extra: state.lastUptime,
			Key:   keyer.Key(events.ClassReboot, state.reason),
			Date:  date,
		})
		hist.Append(history.Entry{
			Class: events.ClassState,
			Type:  state.encryptState,
			Key:   keyer.Key(events.ClassState, state.encryptState),
			Date:  date,
		})
		if err := runner.Run(cfg.NotifierCmd); err != nil {
			slog.Info("Crash report notification failed", slogutil.Error(err))
		}
	}

	initProfileServices(st)
	updateLogsPermission(cfg, st)

	if params.MetricsListen != "" {
		go serveMetrics(params.MetricsListen)
	}

	spv := suture.NewSimple("crashlogd")
	spv.Add(uptimer.New(cfg))
	spv.Add(classifier.New(cfg, st, alloc, hist, snap, keyer, runner))
	return spv.Serve(context.Background())
}

// initProfileServices starts the enabled profiling service at boot.
func initProfileServices(st props.Store) {
	val := st.Get(props.PropProfile, "")
	if len(val) > 0 && val[0] == '1' {
		_ = st.Set(props.PropCtlStart, "profile1_init")
	}
	if len(val) > 0 && val[0] == '2' {
		_ = st.Set(props.PropCtlStart, "profile2_init")
	}
}

// updateLogsPermission opens up the log tree when core dump collection is
// enabled and locks it down otherwise.
func updateLogsPermission(cfg *config.Config, st props.Store) {
	mode := os.FileMode(0o750)
	if props.BoolValue(st.Get(props.PropCoreDump, "0")) {
		mode = 0o777
	}
	for _, dir := range []string{cfg.LogsDir, cfg.CoreDir} {
		if err := os.Chmod(dir, mode); err != nil {
			slog.Debug("Cannot chmod log directory", slogutil.FilePath(dir), slogutil.Error(err))
		}
	}
	slog.Info("Log directory permissions set", slog.String("mode", mode.String()))
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("Metrics server returned", slogutil.Error(err))
	}
}
