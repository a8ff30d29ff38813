// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config carries the process-wide initialization struct threaded
// through every component: storage layout, residual-state paths, limits and
// the external command lines. All paths are absolute so tests can point the
// whole daemon at a temporary directory.
package config

import (
	"path/filepath"
	"time"
)

// Rotation and ledger limits.
const (
	MaxDir     = 1000
	MaxRecords = 5000
	SavedLines = 1

	// FileSizeMax bounds every log tail copied into a bundle.
	FileSizeMax = 10 * 1024 * 1024
	// SecondLogThreshold: when the primary log is smaller than this, its
	// rotated predecessor is copied too.
	SecondLogThreshold = 1 * 1024 * 1024

	UptimeFrequency     = 5 * time.Minute
	UptimeHourFrequency = 12
)

type Config struct {
	// Persistent storage layout.
	LogsDir    string // parent of everything below
	CoreDir    string
	SDCardRoot string // removable-media mirror of LogsDir

	HistoryFile string
	UptimeFile  string
	UUIDFile    string
	BuildIDFile string

	// Bundle root prefixes; a slot directory is <prefix><slot>.
	CrashDirEMMC, StatsDirEMMC, AplogsDirEMMC string
	CrashDirSD, StatsDirSD, AplogsDirSD       string

	// Rotation cursor files, one per mode.
	CrashCursorFile, StatsCursorFile, AplogsCursorFile string

	// Watched producer directories.
	DropboxDir    string
	TombstonesDir string
	StatsTrigDir  string
	AplogsTrigDir string

	// Log producer outputs.
	AplogFile     string
	BplogFile     string
	AplogBootName string // basename of the boot flush target inside a bundle

	// Residual state inspected by the boot scanner.
	CmdlineFile          string
	PanicConsoleProc     string
	FabricErrorProc      string
	UUIDProc             string
	SavedConsoleFile     string
	SavedThreadFile      string
	SavedLogcatFile      string
	SavedFabricFile      string
	ModemShutdownTrigger string
	RecoveryTrigger      string
	RecoveryLog          string
	BuildPropFile        string

	// Runtime behavior.
	RuntimeMax  int           // rotation modulus, CLI-overridable; MaxDir still caps slots
	SettleDelay time.Duration // pause between artifact copy and log snapshot
	UptimeTick  time.Duration
	TestMode    bool // force boot-scan existence checks
	ModemOnly   bool // restrict the watch table to the modem entries

	// External command lines, shell-quoted. Positional arguments are
	// appended to the split command line.
	LogcatCmd    string
	AnalyzerCmd  string
	NotifierCmd  string
	BacktraceCmd string
	GunzipCmd    string
	DebugFSCmd   string
}

func Default() *Config {
	logs := "/data/logs"
	return &Config{
		LogsDir:    logs,
		CoreDir:    filepath.Join(logs, "core"),
		SDCardRoot: "/mnt/sdcard/data/logs",

		HistoryFile: filepath.Join(logs, "history_event"),
		UptimeFile:  filepath.Join(logs, "uptime"),
		UUIDFile:    filepath.Join(logs, "uuid.txt"),
		BuildIDFile: filepath.Join(logs, "buildid.txt"),

		CrashDirEMMC:  filepath.Join(logs, "crashlog"),
		StatsDirEMMC:  filepath.Join(logs, "stats"),
		AplogsDirEMMC: filepath.Join(logs, "aplogs"),
		CrashDirSD:    "/mnt/sdcard/data/logs/crashlog",
		StatsDirSD:    "/mnt/sdcard/data/logs/stats",
		AplogsDirSD:   "/mnt/sdcard/data/logs/aplogs",

		CrashCursorFile:  filepath.Join(logs, "currentcrashlog"),
		StatsCursorFile:  filepath.Join(logs, "currentstatslog"),
		AplogsCursorFile: filepath.Join(logs, "currentaplogslog"),

		DropboxDir:    "/data/system/dropbox",
		TombstonesDir: "/data/tombstones",
		StatsTrigDir:  filepath.Join(logs, "stats"),
		AplogsTrigDir: filepath.Join(logs, "aplogs"),

		AplogFile:     filepath.Join(logs, "aplog"),
		BplogFile:     filepath.Join(logs, "bplog"),
		AplogBootName: "aplog_boot",

		CmdlineFile:          "/proc/cmdline",
		PanicConsoleProc:     "/proc/emmc_ipanic_console",
		FabricErrorProc:      "/proc/ipanic_fabric_err",
		UUIDProc:             "/proc/emmc0_id_entry",
		SavedConsoleFile:     "/data/dontpanic/emmc_ipanic_console",
		SavedThreadFile:      "/data/dontpanic/emmc_ipanic_threads",
		SavedLogcatFile:      "/data/dontpanic/emmc_ipanic_logcat",
		SavedFabricFile:      "/data/dontpanic/ipanic_fabric_err",
		ModemShutdownTrigger: filepath.Join(logs, "modemcrash", "mshutdown.txt"),
		RecoveryTrigger:      "/cache/recovery/recoveryfail",
		RecoveryLog:          "/cache/recovery/last_log",
		BuildPropFile:        "/system/build.prop",

		RuntimeMax:  MaxDir,
		SettleDelay: 20 * time.Second,
		UptimeTick:  UptimeFrequency,

		LogcatCmd:    "/system/bin/logcat -b system -b main -b radio -b events -b kernel -v threadtime -d -f",
		AnalyzerCmd:  "/system/bin/analyze_crash",
		NotifierCmd:  "am broadcast -n com.intel.crashreport/.NotificationReceiver -a com.intel.crashreport.intent.CRASH_NOTIFY -c android.intent.category.ALTERNATIVE",
		BacktraceCmd: "/system/bin/parse_stack",
		GunzipCmd:    "gunzip",
		DebugFSCmd:   "mount -t debugfs none /sys/kernel/debug",
	}
}

// ModemCrashDir is the watched modem crash directory, derived from the
// shutdown trigger location.
func (c *Config) ModemCrashDir() string {
	return filepath.Dir(c.ModemShutdownTrigger)
}
