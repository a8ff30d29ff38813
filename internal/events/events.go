// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package events holds the event vocabulary shared by the classifier, the
// boot scanner and the ledger: event classes, the closed type catalog and
// the key generator binding every event to a reproducible identifier.
package events

// Event classes, the first ledger column.
const (
	ClassCrash         = "CRASH"
	ClassStats         = "STATS"
	ClassState         = "STATE"
	ClassAplog         = "APLOG"
	ClassReboot        = "REBOOT"
	ClassUptime        = "UPTIME"
	ClassCurrentUptime = "CURRENTUPTIME"
	ClassStatsTrigger  = "STTRIG"
	ClassAplogTrigger  = "APLOGTRIG"
)

// Event types. The symbols are load-bearing for downstream parsers.
const (
	TypeKernelCrash      = "IPANIC"
	TypeKernelForceCrash = "IPANIC_FORCED"
	TypeKernelFakeCrash  = "IPANIC_FAKE"
	TypeSysServerWDT     = "UIWDT"
	TypeANR              = "ANR"
	TypeJavaCrash        = "JAVACRASH"
	TypeWTF              = "WTF"
	TypeTombstone        = "TOMBSTONE"
	TypeLostDropbox      = "LOST_DROPBOX"
	TypeAPCoredump       = "APCOREDUMP"
	TypeModemCrash       = "MPANIC"
	TypeModemShutdown    = "MSHUTDOWN"
	TypeAPIMR            = "APIMR"
	TypeMReset           = "MRESET"
	TypeFabricError      = "FABRICERR"
	TypeMemError         = "MEMERR"
	TypeInstError        = "INSTERR"
	TypeSRAMECCError     = "SRAMECCERR"
	TypeHWWDTLogError    = "HWWDTLOGERR"
	TypeRecoveryError    = "RECOVERY_ERROR"
	TypeSWUpdate         = "SWUPDATE"
	TypeWDT              = "WDT"
)

// StartupReasons indexes the kernel wake source from the boot command
// line.
var StartupReasons = []string{
	"BATT_INSERT",
	"PWR_BUTTON_PRESS",
	"RTC_TIMER",
	"USB_CHRG_INSERT",
	"Reserved",
	"COLD_RESET",
	"COLD_BOOT",
	"UNKNOWN",
	"SWWDT_RESET",
	"HWWDT_RESET",
}

// Timestamp layouts used in bundle file names and ledger records. The
// record layout carries its two trailing spaces into the fixed-width
// column.
const (
	FileTimeFormat   = "20060102150405"
	RecordTimeFormat = "2006-01-02/15:04:05  "
)
