// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"log/slog"

	"github.com/log-capture/crashlogd/internal/bootscan"
	"github.com/log-capture/crashlogd/internal/bundle"
	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/history"
	"github.com/log-capture/crashlogd/internal/props"
)

// Encryption states recorded in the ledger at boot.
const (
	stateDecrypted = "DECRYPTED"
	stateEncrypted = "ENCRYPTED"
)

// voldDecryptTrigger is the vold.decrypt value of an unlocked encrypted
// device.
const voldDecryptTrigger = "trigger_post_fs_data"

type startupState struct {
	reason       string
	encryptState string
	lastUptime   string
	// skipScan is set while the device is encrypting or locked: the
	// data partition is not usable, so no boot scan and no history
	// seeding happens.
	skipScan bool
}

// decideStartup classifies this boot: a software update, an
// encrypted-boot variant, or a normal start. On a software update all
// rotation state and the ledger are reset; on a normal start the previous
// uptime is recovered from the ledger header.
func decideStartup(cfg *config.Config, st props.Store, id config.Identity, alloc *bundle.Allocator, hist *history.History) startupState {
	cryptState := st.Get(props.PropCryptoState, "unencrypted")
	encryptProgress := st.Get(props.PropEncryptProgress, "")
	decrypt := st.Get(props.PropDecrypt, "")

	state := startupState{encryptState: stateDecrypted}

	switch {
	case cryptState == "unencrypted" && encryptProgress == "":
		slog.Info("Boot state: normal start")
		normalStart(cfg, st, id, alloc, hist, &state)

	case encryptProgress != "":
		slog.Info("Boot state: encrypting")
		state.skipScan = true

	case cryptState == "encrypted" && decrypt != voldDecryptTrigger:
		slog.Info("Boot state: encrypted, locked")
		state.encryptState = stateEncrypted
		state.skipScan = true

	case decrypt == voldDecryptTrigger:
		slog.Info("Boot state: encrypted, unlocked")
		state.encryptState = stateEncrypted
		normalStart(cfg, st, id, alloc, hist, &state)

	default:
		slog.Info("Boot state: unrecognized, treating as normal start")
		normalStart(cfg, st, id, alloc, hist, &state)
	}
	return state
}

func normalStart(cfg *config.Config, st props.Store, id config.Identity, alloc *bundle.Allocator, hist *history.History, state *startupState) {
	if config.Swupdated(cfg, id.BuildVersion) {
		state.reason = "SWUPDATE"
		state.lastUptime = "0000:00:00"
		alloc.ResetCursor(bundle.ModeCrash)
		alloc.ResetCursor(bundle.ModeStats)
		alloc.ResetCursor(bundle.ModeAplogs)
		hist.Reset()
		return
	}
	state.reason = bootscan.ReadStartupReason(cfg.CmdlineFile)
	lastUptime, err := hist.SeedPrevious()
	if err != nil {
		slog.Warn("Cannot seed previous uptime", slog.String("pkg", "main"))
	}
	state.lastUptime = lastUptime
}
