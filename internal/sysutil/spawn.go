// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package sysutil

import (
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/kballard/go-shellquote"

	"github.com/log-capture/crashlogd/internal/slogutil"
)

// Runner spawns external helpers: the log collector, the crash analyzer,
// the notification broadcast and the backtrace parser.
type Runner interface {
	// Run splits the shell-quoted command line, appends the positional
	// arguments and runs the command to completion.
	Run(cmdline string, args ...string) error
}

// ExecRunner runs commands synchronously. Child reaping is handled by the
// runtime; there is no asynchronous waitpid sweep to do.
type ExecRunner struct {
	Log *slog.Logger
}

func (r *ExecRunner) Run(cmdline string, args ...string) error {
	argv, err := shellquote.Split(cmdline)
	if err != nil {
		return fmt.Errorf("split command %q: %w", cmdline, err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("empty command line")
	}
	argv = append(argv, args...)

	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Run(); err != nil {
		if r.Log != nil {
			r.Log.Warn("External command returned", slog.String("cmd", argv[0]), slogutil.Error(err))
		}
		return err
	}
	return nil
}
