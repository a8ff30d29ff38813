// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sysutil implements the platform adapters: the uptime clock,
// bounded file copies, ownership handling and external process spawning.
package sysutil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

var (
	bootTimeOnce sync.Once
	bootTime     time.Time
	bootTimeErr  error
)

// Uptime returns the time since boot at nanosecond resolution, anchored on
// the kernel boot time. When the boot time cannot be established it falls
// back to /proc/uptime.
func Uptime() (time.Duration, error) {
	bootTimeOnce.Do(func() {
		secs, err := host.BootTime()
		if err != nil {
			bootTimeErr = err
			return
		}
		bootTime = time.Unix(int64(secs), 0)
	})
	if bootTimeErr == nil {
		return time.Since(bootTime), nil
	}
	return procUptime("/proc/uptime")
}

func procUptime(path string) (time.Duration, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(bs))
	if len(fields) == 0 {
		return 0, errors.New("empty uptime file")
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// FormatUptime renders a duration in the ledger's HHHH:MM:SS form.
func FormatUptime(d time.Duration) string {
	total := int(d / time.Second)
	seconds := total % 60
	total /= 60
	minutes := total % 60
	total /= 60
	return fmt.Sprintf("%04d:%02d:%02d", total, minutes, seconds)
}
