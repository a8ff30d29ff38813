// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package props adapts the platform property store. On device the store is
// reached through the getprop/setprop binaries; tests use the in-memory
// MapStore.
package props

import (
	"bytes"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/log-capture/crashlogd/internal/slogutil"
)

// Well-known property keys.
const (
	PropCrashEnable   = "persist.service.crashlog.enable"
	PropProfile       = "persist.service.profile.enable"
	PropCoreDump      = "persist.core.enabled"
	PropANRUserstack  = "persist.anr.userstack.disabled"
	PropAplogDepth    = "persist.crashreport.aplogdepth"
	PropAplogNbPacket = "persist.crashreport.packet"

	PropBuild       = "ro.build.version.incremental"
	PropBoard       = "ro.product.model"
	PropFingerprint = "ro.build.fingerprint"
	PropKernel      = "sys.kernel.version"
	PropUser        = "ro.build.user"
	PropHost        = "ro.build.host"
	PropIfwi        = "sys.ifwi.version"
	PropScufw       = "sys.scu.version"
	PropPunit       = "sys.punit.version"
	PropIafw        = "sys.ia32.version"
	PropValhooks    = "sys.valhooks.version"
	PropModem       = "gsm.version.baseband"
	PropIMEI        = "persist.radio.device.imei"

	PropCryptoState     = "ro.crypto.state"
	PropEncryptProgress = "vold.encrypt_progress"
	PropDecrypt         = "vold.decrypt"

	PropCtlStart = "ctl.start"
)

// Store is the property store seen by the rest of the daemon.
type Store interface {
	// Get returns the property value, or def when the property is unset
	// or the store is unreachable.
	Get(key, def string) string
	// Set sets the property. Setting ctl.start triggers the init service
	// with the given name.
	Set(key, value string) error
}

// ExecStore reads and writes properties through the getprop and setprop
// binaries.
type ExecStore struct {
	// Getprop and Setprop override the binary paths; the defaults are
	// /system/bin/getprop and /system/bin/setprop.
	Getprop string
	Setprop string
}

func (s *ExecStore) Get(key, def string) string {
	bin := s.Getprop
	if bin == "" {
		bin = "/system/bin/getprop"
	}
	out, err := exec.Command(bin, key).Output()
	if err != nil {
		slog.Debug("Property read failed", slog.String("key", key), slogutil.Error(err), slog.String("pkg", "props"))
		return def
	}
	val := string(bytes.TrimRight(out, "\r\n"))
	if val == "" {
		return def
	}
	return val
}

func (s *ExecStore) Set(key, value string) error {
	bin := s.Setprop
	if bin == "" {
		bin = "/system/bin/setprop"
	}
	return exec.Command(bin, key, value).Run()
}

// MapStore is an in-memory Store. The zero value is ready for use.
type MapStore struct {
	mut  sync.Mutex
	vals map[string]string
}

func (s *MapStore) Get(key, def string) string {
	s.mut.Lock()
	defer s.mut.Unlock()
	if v, ok := s.vals[key]; ok && v != "" {
		return v
	}
	return def
}

func (s *MapStore) Set(key, value string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.vals == nil {
		s.vals = make(map[string]string)
	}
	s.vals[key] = value
	return nil
}

// BoolValue reports whether a property value means "enabled". Only the
// leading character is significant, as in the original property handling.
func BoolValue(val string) bool {
	return strings.HasPrefix(val, "1")
}
