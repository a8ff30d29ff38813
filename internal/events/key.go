// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package events

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// KeyLength is the length of an event key in hex characters: half a SHA-1
// digest.
const KeyLength = sha1.Size

// ZeroKey fills the key column of records that have no real event behind
// them, such as the boot uptime seed.
const ZeroKey = "00000000000000000000"

// A Keyer derives the opaque but reproducible event identifiers. The key
// is not a security token; it only needs to tell events apart downstream.
type Keyer struct {
	Build  string
	UUID   string
	Uptime func() (time.Duration, error)
}

// Key returns the event key for a class/type pair: the first half of the
// SHA-1 over build, uuid, class, type and the current uptime in
// nanoseconds. The type may be empty.
func (k *Keyer) Key(class, typ string) string {
	var ns int64
	if up, err := k.Uptime(); err == nil {
		ns = up.Nanoseconds()
	}
	sum := sha1.Sum(fmt.Appendf(nil, "%s%s%s%s%d", k.Build, k.UUID, class, typ, ns))
	return hex.EncodeToString(sum[:sha1.Size/2])
}
