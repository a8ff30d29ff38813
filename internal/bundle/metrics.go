// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package bundle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricAllocTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "crashlogd",
	Subsystem: "bundle",
	Name:      "allocations_total",
}, []string{"mode", "result"})
