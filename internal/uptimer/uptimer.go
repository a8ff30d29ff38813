// Copyright (C) 2026 The Crashlogd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package uptimer periodically touches the uptime sentinel file. The
// close-write is observed by the classifier, which rewrites the ledger
// header and emits the periodic uptime events. Nothing else happens here.
package uptimer

import (
	"context"
	"log/slog"
	"time"

	"github.com/log-capture/crashlogd/internal/config"
	"github.com/log-capture/crashlogd/internal/slogutil"
	"github.com/log-capture/crashlogd/internal/sysutil"
)

type Service struct {
	cfg *config.Config
	log *slog.Logger
}

func New(cfg *config.Config) *Service {
	return &Service{
		cfg: cfg,
		log: slog.With("pkg", "uptimer"),
	}
}

func (s *Service) String() string { return "uptimer" }

func (s *Service) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.UptimeTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := sysutil.TouchFile(s.cfg.UptimeFile); err != nil {
				s.log.Warn("Cannot touch uptime sentinel", slogutil.FilePath(s.cfg.UptimeFile), slogutil.Error(err))
			}
		}
	}
}
