// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package reconciler houses the periodic sweep that retires elapsed block
// windows and purges events past retention.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/models"
)

// Store is the slice of the durable store the sweep touches.
type Store interface {
	ListActiveBlocked(ctx context.Context) ([]models.AttackPattern, error)
	UpsertPattern(ctx context.Context, pattern *models.AttackPattern) error
	PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Invalidator drops cached block projections for identifiers whose block
// the sweep just lifted.
type Invalidator interface {
	Invalidate(identifier string)
}

// Report summarizes one sweep run.
type Report struct {
	ExpiredBlocks int64
	PurgedEvents  int64
}

// Sweeper runs the reconciliation duties on a fixed interval. Blocks are
// already evaluated lazily on every check; the sweep is what retires the
// durable records and keeps listings truthful.
type Sweeper struct {
	store     Store
	inv       Invalidator
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewSweeper builds the sweep from config.
func NewSweeper(store Store, inv Invalidator, cfg *config.SecurityConfig) *Sweeper {
	return &Sweeper{
		store:     store,
		inv:       inv,
		interval:  cfg.SweepInterval,
		retention: cfg.RetentionPeriod,
		now:       time.Now,
	}
}

// Serve runs sweeps until the context is canceled. It satisfies
// suture.Service so the supervisor restarts it on panic.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", s.interval).Msg("reconciler started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report := s.Run(ctx)
			logging.Debug().
				Int64("expired_blocks", report.ExpiredBlocks).
				Int64("purged_events", report.PurgedEvents).
				Msg("sweep complete")
		}
	}
}

// Run executes one sweep. The duties are independent; a failure in one
// never stops the other, so a long-broken purge cannot freeze block
// expiry.
func (s *Sweeper) Run(ctx context.Context) Report {
	var report Report

	expired, err := s.expireBlocks(ctx)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("expire_blocks", "error").Inc()
		logging.Error().Err(err).Msg("block expiry sweep failed")
	} else {
		metrics.SweepRuns.WithLabelValues("expire_blocks", "success").Inc()
		metrics.SweepExpiredBlocks.Add(float64(expired))
		report.ExpiredBlocks = expired
	}

	purged, err := s.purgeEvents(ctx)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("purge_events", "error").Inc()
		logging.Error().Err(err).Msg("event purge sweep failed")
	} else {
		metrics.SweepRuns.WithLabelValues("purge_events", "success").Inc()
		metrics.SweepPurgedEvents.Add(float64(purged))
		report.PurgedEvents = purged
	}

	return report
}

// expireBlocks resolves every pattern whose block window has elapsed.
// Expiry is terminal: the pattern goes inactive with a resolution stamp,
// and a fresh detection creates a new record rather than reviving it.
func (s *Sweeper) expireBlocks(ctx context.Context) (int64, error) {
	now := s.now().UTC()

	patterns, err := s.store.ListActiveBlocked(ctx)
	if err != nil {
		return 0, fmt.Errorf("list blocked patterns: %w", err)
	}

	var expired int64
	for i := range patterns {
		pattern := &patterns[i]
		if pattern.EffectivelyBlocked(now) {
			continue
		}

		kind := "ip"
		identifier := pattern.SourceIdentifier
		if pattern.AttackType == models.AttackTypeDistributed {
			kind = "account"
			identifier = pattern.TargetIdentifier
		}

		pattern.Resolve(now, models.ActorSystem, "block window elapsed")
		if err := s.store.UpsertPattern(ctx, pattern); err != nil {
			return expired, fmt.Errorf("retire block on %s: %w", pattern.ID, err)
		}

		s.inv.Invalidate(identifier)
		metrics.BlocksLifted.WithLabelValues(kind, "expired").Inc()
		expired++

		logging.Info().
			Str("pattern_id", pattern.ID.String()).
			Str("identifier", identifier).
			Msg("block window elapsed")
	}

	return expired, nil
}

// purgeEvents deletes events older than the retention period.
func (s *Sweeper) purgeEvents(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	purged, err := s.store.PurgeEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	return purged, nil
}
