// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package lockout applies and lifts IP blocks and account lockouts.
//
// Every mutation goes through the durable store first and then invalidates
// the cached projection, so a lifted block is visible on the very next
// check rather than after the cache TTL.
package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/models"
)

// Store is the slice of the durable store the manager mutates.
type Store interface {
	FindActiveBySubject(ctx context.Context, identifier string) ([]models.AttackPattern, error)
	UpsertPattern(ctx context.Context, pattern *models.AttackPattern) error
}

// Invalidator drops cached block projections after a mutation.
type Invalidator interface {
	Invalidate(identifier string)
}

// Manager owns the block and lockout state machine.
type Manager struct {
	store Store
	inv   Invalidator
	now   func() time.Time
}

// NewManager wires the manager to the store and the projection cache.
func NewManager(store Store, inv Invalidator) *Manager {
	return &Manager{store: store, inv: inv, now: time.Now}
}

// BlockIP blocks a source IP for the given duration; nil means indefinite.
// Blocking an already blocked IP is a no-op, not a window restart.
func (m *Manager) BlockIP(ctx context.Context, ip string, duration *time.Duration, reason, actor string) error {
	return m.apply(ctx, ip, "ip", duration, reason, actor, func(p *models.AttackPattern) bool {
		return p.SourceIdentifier == ip
	})
}

// UnblockIP resolves every blocked pattern naming the source IP.
// Unblocking an IP that is not blocked is a no-op.
func (m *Manager) UnblockIP(ctx context.Context, ip string, actor string) error {
	return m.lift(ctx, ip, "ip", actor, func(p *models.AttackPattern) bool {
		return p.SourceIdentifier == ip
	})
}

// LockAccount locks an account for the given duration; nil means
// indefinite. Locking an already locked account is a no-op. Only
// distributed patterns hold account locks; a sequential pattern naming
// the account as its target is an IP block and is left alone.
func (m *Manager) LockAccount(ctx context.Context, account string, duration *time.Duration, reason, actor string) error {
	return m.apply(ctx, account, "account", duration, reason, actor, func(p *models.AttackPattern) bool {
		return p.AttackType == models.AttackTypeDistributed && p.TargetIdentifier == account
	})
}

// UnlockAccount resolves every distributed pattern locking the account.
// Blocks on the IPs that attacked the account are not lifted with it.
func (m *Manager) UnlockAccount(ctx context.Context, account string, actor string) error {
	return m.lift(ctx, account, "account", actor, func(p *models.AttackPattern) bool {
		return p.AttackType == models.AttackTypeDistributed && p.TargetIdentifier == account
	})
}

// ResolveOnSuccess resolves every active pattern naming the attempt's
// source or target after a successful login, lifting any block with it.
// The resolved state is terminal; a fresh attack creates a new pattern.
func (m *Manager) ResolveOnSuccess(ctx context.Context, ip, account string) error {
	identifiers := []string{ip}
	if account != "" && account != ip {
		identifiers = append(identifiers, account)
	}

	now := m.now().UTC()
	for _, identifier := range identifiers {
		patterns, err := m.store.FindActiveBySubject(ctx, identifier)
		if err != nil {
			return fmt.Errorf("find patterns for %s: %w", identifier, err)
		}

		for i := range patterns {
			pattern := &patterns[i]
			wasBlocked := pattern.EffectivelyBlocked(now)

			pattern.Resolve(now, models.ActorSystem, "threat resolved")
			if err := m.store.UpsertPattern(ctx, pattern); err != nil {
				return fmt.Errorf("resolve pattern %s: %w", pattern.ID, err)
			}

			if wasBlocked {
				metrics.BlocksLifted.WithLabelValues(kindFor(pattern), "resolved").Inc()
			}
			logging.Info().
				Str("pattern_id", pattern.ID.String()).
				Str("attack_type", string(pattern.AttackType)).
				Msg("pattern resolved after successful login")
		}

		m.inv.Invalidate(identifier)
	}

	return nil
}

// apply starts a block window on every matching active pattern, creating a
// pattern when the identifier has none. The created pattern carries zero
// detection counters; it exists to hold the block.
func (m *Manager) apply(ctx context.Context, identifier, kind string, duration *time.Duration, reason, actor string, match func(*models.AttackPattern) bool) error {
	now := m.now().UTC()

	patterns, err := m.store.FindActiveBySubject(ctx, identifier)
	if err != nil {
		return fmt.Errorf("find patterns for %s: %w", identifier, err)
	}

	applied := false
	for i := range patterns {
		pattern := &patterns[i]
		if !match(pattern) {
			continue
		}
		if pattern.EffectivelyBlocked(now) {
			applied = true
			continue
		}

		pattern.Block(now, duration, reason, actor)
		if err := m.store.UpsertPattern(ctx, pattern); err != nil {
			return fmt.Errorf("block pattern %s: %w", pattern.ID, err)
		}
		applied = true
		metrics.BlocksApplied.WithLabelValues(kind, actor).Inc()
	}

	if !applied {
		pattern := m.newManualPattern(identifier, kind, now)
		pattern.Block(now, duration, reason, actor)
		if err := m.store.UpsertPattern(ctx, pattern); err != nil {
			return fmt.Errorf("create block for %s: %w", identifier, err)
		}
		metrics.BlocksApplied.WithLabelValues(kind, actor).Inc()
	}

	m.inv.Invalidate(identifier)

	logging.Info().
		Str("identifier", identifier).
		Str("kind", kind).
		Str("actor", actor).
		Str("reason", reason).
		Msg("block applied")

	return nil
}

// lift resolves every matching blocked pattern. A manual unblock is
// terminal for the pattern, recording the acting admin; renewed abuse
// creates a fresh pattern instead of reviving this one.
func (m *Manager) lift(ctx context.Context, identifier, kind, actor string, match func(*models.AttackPattern) bool) error {
	now := m.now().UTC()

	patterns, err := m.store.FindActiveBySubject(ctx, identifier)
	if err != nil {
		return fmt.Errorf("find patterns for %s: %w", identifier, err)
	}

	for i := range patterns {
		pattern := &patterns[i]
		if !match(pattern) || !pattern.IsBlocked {
			continue
		}

		pattern.Resolve(now, actor, "manually unblocked")
		if err := m.store.UpsertPattern(ctx, pattern); err != nil {
			return fmt.Errorf("unblock pattern %s: %w", pattern.ID, err)
		}
		metrics.BlocksLifted.WithLabelValues(kind, "manual").Inc()

		logging.Info().
			Str("pattern_id", pattern.ID.String()).
			Str("identifier", identifier).
			Str("actor", actor).
			Msg("block lifted")
	}

	m.inv.Invalidate(identifier)
	return nil
}

// newManualPattern holds a block for an identifier with no detected
// pattern, which only happens for admin-initiated blocks.
func (m *Manager) newManualPattern(identifier, kind string, now time.Time) *models.AttackPattern {
	pattern := &models.AttackPattern{
		ID:              uuid.New(),
		Severity:        models.SeverityMedium,
		FirstDetectedAt: now,
		LastDetectedAt:  now,
		IsActive:        true,
	}
	if kind == "account" {
		pattern.AttackType = models.AttackTypeDistributed
		pattern.SourceIdentifier = models.MultipleSourcesSentinel
		pattern.TargetIdentifier = identifier
	} else {
		pattern.AttackType = models.AttackTypeSequential
		pattern.SourceIdentifier = identifier
	}
	return pattern
}

func kindFor(p *models.AttackPattern) string {
	if p.AttackType == models.AttackTypeDistributed {
		return "account"
	}
	return "ip"
}
