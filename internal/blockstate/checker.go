// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package blockstate answers "is this identifier blocked right now".
//
// The durable store holds the truth; this package keeps a short-lived
// projection in the in-process cache so the hot path rarely touches the
// database. A store failure degrades to "not blocked" so the engine never
// locks out legitimate users because its own storage is down.
package blockstate

import (
	"context"
	"time"

	"github.com/gatewarden/gatewarden/internal/cache"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/models"
)

// Store is the slice of the durable store the checker reads. The two
// lookups are kind-aware: an IP is blocked only by patterns naming it as
// source, an account only by distributed patterns naming it as target. A
// sequential pattern records the attacked account, but blocking its source
// IP must never read as a lock on that account.
type Store interface {
	FindActiveBlockedBySource(ctx context.Context, ip string) ([]models.AttackPattern, error)
	FindActiveBlockedByTarget(ctx context.Context, account string) ([]models.AttackPattern, error)
}

// projection is the cached answer for one identifier. Until is nil for an
// indefinite block; a false Blocked caches the negative answer too.
type projection struct {
	Blocked bool
	Until   *time.Time
}

// Checker evaluates effective block state through the cache.
type Checker struct {
	store Store
	cache *cache.Cache
	now   func() time.Time
}

// NewChecker wires the checker to the durable store and a projection
// cache. The cache's TTL bounds how stale an answer can be.
func NewChecker(store Store, projections *cache.Cache) *Checker {
	return &Checker{store: store, cache: projections, now: time.Now}
}

// IsIPBlocked reports whether the source IP is inside an active block
// window.
func (c *Checker) IsIPBlocked(ctx context.Context, ip string) bool {
	blocked, _ := c.check(ctx, ipKey(ip), ip, c.store.FindActiveBlockedBySource)
	return blocked
}

// IsAccountLocked reports whether the account is inside an active lockout
// window.
func (c *Checker) IsAccountLocked(ctx context.Context, account string) bool {
	blocked, _ := c.check(ctx, accountKey(account), account, c.store.FindActiveBlockedByTarget)
	return blocked
}

// RemainingLockout returns the time left on the identifier's block, a nil
// duration for an indefinite block, or ok=false when nothing is in force.
func (c *Checker) RemainingLockout(ctx context.Context, identifier string) (remaining *time.Duration, ok bool) {
	blocked, until := c.check(ctx, ipKey(identifier), identifier, c.store.FindActiveBlockedBySource)
	if !blocked {
		blocked, until = c.check(ctx, accountKey(identifier), identifier, c.store.FindActiveBlockedByTarget)
	}
	if !blocked {
		return nil, false
	}
	if until == nil {
		return nil, true
	}
	d := until.Sub(c.now())
	return &d, true
}

// Invalidate drops the identifier's cached projections. The lockout
// manager calls this on every block or unblock so mutations are visible
// immediately instead of after the TTL.
func (c *Checker) Invalidate(identifier string) {
	c.cache.Invalidate(ipKey(identifier))
	c.cache.Invalidate(accountKey(identifier))
}

// check resolves one cache key, falling back to the kind's store lookup
// on a miss.
func (c *Checker) check(ctx context.Context, key, identifier string, fetch func(context.Context, string) ([]models.AttackPattern, error)) (bool, *time.Time) {
	now := c.now()

	if value, hit := c.cache.Get(key); hit {
		metrics.BlockCacheHits.Inc()
		p := value.(projection)
		return evaluate(p, now), p.Until
	}
	metrics.BlockCacheMisses.Inc()

	patterns, err := fetch(ctx, identifier)
	if err != nil {
		metrics.StoreFailOpen.Inc()
		logging.Error().Err(err).Str("identifier", identifier).Msg("block lookup failed, failing open")
		return false, nil
	}

	p := project(patterns, now)
	c.cache.Set(key, p)
	return p.Blocked, p.Until
}

// project folds the blocked patterns into one projection, keeping the
// latest expiry. Any indefinite block dominates.
func project(patterns []models.AttackPattern, now time.Time) projection {
	var p projection
	for i := range patterns {
		pattern := &patterns[i]
		if !pattern.EffectivelyBlocked(now) {
			continue
		}
		p.Blocked = true
		if pattern.BlockDuration == nil {
			p.Until = nil
			return p
		}
		until := pattern.BlockedAt.Add(*pattern.BlockDuration)
		if p.Until == nil || until.After(*p.Until) {
			p.Until = &until
		}
	}
	return p
}

// evaluate re-checks a cached projection against the clock, so a block
// that expires mid-TTL reads as lifted without waiting for eviction.
func evaluate(p projection, now time.Time) bool {
	if !p.Blocked {
		return false
	}
	if p.Until == nil {
		return true
	}
	return now.Before(*p.Until)
}

func ipKey(ip string) string           { return "block:ip:" + ip }
func accountKey(account string) string { return "block:account:" + account }
