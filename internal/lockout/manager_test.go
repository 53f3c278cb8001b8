// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/models"
)

type fakeStore struct {
	patterns map[uuid.UUID]*models.AttackPattern
	upserts  int
}

func newFakeStore(patterns ...*models.AttackPattern) *fakeStore {
	store := &fakeStore{patterns: make(map[uuid.UUID]*models.AttackPattern)}
	for _, p := range patterns {
		copied := *p
		store.patterns[p.ID] = &copied
	}
	return store
}

func (f *fakeStore) FindActiveBySubject(_ context.Context, identifier string) ([]models.AttackPattern, error) {
	var out []models.AttackPattern
	for _, p := range f.patterns {
		if p.IsActive && (p.SourceIdentifier == identifier || p.TargetIdentifier == identifier) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertPattern(_ context.Context, pattern *models.AttackPattern) error {
	f.upserts++
	copied := *pattern
	f.patterns[pattern.ID] = &copied
	return nil
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(identifier string) {
	f.invalidated = append(f.invalidated, identifier)
}

func activePattern(attackType models.AttackType, source, target string) *models.AttackPattern {
	now := time.Now().UTC()
	return &models.AttackPattern{
		ID:               uuid.New(),
		AttackType:       attackType,
		SourceIdentifier: source,
		TargetIdentifier: target,
		Severity:         models.SeverityMedium,
		FirstDetectedAt:  now,
		LastDetectedAt:   now,
		IsActive:         true,
	}
}

func TestBlockIP(t *testing.T) {
	pattern := activePattern(models.AttackTypeSequential, "10.0.0.1", "alice")
	store := newFakeStore(pattern)
	inv := &fakeInvalidator{}
	manager := NewManager(store, inv)
	duration := 30 * time.Minute

	err := manager.BlockIP(context.Background(), "10.0.0.1", &duration, "too many failures", models.ActorSystem)
	require.NoError(t, err)

	got := store.patterns[pattern.ID]
	assert.True(t, got.IsBlocked)
	require.NotNil(t, got.BlockedAt)
	require.NotNil(t, got.BlockDuration)
	assert.Equal(t, duration, *got.BlockDuration)
	assert.Equal(t, models.ActorSystem, got.BlockActor)
	assert.Contains(t, inv.invalidated, "10.0.0.1")
}

func TestBlockIPIdempotent(t *testing.T) {
	pattern := activePattern(models.AttackTypeSequential, "10.0.0.1", "")
	store := newFakeStore(pattern)
	manager := NewManager(store, &fakeInvalidator{})
	duration := 30 * time.Minute

	require.NoError(t, manager.BlockIP(context.Background(), "10.0.0.1", &duration, "r", models.ActorSystem))
	firstBlockedAt := *store.patterns[pattern.ID].BlockedAt
	upserts := store.upserts

	require.NoError(t, manager.BlockIP(context.Background(), "10.0.0.1", &duration, "r", models.ActorSystem))

	assert.Equal(t, upserts, store.upserts, "second block must not write")
	assert.Equal(t, firstBlockedAt, *store.patterns[pattern.ID].BlockedAt, "window must not restart")
	assert.Len(t, store.patterns, 1, "no manual pattern while one is already blocked")
}

func TestBlockIPWithoutPatternCreatesOne(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store, &fakeInvalidator{})
	duration := time.Hour

	err := manager.BlockIP(context.Background(), "203.0.113.8", &duration, "abuse report", models.ActorAdmin)
	require.NoError(t, err)

	require.Len(t, store.patterns, 1)
	for _, p := range store.patterns {
		assert.Equal(t, "203.0.113.8", p.SourceIdentifier)
		assert.True(t, p.IsBlocked)
		assert.Equal(t, models.ActorAdmin, p.BlockActor)
		assert.Equal(t, 0, p.FailedAttempts)
	}
}

func TestUnblockIP(t *testing.T) {
	pattern := activePattern(models.AttackTypeSequential, "10.0.0.1", "")
	now := time.Now().UTC()
	duration := 30 * time.Minute
	pattern.Block(now, &duration, "r", models.ActorSystem)
	store := newFakeStore(pattern)
	inv := &fakeInvalidator{}
	manager := NewManager(store, inv)

	require.NoError(t, manager.UnblockIP(context.Background(), "10.0.0.1", models.ActorAdmin))

	got := store.patterns[pattern.ID]
	assert.False(t, got.IsBlocked)
	assert.False(t, got.IsActive, "manual unblock resolves the pattern")
	require.NotNil(t, got.ResolvedAt)
	assert.Equal(t, models.ActorAdmin, got.ResolvedBy)
	assert.Equal(t, "manually unblocked", got.ResolutionNotes)
	assert.Contains(t, inv.invalidated, "10.0.0.1")
}

func TestUnblockIPNotBlockedIsNoop(t *testing.T) {
	pattern := activePattern(models.AttackTypeSequential, "10.0.0.1", "")
	store := newFakeStore(pattern)
	manager := NewManager(store, &fakeInvalidator{})

	require.NoError(t, manager.UnblockIP(context.Background(), "10.0.0.1", models.ActorAdmin))
	assert.Zero(t, store.upserts)
}

func TestLockAndUnlockAccount(t *testing.T) {
	pattern := activePattern(models.AttackTypeDistributed, models.MultipleSourcesSentinel, "bob")
	store := newFakeStore(pattern)
	manager := NewManager(store, &fakeInvalidator{})
	duration := 30 * time.Minute

	require.NoError(t, manager.LockAccount(context.Background(), "bob", &duration, "distributed attack", models.ActorSystem))
	assert.True(t, store.patterns[pattern.ID].IsBlocked)

	require.NoError(t, manager.UnlockAccount(context.Background(), "bob", models.ActorAdmin))
	assert.False(t, store.patterns[pattern.ID].IsBlocked)
	assert.False(t, store.patterns[pattern.ID].IsActive, "manual unlock resolves the pattern")
	assert.Equal(t, models.ActorAdmin, store.patterns[pattern.ID].ResolvedBy)
}

func TestLockAccountIgnoresSequentialPatternNamingAccount(t *testing.T) {
	sequential := activePattern(models.AttackTypeSequential, "10.0.0.1", "alice")
	store := newFakeStore(sequential)
	manager := NewManager(store, &fakeInvalidator{})
	duration := 30 * time.Minute

	require.NoError(t, manager.LockAccount(context.Background(), "alice", &duration, "manual", models.ActorAdmin))

	assert.False(t, store.patterns[sequential.ID].IsBlocked,
		"locking the account must not block the attacker's pattern")
	require.Len(t, store.patterns, 2, "the lock lives on its own distributed pattern")
	for id, p := range store.patterns {
		if id == sequential.ID {
			continue
		}
		assert.Equal(t, models.AttackTypeDistributed, p.AttackType)
		assert.Equal(t, "alice", p.TargetIdentifier)
		assert.True(t, p.IsBlocked)
	}
}

func TestLockAccountIndefinite(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store, &fakeInvalidator{})

	require.NoError(t, manager.LockAccount(context.Background(), "carol", nil, "manual", models.ActorAdmin))

	for _, p := range store.patterns {
		assert.True(t, p.IsBlocked)
		assert.Nil(t, p.BlockDuration, "nil duration is indefinite")
		assert.True(t, p.EffectivelyBlocked(time.Now().Add(1000*time.Hour)))
	}
}

func TestResolveOnSuccess(t *testing.T) {
	ipPattern := activePattern(models.AttackTypeSequential, "10.0.0.1", "alice")
	now := time.Now().UTC()
	duration := 30 * time.Minute
	ipPattern.Block(now, &duration, "r", models.ActorSystem)
	accountPattern := activePattern(models.AttackTypeDistributed, models.MultipleSourcesSentinel, "alice")
	store := newFakeStore(ipPattern, accountPattern)
	inv := &fakeInvalidator{}
	manager := NewManager(store, inv)

	require.NoError(t, manager.ResolveOnSuccess(context.Background(), "10.0.0.1", "alice"))

	for _, p := range store.patterns {
		assert.False(t, p.IsActive, "successful login resolves the pattern")
		assert.False(t, p.IsBlocked)
		assert.Equal(t, models.ActorSystem, p.ResolvedBy)
		assert.Equal(t, "threat resolved", p.ResolutionNotes)
		require.NotNil(t, p.ResolvedAt)
	}
	assert.Contains(t, inv.invalidated, "10.0.0.1")
	assert.Contains(t, inv.invalidated, "alice")
}

func TestResolveOnSuccessNoPatterns(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store, &fakeInvalidator{})

	require.NoError(t, manager.ResolveOnSuccess(context.Background(), "10.0.0.9", "nobody"))
	assert.Zero(t, store.upserts)
}
