// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package detection

import (
	"context"
	"time"

	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/models"
)

// mockEventHistory returns canned counts and samples.
type mockEventHistory struct {
	failuresBySource   int
	distinctSources    int
	recentFailures     []models.SecurityEvent
	countErr           error
	lastFailureQueryIP string
	lastSince          time.Time
}

func (m *mockEventHistory) CountFailuresBySource(_ context.Context, sourceIP string, since time.Time) (int, error) {
	m.lastFailureQueryIP = sourceIP
	m.lastSince = since
	return m.failuresBySource, m.countErr
}

func (m *mockEventHistory) CountDistinctSourcesForAccount(_ context.Context, _ string, _ time.Time) (int, error) {
	return m.distinctSources, m.countErr
}

func (m *mockEventHistory) RecentFailuresBySource(_ context.Context, _ string, _ time.Time, limit int) ([]models.SecurityEvent, error) {
	if limit < len(m.recentFailures) {
		return m.recentFailures[:limit], nil
	}
	return m.recentFailures, nil
}

// mockPatternStore keeps patterns in a slice keyed by tuple.
type mockPatternStore struct {
	patterns  []*models.AttackPattern
	upserts   int
	upsertErr error
}

func (m *mockPatternStore) GetActivePattern(_ context.Context, attackType models.AttackType, source, target string) (*models.AttackPattern, error) {
	for _, p := range m.patterns {
		if p.IsActive && p.AttackType == attackType && p.SourceIdentifier == source && p.TargetIdentifier == target {
			copied := *p
			return &copied, nil
		}
	}
	return nil, database.ErrPatternNotFound
}

func (m *mockPatternStore) UpsertPattern(_ context.Context, pattern *models.AttackPattern) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	for i, p := range m.patterns {
		if p.ID == pattern.ID {
			copied := *pattern
			m.patterns[i] = &copied
			return nil
		}
	}
	copied := *pattern
	m.patterns = append(m.patterns, &copied)
	return nil
}

// failedAttempt builds a failed login event for tests.
func failedAttempt(ip, account string, at time.Time) *models.SecurityEvent {
	return &models.SecurityEvent{
		EventType:     models.EventTypeLoginFailed,
		SourceIP:      ip,
		TargetAccount: account,
		CreatedAt:     at,
	}
}
