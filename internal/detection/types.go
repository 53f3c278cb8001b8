// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package detection evaluates failed login attempts against the brute-force
// heuristics and maintains the resulting attack patterns.
package detection

import (
	"context"
	"time"

	"github.com/gatewarden/gatewarden/internal/models"
)

// EventHistory is the slice of the durable store the detectors query.
type EventHistory interface {
	CountFailuresBySource(ctx context.Context, sourceIP string, since time.Time) (int, error)
	CountDistinctSourcesForAccount(ctx context.Context, account string, since time.Time) (int, error)
	RecentFailuresBySource(ctx context.Context, sourceIP string, since time.Time, limit int) ([]models.SecurityEvent, error)
}

// PatternStore persists attack patterns.
type PatternStore interface {
	GetActivePattern(ctx context.Context, attackType models.AttackType, source, target string) (*models.AttackPattern, error)
	UpsertPattern(ctx context.Context, pattern *models.AttackPattern) error
}

// Finding is one heuristic's verdict for a single failed attempt.
// SourceIdentifier and TargetIdentifier name the offending tuple;
// the boolean flags are the detector's mitigation votes, which the
// analyzer unions across detectors.
type Finding struct {
	AttackType       models.AttackType
	SourceIdentifier string
	TargetIdentifier string
	Detail           models.AttackDetail
	FailedAttempts   int
	RequiresCaptcha  bool
	BlockIP          bool
	LockAccount      bool
}

// Detector evaluates one failed attempt against one heuristic. A nil
// finding with a nil error means the heuristic did not fire.
type Detector interface {
	Type() models.AttackType
	Check(ctx context.Context, event *models.SecurityEvent) (*Finding, error)
}
