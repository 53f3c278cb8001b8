// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/models"
)

// Result is the union of every heuristic verdict for one failed attempt.
// RiskScore is the highest score among the updated patterns.
type Result struct {
	Patterns        []*models.AttackPattern
	Types           []models.AttackType
	RiskScore       float64
	RequiresCaptcha bool
	BlockIP         bool
	LockAccount     bool
}

// Detected reports whether any heuristic fired.
func (r *Result) Detected() bool {
	return len(r.Patterns) > 0
}

// Analyzer runs every registered detector against a failed attempt and
// persists the patterns they produce. A single failing detector never
// suppresses the others.
type Analyzer struct {
	detectors []Detector
	history   EventHistory
	patterns  PatternStore
}

// NewAnalyzer wires the detectors to their stores.
func NewAnalyzer(detectors []Detector, history EventHistory, patterns PatternStore) *Analyzer {
	return &Analyzer{detectors: detectors, history: history, patterns: patterns}
}

// Analyze evaluates one failed attempt. Only store-level pattern writes
// return an error; detector errors are logged and counted, and the
// remaining detectors still run.
func (a *Analyzer) Analyze(ctx context.Context, event *models.SecurityEvent) (*Result, error) {
	result := &Result{}

	// One sample serves every detector's risk score for this event.
	since := event.CreatedAt.Add(-24 * time.Hour)
	recent, err := a.history.RecentFailuresBySource(ctx, event.SourceIP, since, riskSampleSize)
	if err != nil {
		logging.Warn().Err(err).Str("ip", event.SourceIP).Msg("risk sample unavailable")
		recent = nil
	}

	for _, detector := range a.detectors {
		finding, err := detector.Check(ctx, event)
		if err != nil {
			metrics.DetectionErrors.WithLabelValues(string(detector.Type())).Inc()
			logging.Error().Err(err).
				Str("detector", string(detector.Type())).
				Msg("detector failed")
			continue
		}
		if finding == nil {
			continue
		}

		pattern, err := a.recordFinding(ctx, event, finding, recent)
		if err != nil {
			return nil, err
		}

		metrics.PatternsDetected.WithLabelValues(string(finding.AttackType)).Inc()
		metrics.RiskScore.Observe(pattern.RiskScore)

		result.Patterns = append(result.Patterns, pattern)
		result.Types = append(result.Types, finding.AttackType)
		result.RequiresCaptcha = result.RequiresCaptcha || finding.RequiresCaptcha
		result.BlockIP = result.BlockIP || finding.BlockIP
		result.LockAccount = result.LockAccount || finding.LockAccount
		if pattern.RiskScore > result.RiskScore {
			result.RiskScore = pattern.RiskScore
		}
	}

	return result, nil
}

// recordFinding folds the finding into the active pattern for its tuple,
// creating one when none exists. Writes are keyed by pattern id, so
// repeated findings for one tuple collapse into a single row.
func (a *Analyzer) recordFinding(ctx context.Context, event *models.SecurityEvent, finding *Finding, recent []models.SecurityEvent) (*models.AttackPattern, error) {
	detail, err := models.MarshalDetail(finding.Detail)
	if err != nil {
		return nil, fmt.Errorf("encode %s detail: %w", finding.AttackType, err)
	}

	score := ScoreRisk(finding.FailedAttempts, recent)

	pattern, err := a.patterns.GetActivePattern(ctx, finding.AttackType, finding.SourceIdentifier, finding.TargetIdentifier)
	switch {
	case errors.Is(err, database.ErrPatternNotFound):
		pattern = &models.AttackPattern{
			ID:               uuid.New(),
			AttackType:       finding.AttackType,
			SourceIdentifier: finding.SourceIdentifier,
			TargetIdentifier: finding.TargetIdentifier,
			OccurrenceCount:  1,
			FirstDetectedAt:  event.CreatedAt,
			IsActive:         true,
		}
	case err != nil:
		return nil, fmt.Errorf("load active pattern: %w", err)
	default:
		pattern.OccurrenceCount++
	}

	pattern.FailedAttempts = finding.FailedAttempts
	pattern.LastDetectedAt = event.CreatedAt
	pattern.RiskScore = score
	pattern.Severity = severityFor(score)
	pattern.Detail = detail

	if err := a.patterns.UpsertPattern(ctx, pattern); err != nil {
		return nil, fmt.Errorf("persist %s pattern: %w", finding.AttackType, err)
	}

	return pattern, nil
}
