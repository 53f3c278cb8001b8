// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package detection

import (
	"context"
	"fmt"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/models"
)

// SequentialDetector flags repeated failures from a single source IP
// inside the detection window. It escalates in two stages: inside the
// band between the captcha and lockout thresholds it votes for a
// CAPTCHA; at the lockout threshold it votes to block the IP instead.
type SequentialDetector struct {
	cfg     *config.SecurityConfig
	history EventHistory
}

// NewSequentialDetector creates the same-IP failure detector.
func NewSequentialDetector(cfg *config.SecurityConfig, history EventHistory) *SequentialDetector {
	return &SequentialDetector{cfg: cfg, history: history}
}

// Type returns the attack type this detector emits.
func (d *SequentialDetector) Type() models.AttackType {
	return models.AttackTypeSequential
}

// Check counts same-IP failures in the detection window, including the
// event under evaluation.
func (d *SequentialDetector) Check(ctx context.Context, event *models.SecurityEvent) (*Finding, error) {
	since := event.CreatedAt.Add(-d.cfg.DetectionWindow)

	count, err := d.history.CountFailuresBySource(ctx, event.SourceIP, since)
	if err != nil {
		return nil, fmt.Errorf("count failures for %s: %w", event.SourceIP, err)
	}

	if count < d.cfg.SequentialThreshold {
		return nil, nil
	}

	return &Finding{
		AttackType:       models.AttackTypeSequential,
		SourceIdentifier: event.SourceIP,
		TargetIdentifier: event.TargetAccount,
		Detail:           &models.SequentialDetail{},
		FailedAttempts:   count,
		RequiresCaptcha:  count >= d.cfg.CaptchaThreshold && count < d.cfg.MaxFailedBeforeLockout,
		BlockIP:          count >= d.cfg.MaxFailedBeforeLockout,
	}, nil
}
