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

// VelocityDetector flags bursts: same-IP failures arriving faster than a
// human retries a password. It fires well before the sequential detector's
// lockout stage and only votes for a CAPTCHA, since a burst alone does not
// prove abuse.
type VelocityDetector struct {
	cfg     *config.SecurityConfig
	history EventHistory
}

// NewVelocityDetector creates the burst detector.
func NewVelocityDetector(cfg *config.SecurityConfig, history EventHistory) *VelocityDetector {
	return &VelocityDetector{cfg: cfg, history: history}
}

// Type returns the attack type this detector emits.
func (d *VelocityDetector) Type() models.AttackType {
	return models.AttackTypeVelocity
}

// Check counts same-IP failures inside the narrow velocity window.
func (d *VelocityDetector) Check(ctx context.Context, event *models.SecurityEvent) (*Finding, error) {
	since := event.CreatedAt.Add(-d.cfg.VelocityWindow)

	count, err := d.history.CountFailuresBySource(ctx, event.SourceIP, since)
	if err != nil {
		return nil, fmt.Errorf("count burst failures for %s: %w", event.SourceIP, err)
	}

	if count < d.cfg.VelocityThreshold {
		return nil, nil
	}

	return &Finding{
		AttackType:       models.AttackTypeVelocity,
		SourceIdentifier: event.SourceIP,
		TargetIdentifier: event.TargetAccount,
		Detail: &models.VelocityDetail{
			AttemptCount:  count,
			WindowSeconds: int(d.cfg.VelocityWindow.Seconds()),
		},
		FailedAttempts:  count,
		RequiresCaptcha: true,
	}, nil
}
