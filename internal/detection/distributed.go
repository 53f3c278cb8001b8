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

// DistributedDetector flags one account attacked from many distinct source
// IPs inside the detection window. No single IP is the offender, so the
// pattern's source is the multiple-sources sentinel and the mitigation is
// an account lock rather than an IP block.
type DistributedDetector struct {
	cfg     *config.SecurityConfig
	history EventHistory
}

// NewDistributedDetector creates the many-sources-one-account detector.
func NewDistributedDetector(cfg *config.SecurityConfig, history EventHistory) *DistributedDetector {
	return &DistributedDetector{cfg: cfg, history: history}
}

// Type returns the attack type this detector emits.
func (d *DistributedDetector) Type() models.AttackType {
	return models.AttackTypeDistributed
}

// Check counts distinct failing sources against the target account.
func (d *DistributedDetector) Check(ctx context.Context, event *models.SecurityEvent) (*Finding, error) {
	if event.TargetAccount == "" {
		return nil, nil
	}

	since := event.CreatedAt.Add(-d.cfg.DetectionWindow)

	sources, err := d.history.CountDistinctSourcesForAccount(ctx, event.TargetAccount, since)
	if err != nil {
		return nil, fmt.Errorf("count sources for %s: %w", event.TargetAccount, err)
	}

	if sources < d.cfg.DistributedThreshold {
		return nil, nil
	}

	return &Finding{
		AttackType:       models.AttackTypeDistributed,
		SourceIdentifier: models.MultipleSourcesSentinel,
		TargetIdentifier: event.TargetAccount,
		Detail:           &models.DistributedDetail{SourceCount: sources},
		FailedAttempts:   sources,
		LockAccount:      true,
	}, nil
}
