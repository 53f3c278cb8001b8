// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package detection

import (
	"time"

	"github.com/gatewarden/gatewarden/internal/models"
)

// riskSampleSize bounds how many recent failures feed the timing and
// geography components of the score.
const riskSampleSize = 20

// ScoreRisk computes a [0,100] risk score for a pattern.
//
// The base component grows 10 points per counted failure and saturates at
// 50; timing and geography push a fast or geographically dispersed attack
// past what volume alone can reach. Recent failures are expected newest
// first, as RecentFailuresBySource returns them.
func ScoreRisk(failedAttempts int, recent []models.SecurityEvent) float64 {
	score := float64(failedAttempts) * 10
	if score > 50 {
		score = 50
	}

	score += timingBonus(recent)

	if distinctCountries(recent) >= 2 {
		score += 15
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// timingBonus rewards short average gaps between consecutive failures.
func timingBonus(recent []models.SecurityEvent) float64 {
	if len(recent) < 2 {
		return 0
	}

	var total time.Duration
	gaps := 0
	for i := 0; i < len(recent)-1 && i < riskSampleSize-1; i++ {
		gap := recent[i].CreatedAt.Sub(recent[i+1].CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		total += gap
		gaps++
	}

	average := total / time.Duration(gaps)
	switch {
	case average < 30*time.Second:
		return 20
	case average < time.Minute:
		return 10
	default:
		return 0
	}
}

// distinctCountries counts distinct non-empty countries in the sample.
func distinctCountries(recent []models.SecurityEvent) int {
	countries := make(map[string]struct{})
	for i, event := range recent {
		if i >= riskSampleSize {
			break
		}
		if event.Location != nil && event.Location.Country != "" {
			countries[event.Location.Country] = struct{}{}
		}
	}
	return len(countries)
}

// severityFor maps a risk score to the pattern severity.
func severityFor(score float64) models.Severity {
	switch {
	case score < 40:
		return models.SeverityLow
	case score < 70:
		return models.SeverityMedium
	default:
		return models.SeverityHigh
	}
}
