// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package detection

import (
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/internal/models"
)

// burst builds n failures spaced by gap, newest first.
func burst(n int, gap time.Duration, country string) []models.SecurityEvent {
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	events := make([]models.SecurityEvent, n)
	for i := range events {
		events[i] = models.SecurityEvent{
			EventType: models.EventTypeLoginFailed,
			CreatedAt: base.Add(-time.Duration(i) * gap),
		}
		if country != "" {
			events[i].Location = &models.Location{Country: country}
		}
	}
	return events
}

func TestScoreRisk_BaseSaturatesAt50(t *testing.T) {
	if got := ScoreRisk(3, nil); got != 30 {
		t.Errorf("ScoreRisk(3) = %v, want 30", got)
	}
	if got := ScoreRisk(5, nil); got != 50 {
		t.Errorf("ScoreRisk(5) = %v, want 50", got)
	}
	if got := ScoreRisk(40, nil); got != 50 {
		t.Errorf("ScoreRisk(40) = %v, want 50 (saturated)", got)
	}
}

func TestScoreRisk_FastTimingBonus(t *testing.T) {
	got := ScoreRisk(5, burst(6, 10*time.Second, ""))
	if got != 70 {
		t.Errorf("fast burst score = %v, want 70 (50 base + 20 timing)", got)
	}
}

func TestScoreRisk_ModerateTimingBonus(t *testing.T) {
	got := ScoreRisk(5, burst(6, 45*time.Second, ""))
	if got != 60 {
		t.Errorf("moderate burst score = %v, want 60 (50 base + 10 timing)", got)
	}
}

func TestScoreRisk_SlowTimingNoBonus(t *testing.T) {
	got := ScoreRisk(5, burst(6, 5*time.Minute, ""))
	if got != 50 {
		t.Errorf("slow burst score = %v, want 50", got)
	}
}

func TestScoreRisk_GeoDiversityBonus(t *testing.T) {
	events := burst(4, 5*time.Minute, "Germany")
	events[0].Location = &models.Location{Country: "Brazil"}

	got := ScoreRisk(5, events)
	if got != 65 {
		t.Errorf("diverse-geo score = %v, want 65 (50 base + 15 geo)", got)
	}
}

func TestScoreRisk_ClampsAt100(t *testing.T) {
	events := burst(6, 5*time.Second, "Germany")
	events[0].Location = &models.Location{Country: "Brazil"}

	got := ScoreRisk(50, events)
	if got != 85 {
		t.Errorf("score = %v, want 85 (50 + 20 + 15)", got)
	}
	if got > 100 {
		t.Errorf("score %v exceeds 100", got)
	}
}

func TestScoreRisk_SingleEventNoTiming(t *testing.T) {
	got := ScoreRisk(1, burst(1, 0, ""))
	if got != 10 {
		t.Errorf("single-failure score = %v, want 10", got)
	}
}

func TestSeverityFor(t *testing.T) {
	cases := []struct {
		score float64
		want  models.Severity
	}{
		{0, models.SeverityLow},
		{39.9, models.SeverityLow},
		{40, models.SeverityMedium},
		{69.9, models.SeverityMedium},
		{70, models.SeverityHigh},
		{100, models.SeverityHigh},
	}
	for _, tc := range cases {
		if got := severityFor(tc.score); got != tc.want {
			t.Errorf("severityFor(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}
