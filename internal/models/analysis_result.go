// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package models

import "time"

// RecommendedAction is the engine's suggestion for secondary policy the
// caller may apply independent of blocking.
type RecommendedAction string

const (
	ActionNone    RecommendedAction = "none"
	ActionMonitor RecommendedAction = "monitor"
	ActionCaptcha RecommendedAction = "captcha"
	ActionBlock   RecommendedAction = "block"
)

// AnalysisResult is returned for every recorded login attempt. When several
// heuristics fire for one event it carries the union of detected pattern
// types and the single highest block decision among them.
type AnalysisResult struct {
	IsBlocked        bool              `json:"is_blocked"`
	BlockReason      string            `json:"block_reason,omitempty"`
	LockoutDuration  *time.Duration    `json:"lockout_duration,omitempty"`
	RiskScore        float64           `json:"risk_score"`
	DetectedPatterns []AttackType      `json:"detected_patterns,omitempty"`
	RequiresCaptcha  bool              `json:"requires_captcha"`
	ShouldAlertAdmin bool              `json:"should_alert_admin"`
	Recommended      RecommendedAction `json:"recommended_action"`
}

// BlockedIdentifier describes one currently blocked IP or locked account
// for admin listings.
type BlockedIdentifier struct {
	Identifier string         `json:"identifier"`
	Kind       string         `json:"kind"` // "ip" or "account"
	AttackType AttackType     `json:"attack_type"`
	BlockedAt  time.Time      `json:"blocked_at"`
	Remaining  *time.Duration `json:"remaining,omitempty"` // nil means indefinite
	Reason     string         `json:"reason,omitempty"`
	Actor      string         `json:"actor,omitempty"`
}

// SecurityStats aggregates pattern and block activity over a date range.
type SecurityStats struct {
	From             time.Time          `json:"from"`
	To               time.Time          `json:"to"`
	PatternsByType   map[AttackType]int `json:"patterns_by_type"`
	TotalPatterns    int                `json:"total_patterns"`
	ActivePatterns   int                `json:"active_patterns"`
	BlockedIPs       int                `json:"blocked_ips"`
	LockedAccounts   int                `json:"locked_accounts"`
	FailedAttempts   int                `json:"failed_attempts"`
	AverageRiskScore float64            `json:"average_risk_score"`
}
