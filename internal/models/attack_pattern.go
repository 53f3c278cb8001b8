// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// AttackType identifies the heuristic that produced a pattern.
type AttackType string

const (
	// AttackTypeSequential is many failures from one source IP.
	AttackTypeSequential AttackType = "sequential"

	// AttackTypeDistributed is failures from many sources against one account.
	AttackTypeDistributed AttackType = "distributed"

	// AttackTypeVelocity is failures arriving faster than the velocity window allows.
	AttackTypeVelocity AttackType = "velocity"

	// AttackTypeDictionary is a recognized pattern type for dictionary attacks.
	// No heuristic emits it automatically; it exists so admin tooling and
	// statistics handle imported or manually classified patterns uniformly.
	AttackTypeDictionary AttackType = "dictionary"
)

// Severity indicates how confident the engine is that a pattern is abuse.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// MultipleSourcesSentinel is recorded as the source identifier of a
// distributed pattern, where no single IP is the offender.
const MultipleSourcesSentinel = "multiple"

// Actor sentinels distinguishing system-applied mutations from manual ones.
const (
	ActorSystem = "SYSTEM"
	ActorAdmin  = "ADMIN_ACTION"
)

// AttackPattern is the aggregated, persisted evidence that a detection
// heuristic has fired for a (type, source, target) tuple.
//
// The effective block state is always derived from IsBlocked, BlockedAt,
// BlockDuration and the current time via EffectivelyBlocked; it is never
// stored as a separate flag, so the durable record and the block window
// cannot drift apart.
type AttackPattern struct {
	ID               uuid.UUID      `json:"id"`
	AttackType       AttackType     `json:"attack_type"`
	SourceIdentifier string         `json:"source_identifier"`
	TargetIdentifier string         `json:"target_identifier,omitempty"`
	Severity         Severity       `json:"severity"`
	FailedAttempts   int            `json:"failed_attempts"`
	OccurrenceCount  int            `json:"occurrence_count"`
	RiskScore        float64        `json:"risk_score"` // [0,100]
	Detail           json.RawMessage `json:"detail,omitempty"` // tagged variant, see MarshalDetail
	FirstDetectedAt  time.Time      `json:"first_detected_at"`
	LastDetectedAt   time.Time      `json:"last_detected_at"`
	IsActive         bool           `json:"is_active"`
	IsBlocked        bool           `json:"is_blocked"`
	BlockedAt        *time.Time     `json:"blocked_at,omitempty"`
	BlockDuration    *time.Duration `json:"block_duration,omitempty"` // nil means indefinite
	BlockReason      string         `json:"block_reason,omitempty"`
	BlockActor       string         `json:"block_actor,omitempty"` // ActorSystem or ActorAdmin
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy       string         `json:"resolved_by,omitempty"`
	ResolutionNotes  string         `json:"resolution_notes,omitempty"`
}

// EffectivelyBlocked reports whether the pattern's block is in force at
// the given instant. A nil BlockDuration is an indefinite block.
func (p *AttackPattern) EffectivelyBlocked(now time.Time) bool {
	if !p.IsActive || !p.IsBlocked || p.BlockedAt == nil {
		return false
	}
	if p.BlockDuration == nil {
		return true
	}
	return now.Before(p.BlockedAt.Add(*p.BlockDuration))
}

// RemainingBlock returns the time left on the block window at the given
// instant, or nil if the pattern is not effectively blocked. Indefinite
// blocks return a nil duration with ok set.
func (p *AttackPattern) RemainingBlock(now time.Time) (remaining *time.Duration, ok bool) {
	if !p.EffectivelyBlocked(now) {
		return nil, false
	}
	if p.BlockDuration == nil {
		return nil, true
	}
	d := p.BlockedAt.Add(*p.BlockDuration).Sub(now)
	return &d, true
}

// Block starts a block window. Callers never invoke this on an
// effectively blocked pattern; the lockout manager treats a repeat block
// as a no-op rather than restarting a live window.
func (p *AttackPattern) Block(now time.Time, duration *time.Duration, reason, actor string) {
	p.IsBlocked = true
	p.BlockedAt = &now
	p.BlockDuration = duration
	p.BlockReason = reason
	p.BlockActor = actor
}

// Resolve transitions the pattern to its terminal resolved state.
// A resolved pattern is never reactivated; fresh detections create a
// new pattern record instead.
func (p *AttackPattern) Resolve(now time.Time, by, notes string) {
	p.IsActive = false
	p.IsBlocked = false
	p.ResolvedAt = &now
	p.ResolvedBy = by
	p.ResolutionNotes = notes
}
