// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package engine is the facade the API layer talks to. It sequences the
// per-attempt pipeline: pre-check, record, detect, mitigate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/detection"
	"github.com/gatewarden/gatewarden/internal/events"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/models"
)

// ErrInvalidAttempt rejects attempts missing a source IP.
var ErrInvalidAttempt = errors.New("engine: attempt requires a source ip")

// Recorder persists attempts as security events.
type Recorder interface {
	Record(ctx context.Context, attempt events.Attempt) *models.SecurityEvent
}

// Analyzer runs the detection heuristics on a failed attempt.
type Analyzer interface {
	Analyze(ctx context.Context, event *models.SecurityEvent) (*detection.Result, error)
}

// Checker answers effective block state questions.
type Checker interface {
	IsIPBlocked(ctx context.Context, ip string) bool
	IsAccountLocked(ctx context.Context, account string) bool
	RemainingLockout(ctx context.Context, identifier string) (*time.Duration, bool)
}

// Locker applies and lifts blocks.
type Locker interface {
	BlockIP(ctx context.Context, ip string, duration *time.Duration, reason, actor string) error
	UnblockIP(ctx context.Context, ip string, actor string) error
	LockAccount(ctx context.Context, account string, duration *time.Duration, reason, actor string) error
	UnlockAccount(ctx context.Context, account string, actor string) error
	ResolveOnSuccess(ctx context.Context, ip, account string) error
}

// AdminStore is the slice of the durable store serving admin queries.
type AdminStore interface {
	ListPatterns(ctx context.Context, filter database.PatternFilter) ([]models.AttackPattern, error)
	ListActiveBlocked(ctx context.Context) ([]models.AttackPattern, error)
	PatternStats(ctx context.Context, from, to time.Time) (*models.SecurityStats, error)
	CountFailuresBetween(ctx context.Context, from, to time.Time) (int, error)
}

// Engine coordinates the per-attempt pipeline and the admin operations.
type Engine struct {
	cfg      *config.SecurityConfig
	recorder Recorder
	analyzer Analyzer
	checker  Checker
	locker   Locker
	store    AdminStore
	now      func() time.Time
}

// New wires the engine.
func New(cfg *config.SecurityConfig, recorder Recorder, analyzer Analyzer, checker Checker, locker Locker, store AdminStore) *Engine {
	return &Engine{
		cfg:      cfg,
		recorder: recorder,
		analyzer: analyzer,
		checker:  checker,
		locker:   locker,
		store:    store,
		now:      time.Now,
	}
}

// RecordLoginAttempt is the hot path, called once per observed login
// attempt. Every attempt is recorded, including ones arriving while the
// source is already blocked; detection only runs for failures.
func (e *Engine) RecordLoginAttempt(ctx context.Context, attempt events.Attempt) (*models.AnalysisResult, error) {
	started := e.now()
	defer func() {
		metrics.AttemptProcessingDuration.Observe(e.now().Sub(started).Seconds())
	}()

	if attempt.SourceIP == "" {
		metrics.AttemptsProcessed.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidAttempt
	}

	if !e.cfg.Enabled {
		e.recorder.Record(ctx, attempt)
		metrics.AttemptsProcessed.WithLabelValues("disabled").Inc()
		return &models.AnalysisResult{Recommended: models.ActionNone}, nil
	}

	if result := e.preBlocked(ctx, attempt); result != nil {
		e.recorder.Record(ctx, attempt)
		metrics.AttemptsProcessed.WithLabelValues("blocked").Inc()
		return result, nil
	}

	event := e.recorder.Record(ctx, attempt)

	if attempt.Success {
		if err := e.locker.ResolveOnSuccess(ctx, attempt.SourceIP, attempt.TargetAccount); err != nil {
			return nil, fmt.Errorf("resolve on success: %w", err)
		}
		metrics.AttemptsProcessed.WithLabelValues("success").Inc()
		return &models.AnalysisResult{Recommended: models.ActionNone}, nil
	}

	detected, err := e.analyzer.Analyze(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("analyze attempt: %w", err)
	}

	result, err := e.mitigate(ctx, attempt, detected)
	if err != nil {
		return nil, err
	}

	metrics.AttemptsProcessed.WithLabelValues("failure").Inc()
	return result, nil
}

// preBlocked returns the blocked result when the attempt's IP or account
// is already inside a block window, nil otherwise.
func (e *Engine) preBlocked(ctx context.Context, attempt events.Attempt) *models.AnalysisResult {
	var reason, identifier string

	switch {
	case e.checker.IsIPBlocked(ctx, attempt.SourceIP):
		reason = "source ip is blocked"
		identifier = attempt.SourceIP
	case attempt.TargetAccount != "" && e.checker.IsAccountLocked(ctx, attempt.TargetAccount):
		reason = "account is locked"
		identifier = attempt.TargetAccount
	default:
		return nil
	}

	result := &models.AnalysisResult{
		IsBlocked:   true,
		BlockReason: reason,
		Recommended: models.ActionBlock,
	}
	if remaining, ok := e.checker.RemainingLockout(ctx, identifier); ok {
		result.LockoutDuration = remaining
	}
	return result
}

// mitigate applies the union verdict of the detectors and shapes the
// caller-facing result.
func (e *Engine) mitigate(ctx context.Context, attempt events.Attempt, detected *detection.Result) (*models.AnalysisResult, error) {
	result := &models.AnalysisResult{
		RiskScore:        detected.RiskScore,
		DetectedPatterns: detected.Types,
		RequiresCaptcha:  detected.RequiresCaptcha,
		Recommended:      models.ActionNone,
	}

	if detected.Detected() {
		result.Recommended = models.ActionMonitor
	}
	if detected.RequiresCaptcha {
		result.Recommended = models.ActionCaptcha
	}

	if detected.BlockIP {
		duration := e.cfg.IPBlockDuration
		reason := "too many failed attempts"
		if err := e.locker.BlockIP(ctx, attempt.SourceIP, &duration, reason, models.ActorSystem); err != nil {
			return nil, fmt.Errorf("block ip: %w", err)
		}
		result.IsBlocked = true
		result.BlockReason = reason
		result.LockoutDuration = &duration
	}

	if detected.LockAccount && attempt.TargetAccount != "" {
		duration := e.cfg.AccountLockoutDuration
		reason := "distributed attack on account"
		if err := e.locker.LockAccount(ctx, attempt.TargetAccount, &duration, reason, models.ActorSystem); err != nil {
			return nil, fmt.Errorf("lock account: %w", err)
		}
		result.IsBlocked = true
		if result.BlockReason == "" {
			result.BlockReason = reason
		}
		if result.LockoutDuration == nil {
			result.LockoutDuration = &duration
		}
	}

	if result.IsBlocked {
		// A blocked caller is past challenges; captcha and block are
		// mutually exclusive verdicts.
		result.Recommended = models.ActionBlock
		result.RequiresCaptcha = false
	}
	result.ShouldAlertAdmin = result.IsBlocked || detected.RiskScore >= 70

	return result, nil
}

// BlockIP applies an admin IP block.
func (e *Engine) BlockIP(ctx context.Context, ip string, duration *time.Duration, reason string) error {
	return e.locker.BlockIP(ctx, ip, duration, reason, models.ActorAdmin)
}

// UnblockIP lifts an admin or detected IP block.
func (e *Engine) UnblockIP(ctx context.Context, ip string) error {
	return e.locker.UnblockIP(ctx, ip, models.ActorAdmin)
}

// LockAccount applies an admin account lock.
func (e *Engine) LockAccount(ctx context.Context, account string, duration *time.Duration, reason string) error {
	return e.locker.LockAccount(ctx, account, duration, reason, models.ActorAdmin)
}

// UnlockAccount lifts an admin or detected account lock.
func (e *Engine) UnlockAccount(ctx context.Context, account string) error {
	return e.locker.UnlockAccount(ctx, account, models.ActorAdmin)
}

// ListPatterns returns patterns for admin listings.
func (e *Engine) ListPatterns(ctx context.Context, filter database.PatternFilter) ([]models.AttackPattern, error) {
	return e.store.ListPatterns(ctx, filter)
}

// ListBlocked returns every identifier currently inside a block window.
// Patterns whose window elapsed but which the sweep has not retired yet
// are filtered out here, so the listing never shows a stale block.
func (e *Engine) ListBlocked(ctx context.Context) ([]models.BlockedIdentifier, error) {
	patterns, err := e.store.ListActiveBlocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}

	now := e.now()
	blocked := make([]models.BlockedIdentifier, 0, len(patterns))
	for i := range patterns {
		pattern := &patterns[i]
		remaining, ok := pattern.RemainingBlock(now)
		if !ok {
			continue
		}

		identifier := pattern.SourceIdentifier
		kind := "ip"
		if pattern.AttackType == models.AttackTypeDistributed {
			identifier = pattern.TargetIdentifier
			kind = "account"
		}

		blocked = append(blocked, models.BlockedIdentifier{
			Identifier: identifier,
			Kind:       kind,
			AttackType: pattern.AttackType,
			BlockedAt:  *pattern.BlockedAt,
			Remaining:  remaining,
			Reason:     pattern.BlockReason,
			Actor:      pattern.BlockActor,
		})
	}

	return blocked, nil
}

// Stats aggregates activity over a date range.
func (e *Engine) Stats(ctx context.Context, from, to time.Time) (*models.SecurityStats, error) {
	stats, err := e.store.PatternStats(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("pattern stats: %w", err)
	}

	failures, err := e.store.CountFailuresBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count failures: %w", err)
	}
	stats.FailedAttempts = failures

	return stats, nil
}
