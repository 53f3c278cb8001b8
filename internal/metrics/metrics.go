// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package metrics exposes Prometheus collectors for the engine:
// attempt throughput, detection outcomes, block lifecycle, cache
// efficiency, sweep results and collaborator health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attempt processing

	AttemptsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_attempts_total",
			Help: "Total login attempts processed, by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "blocked", "rejected"
	)

	AttemptProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatewarden_attempt_processing_seconds",
			Help:    "Time spent processing one login attempt",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewarden_events_dropped_total",
			Help: "Security events that could not be persisted (swallowed, fail-open)",
		},
	)

	// Detection

	PatternsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_patterns_detected_total",
			Help: "Attack patterns detected, by attack type",
		},
		[]string{"attack_type"},
	)

	DetectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_detection_errors_total",
			Help: "Detector evaluation errors, by attack type",
		},
		[]string{"attack_type"},
	)

	RiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatewarden_risk_score",
			Help:    "Risk scores assigned to failed attempts",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// Block lifecycle

	BlocksApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_blocks_applied_total",
			Help: "Blocks and lockouts applied, by kind and actor class",
		},
		[]string{"kind", "actor"}, // kind: "ip"|"account", actor: "system"|"admin"
	)

	BlocksLifted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_blocks_lifted_total",
			Help: "Blocks and lockouts lifted, by kind and cause",
		},
		[]string{"kind", "cause"}, // cause: "expired"|"manual"|"resolved"
	)

	// Block-state cache

	BlockCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewarden_block_cache_hits_total",
			Help: "Block-state projection cache hits",
		},
	)

	BlockCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewarden_block_cache_misses_total",
			Help: "Block-state projection cache misses",
		},
	)

	StoreFailOpen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewarden_store_fail_open_total",
			Help: "Block-state checks answered not-blocked because the store was unreachable",
		},
	)

	// Reconciler

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_sweep_runs_total",
			Help: "Cleanup sweep executions, by duty and result",
		},
		[]string{"duty", "result"}, // duty: "expire"|"purge", result: "ok"|"error"
	)

	SweepExpiredBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewarden_sweep_expired_blocks_total",
			Help: "Blocks expired by the cleanup sweep",
		},
	)

	SweepPurgedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewarden_sweep_purged_events_total",
			Help: "Security events purged past the retention window",
		},
	)

	// Geolocation collaborator

	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_geo_lookups_total",
			Help: "Geolocation lookups, by result",
		},
		[]string{"result"}, // "hit", "miss", "error", "rejected"
	)

	GeoBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatewarden_geo_breaker_state",
			Help: "Geolocation circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
