// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package database

import "fmt"

// createSchema creates the core tables and indexes.
//
// security_events is append-only; rows are deleted solely by the retention
// sweep. attack_patterns rows are mutated through the upsert below (counters,
// block state, resolution metadata) and carry their block window as stored
// timestamps so the effective state is always derivable at read time.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS security_events (
			id UUID PRIMARY KEY,
			event_type TEXT NOT NULL,
			source_ip TEXT NOT NULL,
			target_account TEXT,
			user_agent TEXT,
			session_id TEXT,
			success BOOLEAN NOT NULL,
			location TEXT,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_source_created
			ON security_events(source_ip, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_account_created
			ON security_events(target_account, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created
			ON security_events(created_at)`,

		`CREATE TABLE IF NOT EXISTS attack_patterns (
			id UUID PRIMARY KEY,
			attack_type TEXT NOT NULL,
			source_identifier TEXT NOT NULL,
			target_identifier TEXT,
			severity TEXT NOT NULL,
			failed_attempts INTEGER NOT NULL,
			occurrence_count INTEGER NOT NULL,
			risk_score DOUBLE NOT NULL,
			detail TEXT,
			first_detected_at TIMESTAMP NOT NULL,
			last_detected_at TIMESTAMP NOT NULL,
			is_active BOOLEAN NOT NULL,
			is_blocked BOOLEAN NOT NULL,
			blocked_at TIMESTAMP,
			block_duration_ms BIGINT,
			block_reason VARCHAR,
			block_actor VARCHAR,
			resolved_at TIMESTAMP,
			resolved_by TEXT,
			resolution_notes TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_patterns_source
			ON attack_patterns(source_identifier, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_target
			ON attack_patterns(target_identifier, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_tuple
			ON attack_patterns(attack_type, source_identifier, target_identifier)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
