// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/models"
)

const patternSelectColumns = `
	id, attack_type, source_identifier, target_identifier, severity,
	failed_attempts, occurrence_count, risk_score, detail,
	first_detected_at, last_detected_at, is_active, is_blocked,
	blocked_at, block_duration_ms, block_reason, block_actor,
	resolved_at, resolved_by, resolution_notes`

// GetActivePattern returns the active pattern for a (type, source, target)
// tuple, or ErrPatternNotFound.
func (db *DB) GetActivePattern(ctx context.Context, attackType models.AttackType, source, target string) (*models.AttackPattern, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+patternSelectColumns+`
		FROM attack_patterns
		WHERE attack_type = ? AND source_identifier = ?
		  AND COALESCE(target_identifier, '') = ?
		  AND is_active = true
		ORDER BY last_detected_at DESC
		LIMIT 1`,
		string(attackType), source, target,
	)

	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatternNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active pattern: %w", err)
	}

	return pattern, nil
}

// UpsertPattern inserts the pattern, or updates every mutable column when a
// row with the same id already exists. Detectors carry the id of the active
// pattern they read, so the common concurrent case collapses into one row;
// two simultaneous first detections may still briefly create duplicates,
// which subsequent reads and the sweep reconcile.
func (db *DB) UpsertPattern(ctx context.Context, p *models.AttackPattern) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO attack_patterns (`+patternSelectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			severity = excluded.severity,
			failed_attempts = excluded.failed_attempts,
			occurrence_count = excluded.occurrence_count,
			risk_score = excluded.risk_score,
			detail = excluded.detail,
			last_detected_at = excluded.last_detected_at,
			is_active = excluded.is_active,
			is_blocked = excluded.is_blocked,
			blocked_at = excluded.blocked_at,
			block_duration_ms = excluded.block_duration_ms,
			block_reason = excluded.block_reason,
			block_actor = excluded.block_actor,
			resolved_at = excluded.resolved_at,
			resolved_by = excluded.resolved_by,
			resolution_notes = excluded.resolution_notes`,
		p.ID.String(),
		string(p.AttackType),
		p.SourceIdentifier,
		nullable(p.TargetIdentifier),
		string(p.Severity),
		p.FailedAttempts,
		p.OccurrenceCount,
		p.RiskScore,
		nullable(string(p.Detail)),
		p.FirstDetectedAt,
		p.LastDetectedAt,
		p.IsActive,
		p.IsBlocked,
		nullableTime(p.BlockedAt),
		nullableDurationMS(p.BlockDuration),
		nullable(p.BlockReason),
		nullable(p.BlockActor),
		nullableTime(p.ResolvedAt),
		nullable(p.ResolvedBy),
		nullable(p.ResolutionNotes),
	)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}

	return nil
}

// FindActiveBlockedBySource returns active, marked-blocked patterns whose
// source identifier is the given IP. Callers evaluate the effective block
// window in-process.
func (db *DB) FindActiveBlockedBySource(ctx context.Context, ip string) ([]models.AttackPattern, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+patternSelectColumns+`
		FROM attack_patterns
		WHERE is_active = true AND is_blocked = true
		  AND source_identifier = ?`,
		ip,
	)
	if err != nil {
		return nil, fmt.Errorf("find blocked patterns by source: %w", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// FindActiveBlockedByTarget returns active, marked-blocked distributed
// patterns targeting the given account. Only distributed patterns lock an
// account; sequential and velocity patterns name the attacked account as
// their target without that ever locking the account itself.
func (db *DB) FindActiveBlockedByTarget(ctx context.Context, account string) ([]models.AttackPattern, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+patternSelectColumns+`
		FROM attack_patterns
		WHERE is_active = true AND is_blocked = true
		  AND attack_type = ? AND target_identifier = ?`,
		string(models.AttackTypeDistributed), account,
	)
	if err != nil {
		return nil, fmt.Errorf("find blocked patterns by target: %w", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// FindActiveBySubject returns all active patterns naming the identifier as
// source or target, blocked or not. Used to resolve threats on a successful
// login.
func (db *DB) FindActiveBySubject(ctx context.Context, identifier string) ([]models.AttackPattern, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+patternSelectColumns+`
		FROM attack_patterns
		WHERE is_active = true
		  AND (source_identifier = ? OR target_identifier = ?)`,
		identifier, identifier,
	)
	if err != nil {
		return nil, fmt.Errorf("find active patterns by subject: %w", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// ListActiveBlocked returns every active, marked-blocked pattern. The sweep
// evaluates each block window in-process and expires the elapsed ones.
func (db *DB) ListActiveBlocked(ctx context.Context) ([]models.AttackPattern, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+patternSelectColumns+`
		FROM attack_patterns
		WHERE is_active = true AND is_blocked = true`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active blocked patterns: %w", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// PatternFilter narrows ListPatterns results.
type PatternFilter struct {
	AttackType *models.AttackType
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ListPatterns returns patterns for admin listings, newest first.
func (db *DB) ListPatterns(ctx context.Context, filter PatternFilter) ([]models.AttackPattern, error) {
	query := `SELECT ` + patternSelectColumns + ` FROM attack_patterns WHERE 1=1`
	args := []interface{}{}

	if filter.ActiveOnly {
		query += ` AND is_active = true`
	}
	if filter.AttackType != nil {
		query += ` AND attack_type = ?`
		args = append(args, string(*filter.AttackType))
	}

	query += ` ORDER BY last_detected_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	return scanPatterns(rows)
}

// PatternStats aggregates pattern activity over a date range.
func (db *DB) PatternStats(ctx context.Context, from, to time.Time) (*models.SecurityStats, error) {
	stats := &models.SecurityStats{
		From:           from,
		To:             to,
		PatternsByType: make(map[models.AttackType]int),
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT attack_type, COUNT(*),
		       SUM(CASE WHEN is_active THEN 1 ELSE 0 END),
		       AVG(risk_score)
		FROM attack_patterns
		WHERE last_detected_at >= ? AND last_detected_at < ?
		GROUP BY attack_type`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("pattern stats: %w", err)
	}
	defer rows.Close()

	var weightedScore float64
	for rows.Next() {
		var (
			attackType string
			count      int
			active     int
			avgScore   sql.NullFloat64
		)
		if err := rows.Scan(&attackType, &count, &active, &avgScore); err != nil {
			return nil, fmt.Errorf("scan pattern stats: %w", err)
		}

		stats.PatternsByType[models.AttackType(attackType)] = count
		stats.TotalPatterns += count
		stats.ActivePatterns += active
		weightedScore += avgScore.Float64 * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pattern stats: %w", err)
	}

	if stats.TotalPatterns > 0 {
		stats.AverageRiskScore = weightedScore / float64(stats.TotalPatterns)
	}

	// Count currently blocked identifiers by kind. Only distributed
	// patterns lock an account; every other blocked pattern is an IP
	// block, whether or not it records the attacked account as target.
	err = db.conn.QueryRowContext(ctx, `
		SELECT
			SUM(CASE WHEN attack_type <> ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN attack_type = ? THEN 1 ELSE 0 END)
		FROM attack_patterns
		WHERE is_active = true AND is_blocked = true`,
		string(models.AttackTypeDistributed), string(models.AttackTypeDistributed),
	).Scan(&nullInt{&stats.BlockedIPs}, &nullInt{&stats.LockedAccounts})
	if err != nil {
		return nil, fmt.Errorf("blocked totals: %w", err)
	}

	return stats, nil
}

// nullInt scans a nullable integer into an int, treating NULL as zero.
type nullInt struct {
	dest *int
}

// Scan implements sql.Scanner.
func (n *nullInt) Scan(value interface{}) error {
	if value == nil {
		*n.dest = 0
		return nil
	}

	switch v := value.(type) {
	case int64:
		*n.dest = int(v)
	case int32:
		*n.dest = int(v)
	case float64:
		*n.dest = int(v)
	default:
		return fmt.Errorf("unsupported scan type %T", value)
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPattern reads one row into an AttackPattern.
func scanPattern(scanner rowScanner) (*models.AttackPattern, error) {
	var (
		p               models.AttackPattern
		id              string
		attackType      string
		target          sql.NullString
		severity        string
		detail          sql.NullString
		blockedAt       sql.NullTime
		blockDurationMS sql.NullInt64
		blockReason     sql.NullString
		blockActor      sql.NullString
		resolvedAt      sql.NullTime
		resolvedBy      sql.NullString
		resolutionNotes sql.NullString
	)

	err := scanner.Scan(&id, &attackType, &p.SourceIdentifier, &target, &severity,
		&p.FailedAttempts, &p.OccurrenceCount, &p.RiskScore, &detail,
		&p.FirstDetectedAt, &p.LastDetectedAt, &p.IsActive, &p.IsBlocked,
		&blockedAt, &blockDurationMS, &blockReason, &blockActor,
		&resolvedAt, &resolvedBy, &resolutionNotes)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse pattern id: %w", err)
	}
	p.ID = parsed
	p.AttackType = models.AttackType(attackType)
	p.TargetIdentifier = target.String
	p.Severity = models.Severity(severity)
	if detail.Valid {
		p.Detail = []byte(detail.String)
	}
	if blockedAt.Valid {
		t := blockedAt.Time
		p.BlockedAt = &t
	}
	if blockDurationMS.Valid {
		d := time.Duration(blockDurationMS.Int64) * time.Millisecond
		p.BlockDuration = &d
	}
	p.BlockReason = blockReason.String
	p.BlockActor = blockActor.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	p.ResolvedBy = resolvedBy.String
	p.ResolutionNotes = resolutionNotes.String

	return &p, nil
}

// scanPatterns reads all rows into AttackPattern structs.
func scanPatterns(rows *sql.Rows) ([]models.AttackPattern, error) {
	var patterns []models.AttackPattern

	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patterns: %w", err)
	}

	return patterns, nil
}

// nullableTime converts a *time.Time to its SQL representation.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullableDurationMS converts a *time.Duration to nullable milliseconds.
func nullableDurationMS(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: d.Milliseconds(), Valid: true}
}
