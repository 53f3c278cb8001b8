// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/models"
)

// InsertEvent appends one security event. Events are immutable after insert.
func (db *DB) InsertEvent(ctx context.Context, event *models.SecurityEvent) error {
	var location sql.NullString
	if event.Location != nil {
		raw, err := json.Marshal(event.Location)
		if err != nil {
			return fmt.Errorf("marshal location: %w", err)
		}
		location = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO security_events
			(id, event_type, source_ip, target_account, user_agent, session_id, success, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID.String(),
		string(event.EventType),
		event.SourceIP,
		nullable(event.TargetAccount),
		nullable(event.UserAgent),
		nullable(event.SessionID),
		event.Success,
		location,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}

	return nil
}

// CountFailuresBySource counts failed attempts from one IP since the cutoff.
func (db *DB) CountFailuresBySource(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM security_events
		WHERE source_ip = ? AND success = false AND created_at >= ?`,
		sourceIP, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failures by source: %w", err)
	}

	return count, nil
}

// CountDistinctSourcesForAccount counts the distinct IPs with failed
// attempts against one account since the cutoff.
func (db *DB) CountDistinctSourcesForAccount(ctx context.Context, account string, since time.Time) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT source_ip) FROM security_events
		WHERE target_account = ? AND success = false AND created_at >= ?`,
		account, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count distinct sources: %w", err)
	}

	return count, nil
}

// RecentFailuresBySource returns failed attempts from one IP since the
// cutoff, newest first, capped at limit.
func (db *DB) RecentFailuresBySource(ctx context.Context, sourceIP string, since time.Time, limit int) ([]models.SecurityEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, event_type, source_ip, target_account, user_agent, session_id, success, location, created_at
		FROM security_events
		WHERE source_ip = ? AND success = false AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`,
		sourceIP, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// PurgeEventsBefore deletes events older than the cutoff and returns the
// number removed.
func (db *DB) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM security_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge events rows affected: %w", err)
	}

	return purged, nil
}

// CountFailuresBetween counts failed attempts inside a date range, for
// statistics queries.
func (db *DB) CountFailuresBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM security_events
		WHERE success = false AND created_at >= ? AND created_at < ?`,
		from, to,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failures between: %w", err)
	}

	return count, nil
}

// scanEvents reads all rows into SecurityEvent structs.
func scanEvents(rows *sql.Rows) ([]models.SecurityEvent, error) {
	var events []models.SecurityEvent

	for rows.Next() {
		var (
			event         models.SecurityEvent
			id            string
			eventType     string
			targetAccount sql.NullString
			userAgent     sql.NullString
			sessionID     sql.NullString
			location      sql.NullString
		)

		if err := rows.Scan(&id, &eventType, &event.SourceIP, &targetAccount,
			&userAgent, &sessionID, &event.Success, &location, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		event.ID = parsed
		event.EventType = models.EventType(eventType)
		event.TargetAccount = targetAccount.String
		event.UserAgent = userAgent.String
		event.SessionID = sessionID.String

		if location.Valid && location.String != "" {
			var loc models.Location
			if err := json.Unmarshal([]byte(location.String), &loc); err != nil {
				return nil, fmt.Errorf("unmarshal location: %w", err)
			}
			event.Location = &loc
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}

	return events, nil
}

// nullable converts an empty string to SQL NULL.
func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
