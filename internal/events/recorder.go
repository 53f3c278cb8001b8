// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package events turns raw login attempts into persisted security events.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/geo"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/models"
)

// Store is the slice of the durable store the recorder writes through.
type Store interface {
	InsertEvent(ctx context.Context, event *models.SecurityEvent) error
}

// Attempt is one observed login attempt as reported by the caller.
type Attempt struct {
	SourceIP      string
	TargetAccount string
	UserAgent     string
	SessionID     string
	Success       bool
}

// Recorder persists every attempt as a SecurityEvent, enriched with a
// best-effort location. Neither a geolocation failure nor a store failure
// stops attempt processing; a dropped event is logged and counted.
type Recorder struct {
	store   Store
	locator geo.Locator
	now     func() time.Time
}

// NewRecorder wires a recorder to the store and locator.
func NewRecorder(store Store, locator geo.Locator) *Recorder {
	return &Recorder{store: store, locator: locator, now: time.Now}
}

// Record builds and persists the event for one attempt and returns it.
// The returned event is always usable even when persistence failed.
func (r *Recorder) Record(ctx context.Context, attempt Attempt) *models.SecurityEvent {
	eventType := models.EventTypeLoginFailed
	if attempt.Success {
		eventType = models.EventTypeLogin
	}

	event := &models.SecurityEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		SourceIP:      attempt.SourceIP,
		TargetAccount: attempt.TargetAccount,
		UserAgent:     attempt.UserAgent,
		SessionID:     attempt.SessionID,
		Success:       attempt.Success,
		CreatedAt:     r.now().UTC(),
	}

	location, err := r.locator.Lookup(ctx, attempt.SourceIP)
	if err != nil {
		logging.Debug().Err(err).Str("ip", attempt.SourceIP).Msg("geo enrichment skipped")
	} else {
		event.Location = location
	}

	if err := r.store.InsertEvent(ctx, event); err != nil {
		metrics.EventsDropped.Inc()
		logging.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("ip", attempt.SourceIP).
			Msg("security event dropped")
	}

	return event
}
