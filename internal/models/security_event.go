// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of security event.
type EventType string

const (
	// EventTypeLogin is a successful authentication attempt.
	EventTypeLogin EventType = "login"

	// EventTypeLoginFailed is a failed authentication attempt.
	EventTypeLoginFailed EventType = "login_failed"
)

// SecurityEvent is one immutable row per login attempt. Rows are created
// at persist time and only ever deleted by the retention sweep.
type SecurityEvent struct {
	ID            uuid.UUID  `json:"id"`
	EventType     EventType  `json:"event_type"`
	SourceIP      string     `json:"source_ip"`
	TargetAccount string     `json:"target_account,omitempty"` // empty for unauthenticated attempts
	UserAgent     string     `json:"user_agent,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	Success       bool       `json:"success"`
	Location      *Location  `json:"location,omitempty"` // best-effort enrichment, may be nil
	CreatedAt     time.Time  `json:"created_at"`
}

// Location is the geolocation descriptor attached to an event by the
// geolocation collaborator. Absence of any field is acceptable; the
// engine never requires enrichment to succeed.
type Location struct {
	IPAddress string  `json:"ip_address"`
	Country   string  `json:"country,omitempty"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	ISP       string  `json:"isp,omitempty"`
	Proxy     bool    `json:"proxy,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}
