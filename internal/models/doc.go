// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package models defines the core domain types shared across the engine:
// security events, attack patterns with their typed detail payloads,
// analysis results returned to callers, and API response envelopes.
package models
