// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package geo resolves source IPs to coarse locations through an external
// provider. Lookups are rate limited, protected by a circuit breaker and
// cached; every failure mode degrades to "no location" rather than an
// error the caller has to handle.
package geo

import (
	"context"
	"errors"

	"github.com/gatewarden/gatewarden/internal/models"
)

// ErrUnavailable is returned when the provider cannot be reached, the
// circuit is open, or the rate limit leaves no budget for the lookup.
var ErrUnavailable = errors.New("geo: provider unavailable")

// Locator resolves an IP address to a location. Implementations return
// ErrUnavailable for transient provider trouble and a nil location with a
// nil error when the provider has no data for the address.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*models.Location, error)
	Close() error
}

// Disabled is the Locator used when geolocation is turned off. Every
// lookup reports no data.
type Disabled struct{}

// Lookup always returns no location.
func (Disabled) Lookup(_ context.Context, _ string) (*models.Location, error) {
	return nil, nil
}

// Close is a no-op.
func (Disabled) Close() error { return nil }
