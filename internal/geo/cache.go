// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/models"
)

// noDataMarker caches "provider has no data for this IP" so private and
// reserved addresses do not hit the provider on every attempt.
var noDataMarker = []byte("-")

// CachedLocator fronts another Locator with a Badger key-value cache.
// Entries expire through Badger's native TTL, so a location is re-resolved
// after the configured TTL without any sweep of our own.
type CachedLocator struct {
	inner Locator
	db    *badger.DB
	ttl   time.Duration
}

// NewCachedLocator opens the cache at cfg.CachePath, or in memory when the
// path is empty, and wraps the inner locator with it.
func NewCachedLocator(inner Locator, cfg *config.GeoConfig) (*CachedLocator, error) {
	opts := badger.DefaultOptions(cfg.CachePath).
		WithLogger(nil).
		WithInMemory(cfg.CachePath == "")

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open geo cache: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &CachedLocator{inner: inner, db: db, ttl: ttl}, nil
}

// Lookup serves from the cache when possible. Cache read or write failures
// only log; the provider answer still reaches the caller.
func (c *CachedLocator) Lookup(ctx context.Context, ip string) (*models.Location, error) {
	if location, hit, err := c.get(ip); err != nil {
		logging.Warn().Err(err).Str("ip", ip).Msg("geo cache read failed")
	} else if hit {
		return location, nil
	}

	location, err := c.inner.Lookup(ctx, ip)
	if err != nil {
		return nil, err
	}

	if err := c.put(ip, location); err != nil {
		logging.Warn().Err(err).Str("ip", ip).Msg("geo cache write failed")
	}

	return location, nil
}

// get returns the cached location and whether the key was present. A
// cached no-data marker is a hit with a nil location.
func (c *CachedLocator) get(ip string) (*models.Location, bool, error) {
	var value []byte

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ip))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if string(value) == string(noDataMarker) {
		return nil, true, nil
	}

	var location models.Location
	if err := json.Unmarshal(value, &location); err != nil {
		return nil, false, fmt.Errorf("decode cached location: %w", err)
	}

	return &location, true, nil
}

func (c *CachedLocator) put(ip string, location *models.Location) error {
	value := noDataMarker
	if location != nil {
		encoded, err := json.Marshal(location)
		if err != nil {
			return fmt.Errorf("encode location: %w", err)
		}
		value = encoded
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(ip), value).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// Close releases the cache and the wrapped locator.
func (c *CachedLocator) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close geo cache: %w", err)
	}
	return c.inner.Close()
}
