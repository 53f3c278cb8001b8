// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/models"
)

// Client is a Locator backed by an HTTP provider. Calls pass through a
// token-bucket rate limiter and a circuit breaker so a slow or failing
// provider cannot stall attempt processing.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[*models.Location]
}

// providerResponse is the provider's JSON shape for a single lookup.
type providerResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	ISP        string  `json:"isp"`
	Proxy      bool    `json:"proxy"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
}

// NewClient builds the HTTP locator from config. The breaker opens after a
// sustained failure rate so the first provider outage is noticed within a
// handful of lookups.
func NewClient(cfg *config.GeoConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 10
	}

	metrics.GeoBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[*models.Location](gobreaker.Settings{
		Name:        "geo-provider",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logging.Info().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("geo breaker state change")
			metrics.GeoBreakerState.Set(breakerStateValue(to))
		},
	})

	return &Client{
		baseURL:    cfg.ProviderURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		cb:         cb,
	}
}

// Lookup resolves one IP. Rate-limit exhaustion and an open breaker both
// surface as ErrUnavailable so callers treat them like any provider outage.
func (c *Client) Lookup(ctx context.Context, ip string) (*models.Location, error) {
	if !c.limiter.Allow() {
		metrics.GeoLookups.WithLabelValues("throttled").Inc()
		return nil, ErrUnavailable
	}

	location, err := c.cb.Execute(func() (*models.Location, error) {
		return c.fetch(ctx, ip)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metrics.GeoLookups.WithLabelValues("rejected").Inc()
			return nil, ErrUnavailable
		}
		metrics.GeoLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("geo lookup %s: %w", ip, err)
	}

	if location == nil {
		metrics.GeoLookups.WithLabelValues("no_data").Inc()
		return nil, nil
	}

	metrics.GeoLookups.WithLabelValues("success").Inc()
	return location, nil
}

// fetch performs the raw HTTP call.
func (c *Client) fetch(ctx context.Context, ip string) (*models.Location, error) {
	endpoint, err := url.JoinPath(c.baseURL, ip)
	if err != nil {
		return nil, fmt.Errorf("build lookup url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup request: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read lookup response: %w", err)
	}

	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}

	// "fail" with a well-formed body means the provider has no data for
	// this address (private range, reserved). That is not a breaker failure.
	if pr.Status != "success" {
		return nil, nil
	}

	return &models.Location{
		IPAddress: ip,
		Country:   pr.Country,
		Region:    pr.RegionName,
		City:      pr.City,
		ISP:       pr.ISP,
		Proxy:     pr.Proxy,
		Latitude:  pr.Latitude,
		Longitude: pr.Longitude,
	}, nil
}

// Close is a no-op; the http.Client owns no persistent resources.
func (c *Client) Close() error { return nil }

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
