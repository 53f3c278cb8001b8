// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/detection"
	"github.com/gatewarden/gatewarden/internal/engine"
	"github.com/gatewarden/gatewarden/internal/events"
	"github.com/gatewarden/gatewarden/internal/models"
	"github.com/gatewarden/gatewarden/internal/reconciler"
)

type apiRecorder struct{}

func (apiRecorder) Record(_ context.Context, attempt events.Attempt) *models.SecurityEvent {
	return &models.SecurityEvent{SourceIP: attempt.SourceIP, CreatedAt: time.Now().UTC()}
}

type apiAnalyzer struct{ result *detection.Result }

func (a apiAnalyzer) Analyze(_ context.Context, _ *models.SecurityEvent) (*detection.Result, error) {
	if a.result == nil {
		return &detection.Result{}, nil
	}
	return a.result, nil
}

type apiChecker struct{}

func (apiChecker) IsIPBlocked(_ context.Context, _ string) bool      { return false }
func (apiChecker) IsAccountLocked(_ context.Context, _ string) bool  { return false }
func (apiChecker) RemainingLockout(_ context.Context, _ string) (*time.Duration, bool) {
	return nil, false
}

type apiLocker struct {
	blocked  []string
	unlocked []string
}

func (l *apiLocker) BlockIP(_ context.Context, ip string, _ *time.Duration, _, _ string) error {
	l.blocked = append(l.blocked, ip)
	return nil
}

func (l *apiLocker) UnblockIP(_ context.Context, ip string, _ string) error {
	l.unlocked = append(l.unlocked, ip)
	return nil
}

func (l *apiLocker) LockAccount(_ context.Context, account string, _ *time.Duration, _, _ string) error {
	l.blocked = append(l.blocked, account)
	return nil
}

func (l *apiLocker) UnlockAccount(_ context.Context, account string, _ string) error {
	l.unlocked = append(l.unlocked, account)
	return nil
}

func (l *apiLocker) ResolveOnSuccess(_ context.Context, _, _ string) error { return nil }

type apiStore struct {
	patterns []models.AttackPattern
	blocked  []models.AttackPattern
}

func (s *apiStore) ListPatterns(_ context.Context, _ database.PatternFilter) ([]models.AttackPattern, error) {
	return s.patterns, nil
}

func (s *apiStore) ListActiveBlocked(_ context.Context) ([]models.AttackPattern, error) {
	return s.blocked, nil
}

func (s *apiStore) PatternStats(_ context.Context, from, to time.Time) (*models.SecurityStats, error) {
	return &models.SecurityStats{From: from, To: to, TotalPatterns: len(s.patterns)}, nil
}

func (s *apiStore) CountFailuresBetween(_ context.Context, _, _ time.Time) (int, error) {
	return 0, nil
}

type sweepStore struct{}

func (sweepStore) ListActiveBlocked(_ context.Context) ([]models.AttackPattern, error) {
	return nil, nil
}

func (sweepStore) UpsertPattern(_ context.Context, _ *models.AttackPattern) error { return nil }

func (sweepStore) PurgeEventsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 3, nil
}

type noInvalidate struct{}

func (noInvalidate) Invalidate(_ string) {}

func newTestServer(t *testing.T, locker *apiLocker, store *apiStore) *httptest.Server {
	t.Helper()

	cfg := &config.SecurityConfig{
		Enabled:                true,
		IPBlockDuration:        30 * time.Minute,
		AccountLockoutDuration: 30 * time.Minute,
		SweepInterval:          5 * time.Minute,
		RetentionPeriod:        720 * time.Hour,
	}
	eng := engine.New(cfg, apiRecorder{}, apiAnalyzer{}, apiChecker{}, locker, store)
	sweeper := reconciler.NewSweeper(sweepStore{}, noInvalidate{}, cfg)
	handler := NewHandler(eng, sweeper, nil)
	router := NewRouter(handler, &config.APIConfig{
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
	})

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) models.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var envelope models.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func TestRecordAttemptEndpoint(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	resp := postJSON(t, server.URL+"/api/v1/attempts", map[string]interface{}{
		"source_ip":      "203.0.113.5",
		"target_account": "alice",
		"success":        false,
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	envelope := decodeEnvelope(t, resp)
	assert.Equal(t, "success", envelope.Status)
	require.NotNil(t, envelope.Data)
}

func TestRecordAttemptRejectsInvalidIP(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	resp := postJSON(t, server.URL+"/api/v1/attempts", map[string]interface{}{
		"source_ip": "not-an-ip",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	envelope := decodeEnvelope(t, resp)
	assert.Equal(t, "error", envelope.Status)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "validation_failed", envelope.Error.Code)
}

func TestRecordAttemptRejectsMalformedJSON(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	resp, err := http.Post(server.URL+"/api/v1/attempts", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBlockAndUnblockIPEndpoints(t *testing.T) {
	locker := &apiLocker{}
	server := newTestServer(t, locker, &apiStore{})

	resp := postJSON(t, server.URL+"/api/v1/admin/blocks", map[string]interface{}{
		"ip":               "203.0.113.9",
		"duration_minutes": 60,
		"reason":           "abuse report",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, []string{"203.0.113.9"}, locker.blocked)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/admin/blocks/203.0.113.9", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"203.0.113.9"}, locker.unlocked)
}

func TestBlockRequiresReason(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	resp := postJSON(t, server.URL+"/api/v1/admin/blocks", map[string]interface{}{
		"ip": "203.0.113.9",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLockAccountEndpoint(t *testing.T) {
	locker := &apiLocker{}
	server := newTestServer(t, locker, &apiStore{})

	// No duration: indefinite lock.
	resp := postJSON(t, server.URL+"/api/v1/admin/locks", map[string]interface{}{
		"account": "alice",
		"reason":  "compromised credentials",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"alice"}, locker.blocked)
}

func TestListBlockedEndpoint(t *testing.T) {
	now := time.Now().UTC()
	duration := 30 * time.Minute
	store := &apiStore{blocked: []models.AttackPattern{{
		AttackType:       models.AttackTypeSequential,
		SourceIdentifier: "203.0.113.1",
		IsActive:         true,
		IsBlocked:        true,
		BlockedAt:        &now,
		BlockDuration:    &duration,
	}}}
	server := newTestServer(t, &apiLocker{}, store)

	resp, err := http.Get(server.URL + "/api/v1/admin/blocked")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestStatsEndpointRejectsBadRange(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	resp, err := http.Get(server.URL + "/api/v1/admin/stats?from=yesterday")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSweepEndpoint(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	resp := postJSON(t, server.URL+"/api/v1/admin/maintenance/sweep", map[string]string{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["purged_events"])
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	resp, err := http.Get(server.URL + "/api/v1/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	envelope := decodeEnvelope(t, resp)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestProbeEndpoints(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &apiLocker{}, &apiStore{})

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
