// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15*time.Minute, cfg.Security.DetectionWindow)
	assert.Equal(t, 5, cfg.Security.SequentialThreshold)
	assert.Equal(t, 10, cfg.Security.MaxFailedBeforeLockout)
	assert.True(t, cfg.Security.Enabled)
	assert.Equal(t, time.Minute, cfg.Security.BlockCacheTTL)
}

func TestValidateRejectsBadThresholdOrdering(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.CaptchaThreshold = 3 // below sequential threshold of 5
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Security.MaxFailedBeforeLockout = cfg.Security.CaptchaThreshold
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadWindows(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.VelocityWindow = cfg.Security.DetectionWindow + time.Minute
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Security.DetectionWindow = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsShortRetention(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.RetentionPeriod = time.Hour
	assert.Error(t, cfg.Validate())
}

func TestValidateGeoRequiresProviderURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Geo.Enabled = true
	cfg.Geo.ProviderURL = ""
	assert.Error(t, cfg.Validate())

	cfg.Geo.ProviderURL = "http://geo.internal/lookup"
	assert.NoError(t, cfg.Validate())
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"GATEWARDEN_SECURITY_MAX_FAILED_BEFORE_LOCKOUT": "security.max_failed_before_lockout",
		"GATEWARDEN_SERVER_PORT":                        "server.port",
		"GATEWARDEN_DATABASE_PATH":                      "database.path",
		"GATEWARDEN_LOGGING_LEVEL":                      "logging.level",
	}

	for in, want := range cases {
		assert.Equal(t, want, envTransform(in), in)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("GATEWARDEN_SECURITY_CAPTCHA_THRESHOLD", "6")
	t.Setenv("GATEWARDEN_SERVER_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Security.CaptchaThreshold)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Untouched values keep their defaults.
	assert.Equal(t, 5, cfg.Security.SequentialThreshold)
}
