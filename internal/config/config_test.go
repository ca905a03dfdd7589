package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":5000", c.HTTPAddr)
	assert.Equal(t, ":5001", c.GRPCAddr)
	assert.Equal(t, "http://localhost:5173", c.ClientURL)
	assert.Equal(t, 5*time.Hour, c.TokenValidity)
	assert.Equal(t, 30*time.Second, c.AuthTimeout)
	assert.Equal(t, 64, c.SendBufferSize)
	assert.Equal(t, 24*time.Hour, c.PushTTL)
	assert.False(t, c.PushEnabled())
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	env := map[string]string{
		"PORT":              "8080",
		"DB_DSN":            "postgres://x",
		"JWT_SECRET":        "top",
		"AUTH_TIMEOUT":      "0s",
		"DEBUG_ROUTES":      "true",
		"WS_SEND_BUFFER":    "8",
		"VAPID_PUBLIC_KEY":  "pub",
		"VAPID_PRIVATE_KEY": "priv",
		"PUSH_TIMEOUT":      "bogus",
	}
	var c Config
	c.LoadDefaults()
	c.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "postgres://x", c.DatabaseDSN)
	assert.Equal(t, "top", c.JWTSecret)
	assert.Equal(t, time.Duration(0), c.AuthTimeout)
	assert.True(t, c.DebugRoutes)
	assert.Equal(t, 8, c.SendBufferSize)
	assert.True(t, c.PushEnabled())
	assert.Equal(t, 10*time.Second, c.PushTimeout, "unparsable durations keep the default")
}

func TestParseFlags(t *testing.T) {
	var c Config
	c.LoadDefaults()

	require.NoError(t, c.parseFlags([]string{"-a", "127.0.0.1:9090", "-d", "db", "-s", "secret", "-debug"}))

	assert.Equal(t, "127.0.0.1:9090", c.HTTPAddr)
	assert.Equal(t, "db", c.DatabaseDSN)
	assert.Equal(t, "secret", c.JWTSecret)
	assert.True(t, c.DebugRoutes)
}

func TestParseFlagsUnknownFlag(t *testing.T) {
	var c Config
	c.LoadDefaults()
	require.Error(t, c.parseFlags([]string{"-nope"}))
}
