package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"filevault-client/apiclient"
	"filevault-client/governor/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, apiclient.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, domain.DefaultPolicy, cfg.policy())
	assert.Equal(t, "minute", cfg.Stats.Bucket)
	assert.Equal(t, 250*time.Millisecond, cfg.Stats.Timeout)
	assert.Equal(t, 1, cfg.Governor.RetryBurst)
	assert.NoError(t, cfg.validate())
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "fsclient.yaml", `
baseURL: http://vault.internal:8080/api/v1
token: from-file
governor:
  minInterval: 250ms
  maxRetries: 5
  baseDelay: 2s
  paceRetries: true
stats:
  redisAddr: localhost:6379
  bucket: none
`)
	t.Setenv("FSCLIENT_TOKEN", "from-env")
	t.Setenv("GOVERNOR_MAX_RETRIES", "2")
	t.Setenv("GOVERNOR_STATS_TIMEOUT", "1s")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://vault.internal:8080/api/v1", cfg.BaseURL)
	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, 250*time.Millisecond, cfg.Governor.MinInterval)
	assert.Equal(t, 2, cfg.Governor.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Governor.BaseDelay)
	assert.True(t, cfg.Governor.PaceRetries)
	// não informado no arquivo: mantém o padrão.
	assert.Equal(t, domain.DefaultPolicy.UploadCooldown, cfg.Governor.UploadCooldown)
	assert.Equal(t, "localhost:6379", cfg.Stats.RedisAddr)
	assert.Equal(t, "none", cfg.Stats.Bucket)
	assert.Equal(t, time.Second, cfg.Stats.Timeout)
	require.NoError(t, cfg.validate())
}

func TestLoadConfig_InvalidEnvKeepsPrevious(t *testing.T) {
	t.Setenv("GOVERNOR_MIN_INTERVAL", "soon")
	t.Setenv("FSCLIENT_HTTP2", "talvez")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPolicy.MinInterval, cfg.Governor.MinInterval)
	assert.False(t, cfg.HTTP2)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := writeFile(t, "bad.yaml", "governor: [not, a, map]\n")
	_, err = loadConfig(bad)
	require.Error(t, err)
}

func TestLoadConfig_LowRetryRPSForcesBurstOne(t *testing.T) {
	path := writeFile(t, "c.yaml", "governor:\n  retryBurst: 10\n")
	t.Setenv("GOVERNOR_RETRY_RPS", "0.5")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cfg.Governor.RetryRPS, 1e-9)
	assert.Equal(t, 1, cfg.Governor.RetryBurst)

	t.Setenv("GOVERNOR_RETRY_BURST", "4")
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Governor.RetryBurst)
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config)
	}{
		{"bad url", func(c *config) { c.BaseURL = "vault" }},
		{"negative interval", func(c *config) { c.Governor.MinInterval = -time.Second }},
		{"negative retries", func(c *config) { c.Governor.MaxRetries = -1 }},
		{"negative retry rps", func(c *config) { c.Governor.RetryRPS = -1 }},
		{"zero retry burst", func(c *config) { c.Governor.RetryRPS = 1; c.Governor.RetryBurst = 0 }},
		{"bucket", func(c *config) { c.Stats.Bucket = "hour" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
