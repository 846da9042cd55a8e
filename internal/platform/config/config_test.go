package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Server.Addr)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.Solana.RPCEndpoint)
	assert.Equal(t, 600*time.Second, cfg.Sponsor.NonceTTL)
	assert.Equal(t, 600*time.Second, cfg.Sponsor.DedupeTTL)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 60, cfg.RateLimit.Max)
	assert.Equal(t, 100, cfg.Activity.Capacity)
	assert.Equal(t, "X-SAS-JWT", cfg.Credential.Header)
	assert.Equal(t, "KYC_PASS", cfg.Credential.Requirement)
	assert.Equal(t, 60*time.Second, cfg.Credential.CacheTTL)
	assert.Equal(t, uint64(1000), cfg.Names.PriorityFeeMicroLamports)
	assert.False(t, cfg.Credential.DevBypass)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SAS_DEV_BYPASS", "true")
	t.Setenv("NONCE_TTL_SEC", "30")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "1000")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("ACTIVITY_HISTORY_LIMIT", "10")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.True(t, cfg.Credential.DevBypass)
	assert.Equal(t, 30*time.Second, cfg.Sponsor.NonceTTL)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.Max)
	assert.Equal(t, 10, cfg.Activity.Capacity)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit_max: 7\nname_service_url: http://names.local\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimit.Max)
	assert.Equal(t, "http://names.local", cfg.Names.ServiceURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX", "0")
	t.Setenv("ACTIVITY_HISTORY_LIMIT", "-1")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Contains(t, err.Error(), "activity_history_limit")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
