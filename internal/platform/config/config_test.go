package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_DefaultsAndEnv(t *testing.T) {
	t.Setenv("ESCROWOPS_JWT_SIGNING_KEY", "k")
	t.Setenv("ESCROWOPS_POOL_SIZE", "3")
	t.Setenv("ESCROWOPS_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Pool.Size)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Second, cfg.Stats.TTL)
	assert.Equal(t, "escrow.payout.submit", cfg.NATS.PayoutSubject)
	assert.Equal(t, 300, cfg.RateLimit.StandardPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.SensitivePerMinute)
}

func TestLoadFile_RateLimitBudgets(t *testing.T) {
	t.Setenv("ESCROWOPS_JWT_SIGNING_KEY", "k")
	t.Setenv("ESCROWOPS_RATELIMIT_SENSITIVE_PER_MINUTE", "0")
	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit")

	t.Setenv("ESCROWOPS_RATELIMIT_DISABLED", "true")
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.True(t, cfg.RateLimit.Disabled)
}

func TestLoadFile_TOMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowops.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9090"

[auth]
jwt_signing_key = "from-file"

[stats]
ttl = "30s"
`), 0o600))
	t.Setenv("ESCROWOPS_ADDR", ":7070")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr, "env wins over file")
	assert.Equal(t, "from-file", cfg.Auth.JWTSigningKey)
	assert.Equal(t, 30*time.Second, cfg.Stats.TTL)
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Setenv("ESCROWOPS_JWT_SIGNING_KEY", "")
	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_signing_key")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
