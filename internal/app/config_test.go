package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigNormalisesBaseURL(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("API_BASE_URL", " https://api.example.test/v1/ ")
	t.Setenv("LINK_VERIFY_ATTEMPTS", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test/v1", cfg.APIBaseURL)
	assert.Equal(t, 1, cfg.LinkVerifyAttempts)
	assert.Equal(t, 5*time.Minute, cfg.UserRevalidateInterval)
	assert.False(t, cfg.AuditEnabled())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 300, cfg.RateLimitPerMinute)
	assert.Equal(t, "@every 1m", cfg.BackendPingSpec)
	assert.Equal(t, int32(4), cfg.PGMaxConns)
}

func TestAuditEnabledFollowsDSN(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("PG_DSN", "postgres://portal@localhost/portal")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.AuditEnabled())
	assert.True(t, cfg.IsProduction())
}
