package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.False(t, cfg.IsProduction())

	rl := cfg.RateLimit()
	require.Equal(t, 60, rl.RequestsPerMinute)
	require.Equal(t, 10, rl.BurstSize)
	require.Equal(t, time.Minute, rl.Window)
	require.Equal(t, 5*time.Minute, rl.BlockDuration)

	sec := cfg.Security()
	require.Equal(t, 5, sec.MaxFailedAttempts)
	require.Equal(t, 30*time.Minute, sec.LockoutDuration)
	require.True(t, sec.ProgressiveLockout)
	require.Equal(t, 12, sec.PasswordHistoryCount)

	require.Equal(t, 2*365*24*time.Hour, cfg.AuditRetention)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_MINUTE", "120")
	t.Setenv("SECURITY_LOCKOUT_DURATION", "45m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 120, cfg.RateLimit().RequestsPerMinute)
	require.Equal(t, 45*time.Minute, cfg.Security().LockoutDuration)
}

func TestLoadConfigRejectsInvalidRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST_SIZE", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsInvalidSecurity(t *testing.T) {
	t.Setenv("SECURITY_MAX_FAILED_ATTEMPTS", "-1")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsNonPositiveRetention(t *testing.T) {
	t.Setenv("AUDIT_RETENTION", "-1h")

	_, err := LoadConfig()
	require.Error(t, err)
}
