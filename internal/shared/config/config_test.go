package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("AGGREGATOR_BASE_URL", "https://aggregator.example.com")
	t.Setenv("AGGREGATOR_CLIENT_ID", "client-id")
	t.Setenv("AGGREGATOR_CLIENT_SECRET", "client-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 15*time.Second, cfg.Sync.ApplyTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Sync.LockTTL)
	assert.Equal(t, 5, cfg.RateLimit.WebhookPerMinute)
	assert.Equal(t, 30, cfg.RateLimit.InteractivePerHour)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"05:00", "11:00", "17:00", "23:00"}, cfg.Scheduler.ScheduleTimes)
	assert.Equal(t, "https://aggregator.example.com/webhook_verification_keys", cfg.Aggregator.JWKSURL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYNC_APPLY_TIMEOUT", "30s")
	t.Setenv("RATE_LIMIT_WEBHOOK_PER_MINUTE", "10")
	t.Setenv("SCHEDULER_TIMES", "06:30, 18:30")
	t.Setenv("AGGREGATOR_JWKS_URL", "https://keys.example.com/jwks")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Sync.ApplyTimeout)
	assert.Equal(t, 10, cfg.RateLimit.WebhookPerMinute)
	assert.Equal(t, []string{"06:30", "18:30"}, cfg.Scheduler.ScheduleTimes)
	assert.Equal(t, "https://keys.example.com/jwks", cfg.Aggregator.JWKSURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "jwt secret", unset: "JWT_SECRET"},
		{name: "aggregator base url", unset: "AGGREGATOR_BASE_URL"},
		{name: "aggregator credentials", unset: "AGGREGATOR_CLIENT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidNumericEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_PORT", "not-a-port")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_PORT")
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "finch",
		Password: "pw",
		DBName:   "finch",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=finch password=pw dbname=finch sslmode=require",
		db.ConnectionString(),
	)
}
