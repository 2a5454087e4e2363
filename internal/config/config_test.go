package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"MODE", "DB_DRIVER", "SESSION_TTL", "ADMIN_IDS", "CORS_ORIGINS", "NOTIFY_MAX_ATTEMPTS", "NOTIFY_TIMEOUT", "TIMEZONE"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	assert.Equal(t, ModeOffline, c.Mode)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 24*time.Hour, c.SessionTTL)
	assert.Equal(t, 3, c.NotifyMaxAttempts)
	assert.Equal(t, 15*time.Second, c.NotifyTimeout)
	assert.Empty(t, c.AdminIDs)
	assert.Equal(t, []string{"http://localhost:3000"}, c.CORSOrigins)
	assert.True(t, c.EnableMetrics)
	require.NoError(t, c.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ADMIN_IDS", " 1, 2 ,,3")
	t.Setenv("TIMEZONE", "Asia/Tashkent")
	t.Setenv("AUTH_HMAC_SECRET", "s3cret")
	t.Setenv("ENABLE_METRICS", "no")
	t.Setenv("NOTIFY_MAX_ATTEMPTS", "not-a-number")

	c := FromEnv()
	assert.Equal(t, ModeOnline, c.Mode)
	assert.Equal(t, 30*time.Minute, c.SessionTTL)
	assert.Equal(t, 2, c.RedisDB)
	assert.Equal(t, []string{"1", "2", "3"}, c.AdminIDs)
	assert.Empty(t, c.CORSOrigins)
	assert.False(t, c.EnableMetrics)
	assert.Equal(t, 3, c.NotifyMaxAttempts)

	require.NoError(t, c.Validate())
	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tashkent", loc.String())
}

func TestValidate(t *testing.T) {
	base := Config{
		DBDriver: "sqlite", SessionDriver: "memory", EligibilityDriver: "open",
		NotifyDriver: "log", Timezone: "UTC", Mode: ModeOffline,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"db driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"session driver", func(c *Config) { c.SessionDriver = "file" }},
		{"eligibility driver", func(c *Config) { c.EligibilityDriver = "ldap" }},
		{"notify driver", func(c *Config) { c.NotifyDriver = "smtp" }},
		{"webhook without url", func(c *Config) { c.NotifyDriver = "webhook" }},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"online default secret", func(c *Config) { c.Mode = ModeOnline; c.AuthHMACSecret = "dev-secret-change-me" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mut(&c)
			assert.Error(t, c.Validate())
		})
	}
}
