package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "CORS_ORIGINS", "FRONTEND_URL", "BACKEND_URL", "DB_DRIVER", "REDIS_URL",
		"RESERVATION_GRACE_PERIOD", "MAX_STAY_NIGHTS", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"GOOGLE_REDIRECT_URL", "GOOGLE_CALENDAR_DEFAULT_ID", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET",
		"NOTIFY_ASYNC", "REMINDER_HOUR", "CLEANUP_INTERVAL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 15*time.Minute, cfg.GracePeriod)
	assert.Equal(t, 30, cfg.MaxStayNights)
	assert.Equal(t, "primary", cfg.GoogleDefaultCalendar)
	assert.Equal(t, "http://localhost:8080/api/v1/google-calendar/redirect", cfg.GoogleRedirectURL)
	assert.Equal(t, 9, cfg.ReminderHour)
	assert.False(t, cfg.CalendarEnabled())
	assert.False(t, cfg.PaymentsEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RESERVATION_GRACE_PERIOD", "10m")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 10*time.Minute, cfg.GracePeriod)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.True(t, cfg.CalendarEnabled())
}

func TestLoad_InvalidValuesAreReported(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("RESERVATION_GRACE_PERIOD", "soon")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test")
	t.Setenv("NOTIFY_ASYNC", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "RESERVATION_GRACE_PERIOD")
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestMySQLDSNFromURL(t *testing.T) {
	dsn, err := mysqlDSNFromURL("mysql://bob:pw@db.local/rentals")
	require.NoError(t, err)
	assert.Contains(t, dsn, "bob:pw@tcp(db.local:3306)/rentals?")
	assert.Contains(t, dsn, "parseTime=True")
	assert.Contains(t, dsn, "loc=UTC")

	_, err = mysqlDSNFromURL("mysql://bob:pw@db.local/")
	assert.Error(t, err)
}
