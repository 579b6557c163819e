package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the whole application configuration. It is read once at
// startup and treated as immutable.
type Config struct {
	// Server
	Port        string
	CORSOrigins []string
	FrontendURL string
	BackendURL  string

	// Database
	DBDriver   string
	DBLogLevel string

	// Redis (optional)
	RedisURL string

	// Booking policy
	GracePeriod   time.Duration
	MaxStayNights int

	// Google Calendar
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURL     string
	GoogleDefaultCalendar string
	GoogleTokenCacheTTL   time.Duration

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string

	// SMTP
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFromName string

	// WhatsApp
	WhatsAppAccountSID string
	WhatsAppAuthToken  string
	WhatsAppFrom       string
	NotifyAsync        bool

	// Owner contacts
	OwnerEmail string
	OwnerPhone string

	// Reporting
	AlloggiatiURL string
	FileStoreDir  string

	// Rate limit
	RateLimitRPS   float64
	RateLimitBurst int

	// Worker
	ReminderHour    int
	CleanupInterval time.Duration
}

// Load reads the configuration from the environment.
// It returns an error naming every required variable that is unset or malformed.
func Load() (*Config, error) {
	cfg := &Config{}
	var missing []string

	cfg.Port = EnvOrDefault("PORT", "8080")
	cfg.CORSOrigins = parseList(os.Getenv("CORS_ORIGINS"))
	cfg.FrontendURL = strings.TrimRight(EnvOrDefault("FRONTEND_URL", "http://localhost:3000"), "/")
	cfg.BackendURL = strings.TrimRight(EnvOrDefault("BACKEND_URL", "http://localhost:"+cfg.Port), "/")

	cfg.DBDriver = strings.ToLower(EnvOrDefault("DB_DRIVER", "mysql"))
	switch cfg.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		missing = append(missing, "DB_DRIVER (mysql|postgres|sqlite)")
	}
	cfg.DBLogLevel = strings.ToLower(EnvOrDefault("DB_LOG_LEVEL", "warn"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	var err error
	if cfg.GracePeriod, err = getEnvDuration("RESERVATION_GRACE_PERIOD", 15*time.Minute); err != nil {
		missing = append(missing, err.Error())
	}
	if cfg.MaxStayNights, err = getEnvInt("MAX_STAY_NIGHTS", 30); err != nil {
		missing = append(missing, err.Error())
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = EnvOrDefault("GOOGLE_REDIRECT_URL", cfg.BackendURL+"/api/v1/google-calendar/redirect")
	cfg.GoogleDefaultCalendar = EnvOrDefault("GOOGLE_CALENDAR_DEFAULT_ID", "primary")
	if cfg.GoogleTokenCacheTTL, err = getEnvDuration("GOOGLE_TOKEN_CACHE_TTL", 50*time.Minute); err != nil {
		missing = append(missing, err.Error())
	}

	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.StripeCurrency = strings.ToLower(EnvOrDefault("STRIPE_CURRENCY", "eur"))
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = EnvOrDefault("SMTP_PORT", "587")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFromName = EnvOrDefault("SMTP_FROM_NAME", "Prenotazioni")

	cfg.WhatsAppAccountSID = os.Getenv("WHATSAPP_ACCOUNT_SID")
	cfg.WhatsAppAuthToken = os.Getenv("WHATSAPP_AUTH_TOKEN")
	cfg.WhatsAppFrom = os.Getenv("WHATSAPP_FROM")
	cfg.NotifyAsync = getEnvBool("NOTIFY_ASYNC", false)
	if cfg.NotifyAsync && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL (required by NOTIFY_ASYNC)")
	}

	cfg.OwnerEmail = os.Getenv("OWNER_EMAIL")
	cfg.OwnerPhone = os.Getenv("OWNER_PHONE")

	cfg.AlloggiatiURL = EnvOrDefault("ALLOGGIATI_URL", "https://alloggiatiweb.poliziadistato.it/service/service.asmx")
	cfg.FileStoreDir = EnvOrDefault("FILESTORE_DIR", "./uploads")

	if cfg.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", 5); err != nil {
		missing = append(missing, err.Error())
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 20); err != nil {
		missing = append(missing, err.Error())
	}

	if cfg.ReminderHour, err = getEnvInt("REMINDER_HOUR", 9); err != nil || cfg.ReminderHour < 0 || cfg.ReminderHour > 23 {
		missing = append(missing, "REMINDER_HOUR (0-23)")
	}
	if cfg.CleanupInterval, err = getEnvDuration("CLEANUP_INTERVAL", time.Minute); err != nil {
		missing = append(missing, err.Error())
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// CalendarEnabled reports whether Google Calendar credentials are configured.
func (c *Config) CalendarEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// PaymentsEnabled reports whether Stripe is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}

// EnvOrDefault returns the trimmed value of key or def when it is empty.
func EnvOrDefault(key, def string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	return value
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func getEnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s (integer)", key)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s (number)", key)
	}
	return f, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s (duration)", key)
	}
	return d, nil
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
