package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	ProfileStoreREST     = "rest"
	ProfileStorePostgres = "postgres"
)

type Config struct {
	AppName      string `env:"ACCOUNT_APP_NAME" envDefault:"account-service"`
	AppEnv       string `env:"ACCOUNT_APP_ENV" envDefault:"local"`
	HTTPHost     string `env:"ACCOUNT_HTTP_HOST" envDefault:"127.0.0.1"`
	HTTPPort     string `env:"ACCOUNT_HTTP_PORT" envDefault:"8081"`
	HTTPBasePath string `env:"ACCOUNT_HTTP_BASE_PATH" envDefault:"/api/v1"`

	// SiteURL is where the hosted service sends the browser back after
	// federated login or a password reset link.
	SiteURL string `env:"ACCOUNT_SITE_URL" envDefault:"http://localhost:5173"`

	SupabaseURL       string        `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseAnonKey   string        `env:"SUPABASE_ANON_KEY,required,notEmpty"`
	SupabaseJWTSecret string        `env:"SUPABASE_JWT_SECRET"`
	HTTPTimeout       time.Duration `env:"ACCOUNT_HTTP_TIMEOUT" envDefault:"10s"`
	RefreshMargin     time.Duration `env:"ACCOUNT_REFRESH_MARGIN" envDefault:"60s"`
	// SessionFile keeps the signed-in session across restarts. Empty disables it.
	SessionFile string `env:"ACCOUNT_SESSION_FILE" envDefault:".account-session.json"`

	ProfileStore string `env:"ACCOUNT_PROFILE_STORE" envDefault:"rest"`
	ProfileTable string `env:"ACCOUNT_PROFILE_TABLE" envDefault:"user_profiles"`

	DBHost     string `env:"ACCOUNT_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"ACCOUNT_DB_PORT" envDefault:"5432"`
	DBUser     string `env:"ACCOUNT_DB_USER" envDefault:"postgres"`
	DBPassword string `env:"ACCOUNT_DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"ACCOUNT_DB_NAME" envDefault:"postgres"`
	DBSSLMode  string `env:"ACCOUNT_DB_SSLMODE" envDefault:"disable"`

	NATSURL                   string `env:"NATS_URL"`
	NATSSessionChangedSubject string `env:"NATS_SUBJECT_SESSION_CHANGED" envDefault:"account.session-changed"`
	NATSProfileCreatedSubject string `env:"NATS_SUBJECT_PROFILE_CREATED" envDefault:"account.profile-created"`
	NATSProfileGetSubject     string `env:"NATS_SUBJECT_PROFILE_GET" envDefault:"account.get-profile"`
	NATSUsernameCheckSubject  string `env:"NATS_SUBJECT_USERNAME_AVAILABLE" envDefault:"account.username-available"`
	NATSVerifySubject         string `env:"NATS_SUBJECT_VERIFY_TOKEN" envDefault:"account.verify-token"`

	// RateLimit is requests per second per client IP on the sign-in and sign-up routes.
	RateLimit float64 `env:"ACCOUNT_RATE_LIMIT" envDefault:"1"`
	RateBurst int     `env:"ACCOUNT_RATE_BURST" envDefault:"5"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return cfg, nil
}

// ResetRedirect is the page the password reset email links back to.
func (c *Config) ResetRedirect() string {
	return c.SiteURL + "#reset-password"
}
