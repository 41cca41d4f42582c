package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

type Config struct {
	ListenAddr         string `env:"LISTEN_ADDR,default=:18080"`
	StoreMode          string `env:"STORE_MODE,default=memory"`
	DatabaseURL        string `env:"DATABASE_URL"`
	RedisURL           string `env:"REDIS_URL"`
	OAuthEncryptionKey string `env:"OAUTH_ENCRYPTION_KEY"`

	AdminUsername  string `env:"ADMIN_USERNAME,default=admin"`
	AdminPassword  string `env:"ADMIN_PASSWORD"`
	JWTSecret      string `env:"JWT_SECRET"`
	RPCRequireAuth bool   `env:"RPC_REQUIRE_AUTH,default=false"`

	MeliClientID       string        `env:"MELI_CLIENT_ID"`
	MeliClientSecret   string        `env:"MELI_CLIENT_SECRET"`
	MeliUserID         string        `env:"MELI_USER_ID"`
	MeliRedirectURI    string        `env:"MELI_REDIRECT_URI,default=https://www.google.com"`
	MeliAPIURL         string        `env:"MELI_API_URL,default=https://api.mercadolibre.com"`
	MeliAuthURL        string        `env:"MELI_AUTH_URL,default=https://auth.mercadolibre.com.ar/authorization"`
	MeliTokenURL       string        `env:"MELI_TOKEN_URL,default=https://api.mercadolibre.com/oauth/token"`
	MeliAccessToken    string        `env:"MELI_ACCESS_TOKEN"`
	MeliRefreshToken   string        `env:"MELI_REFRESH_TOKEN"`
	MeliRequestTimeout time.Duration `env:"MELI_REQUEST_TIMEOUT,default=15s"`
	MeliMaxRPS         float64       `env:"MELI_MAX_RPS,default=0"`

	SellerName string `env:"SELLER_NAME,default=My store"`
	Locale     string `env:"LOCALE,default=es-AR"`
	Currency   string `env:"CURRENCY,default=ARS"`

	RefreshInterval time.Duration `env:"REFRESH_INTERVAL,default=5h"`
	DigestEnabled   bool          `env:"DIGEST_ENABLED,default=false"`
	DigestWeekday   int           `env:"DIGEST_WEEKDAY,default=1"`
	DigestHour      int           `env:"DIGEST_HOUR,default=9"`

	MailAPIURL  string        `env:"MAIL_API_URL"`
	MailAPIKey  string        `env:"MAIL_API_KEY"`
	MailFrom    string        `env:"MAIL_FROM"`
	MailTo      string        `env:"MAIL_TO"`
	MailTimeout time.Duration `env:"MAIL_TIMEOUT,default=10s"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreMode {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("unsupported STORE_MODE %q", c.StoreMode)
	}
	if c.DigestWeekday < 0 || c.DigestWeekday > 6 {
		return fmt.Errorf("DIGEST_WEEKDAY must be within 0..6, got %d", c.DigestWeekday)
	}
	if c.DigestHour < 0 || c.DigestHour > 23 {
		return fmt.Errorf("DIGEST_HOUR must be within 0..23, got %d", c.DigestHour)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	return nil
}

// MailEnabled reports whether the transactional email transport is configured.
func (c Config) MailEnabled() bool {
	return c.MailAPIURL != "" && c.MailFrom != "" && c.MailTo != ""
}
