// Package config reads process configuration from the environment. It is
// only called from cmd.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	StoreBackend string `env:"STORE_BACKEND" envDefault:"dynamodb"`
	StateTable   string `env:"STATE_TABLE"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"chatbot.db"`
	ParamPrefix  string `env:"PARAM_PREFIX,notEmpty"`

	PlatformBaseURL string `env:"PLATFORM_BASE_URL,notEmpty"`

	WhatsAppPhoneNumberID string  `env:"WHATSAPP_PHONE_NUMBER_ID,notEmpty"`
	WhatsAppAPIBaseURL    string  `env:"WHATSAPP_API_BASE_URL"`
	WhatsAppSendRate      float64 `env:"WHATSAPP_SEND_RATE" envDefault:"20"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	SessionTimeout      time.Duration `env:"SESSION_TIMEOUT" envDefault:"30m"`
	AdminSessionTimeout time.Duration `env:"ADMIN_SESSION_TIMEOUT" envDefault:"15m"`
	HandlerTimeout      time.Duration `env:"HANDLER_TIMEOUT" envDefault:"20s"`
	SendTimeout         time.Duration `env:"SEND_TIMEOUT" envDefault:"10s"`
	LeaseRetry          time.Duration `env:"LEASE_RETRY" envDefault:"50ms"`

	SecretMaxFailures   int           `env:"SECRET_MAX_FAILURES" envDefault:"3"`
	SecretLockoutWindow time.Duration `env:"SECRET_LOCKOUT_WINDOW" envDefault:"5m"`

	MailboxSize int    `env:"MAILBOX_SIZE" envDefault:"32"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.ParamPrefix = strings.TrimRight(cfg.ParamPrefix, "/")
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.ParamPrefix == "" {
		return errors.New("config: PARAM_PREFIX must not be only slashes")
	}
	if c.WhatsAppSendRate < 0 {
		return errors.New("config: WHATSAPP_SEND_RATE must not be negative")
	}
	if c.SecretMaxFailures <= 0 {
		return errors.New("config: SECRET_MAX_FAILURES must be positive")
	}
	for name, d := range map[string]time.Duration{
		"SESSION_TIMEOUT":       c.SessionTimeout,
		"ADMIN_SESSION_TIMEOUT": c.AdminSessionTimeout,
		"HANDLER_TIMEOUT":       c.HandlerTimeout,
		"SEND_TIMEOUT":          c.SendTimeout,
		"LEASE_RETRY":           c.LeaseRetry,
		"SECRET_LOCKOUT_WINDOW": c.SecretLockoutWindow,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Parameter names resolved from Parameter Store at startup.
func (c Config) AdminSecretParam() string { return c.ParamPrefix + "/admin-secret" }
func (c Config) AppSecretParam() string { return c.ParamPrefix + "/whatsapp-app-secret" }
func (c Config) VerifyTokenParam() string { return c.ParamPrefix + "/whatsapp-verify-token" }
