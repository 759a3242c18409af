package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const minJWTSecretLen = 32

// Config keeps runtime settings for the service.
type Config struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"task_manager.db"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	LoginRateLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"5"`
	LoginRateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"15m"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	ReportConfig
	MailConfig

	History bool `envconfig:"TASK_HISTORY" default:"true"`

	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
}

// ReportConfig controls the digest dispatcher schedule.
type ReportConfig struct {
	Interval time.Duration `envconfig:"REPORT_INTERVAL" default:"1h"`
	// Cron is a 6-field spec (with seconds). It wins over Interval when set.
	Cron     string        `envconfig:"REPORT_CRON"`
	Timeout  time.Duration `envconfig:"REPORT_TIMEOUT" default:"5m"`
	FailFast bool          `envconfig:"REPORT_FAIL_FAST" default:"false"`
}

// MailConfig holds SMTP settings. An empty host selects the log mailer.
type MailConfig struct {
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	From         string `envconfig:"MAIL_FROM" default:"tasks@task_manager.org"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLen)
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.ReportConfig.Cron == "" && c.ReportConfig.Interval <= 0 {
		return errors.New("REPORT_INTERVAL must be positive when REPORT_CRON is empty")
	}
	if c.ReportConfig.Timeout <= 0 {
		return errors.New("REPORT_TIMEOUT must be positive")
	}
	if c.LoginRateLimit <= 0 || c.LoginRateWindow <= 0 {
		return errors.New("LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW must be positive")
	}
	return nil
}

func (c Config) HTTPAddr() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SMTPAddr returns host:port, or "" when SMTP is not configured.
func (m MailConfig) SMTPAddr() string {
	if m.SMTPHost == "" {
		return ""
	}
	return net.JoinHostPort(m.SMTPHost, strconv.Itoa(m.SMTPPort))
}
