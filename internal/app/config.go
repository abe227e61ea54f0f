package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/session"
)

// Config is the server configuration, read from the environment and an
// optional .env file.
type Config struct {
	Env       string `mapstructure:"ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	TrustProxy      bool          `mapstructure:"TRUST_PROXY"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	FloodRequests   int           `mapstructure:"FLOOD_REQUESTS"`
	FloodWindow     time.Duration `mapstructure:"FLOOD_WINDOW"`
	FloodBurst      int           `mapstructure:"FLOOD_BURST"`

	RedisURL string `mapstructure:"REDIS_URL"`

	StoreDriver string `mapstructure:"STORE_DRIVER"` // memory, sqlite, postgres
	SQLiteDSN   string `mapstructure:"SQLITE_DSN"`
	PostgresDSN string `mapstructure:"POSTGRES_DSN"`

	Mailer       string `mapstructure:"MAILER"` // log, amqp
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	PurgeSchedule string `mapstructure:"PURGE_SCHEDULE"`

	ResetURL         string        `mapstructure:"RESET_URL"`
	SessionLifetime  time.Duration `mapstructure:"SESSION_LIFETIME"`
	CookieName       string        `mapstructure:"COOKIE_NAME"`
	CookieSecure     bool          `mapstructure:"COOKIE_SECURE"`
	CookieDomain     string        `mapstructure:"COOKIE_DOMAIN"`
	CookieSameSite   string        `mapstructure:"COOKIE_SAMESITE"`
	CookiePersistent bool          `mapstructure:"COOKIE_PERSISTENT"`
	LockoutThreshold int           `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutDuration  time.Duration `mapstructure:"LOCKOUT_DURATION"`
	AuditEnabled     bool          `mapstructure:"AUDIT_ENABLED"`
	LatencyMetrics   bool          `mapstructure:"METRICS_LATENCY"`
}

func defaults(v *viper.Viper) {
	eng := authcore.DefaultConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)
	v.SetDefault("REQUEST_TIMEOUT", 15*time.Second)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("CORS_ORIGINS", []string{})
	v.SetDefault("FLOOD_REQUESTS", 120)
	v.SetDefault("FLOOD_WINDOW", time.Minute)
	v.SetDefault("FLOOD_BURST", 30)

	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")

	v.SetDefault("STORE_DRIVER", "sqlite")
	v.SetDefault("SQLITE_DSN", "file:authcore.db?_pragma=busy_timeout(5000)")
	v.SetDefault("POSTGRES_DSN", "")

	v.SetDefault("MAILER", "log")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "authcore.email")

	v.SetDefault("PURGE_SCHEDULE", "@every 15m")

	v.SetDefault("RESET_URL", eng.PasswordReset.ResetURL)
	v.SetDefault("SESSION_LIFETIME", eng.Session.Lifetime)
	v.SetDefault("COOKIE_NAME", eng.Session.CookieName)
	v.SetDefault("COOKIE_SECURE", eng.Session.Secure)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SAMESITE", string(eng.Session.SameSite))
	v.SetDefault("COOKIE_PERSISTENT", eng.Session.PersistentCookie)
	v.SetDefault("LOCKOUT_THRESHOLD", eng.Lockout.Threshold)
	v.SetDefault("LOCKOUT_DURATION", eng.Lockout.Duration)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("METRICS_LATENCY", true)
}

// LoadConfig reads dir/.env when present, then lets environment variables
// override every key.
func LoadConfig(dir string) (Config, error) {
	v := viper.New()
	defaults(v)

	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.Mailer {
	case "log":
	case "amqp":
		if c.AMQPURL == "" {
			return errors.New("AMQP_URL is required for MAILER=amqp")
		}
	default:
		return fmt.Errorf("unknown MAILER %q", c.Mailer)
	}
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	return nil
}

// EngineConfig overlays the server settings on the engine defaults.
func (c Config) EngineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.PasswordReset.ResetURL = c.ResetURL
	cfg.Session.Lifetime = c.SessionLifetime
	cfg.Session.CookieName = c.CookieName
	cfg.Session.Secure = c.CookieSecure
	cfg.Session.Domain = c.CookieDomain
	cfg.Session.SameSite = session.SameSite(strings.ToLower(c.CookieSameSite))
	cfg.Session.PersistentCookie = c.CookiePersistent
	cfg.Lockout.Threshold = c.LockoutThreshold
	cfg.Lockout.Duration = c.LockoutDuration
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.EnableLatencyHistograms = c.LatencyMetrics
	return cfg
}

// splitList flattens comma-separated entries, which is how list values
// arrive from a single environment variable.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
