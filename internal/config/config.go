package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Database
	DBDriver   string `yaml:"db_driver"` // postgres or sqlite
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`
	DBPath     string `yaml:"db_path"` // sqlite only

	// Auth
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`

	// Proxy
	ProxyTimeout       time.Duration `yaml:"proxy_timeout"`
	ProxyRateLimit     float64       `yaml:"proxy_rate_limit"` // requests per second per client, 0 disables
	ProxyRateBurst     int           `yaml:"proxy_rate_burst"`
	AuditResponseLimit int           `yaml:"audit_response_limit"` // characters kept in connection history

	// Dashboard
	MetricsRefreshInterval time.Duration `yaml:"metrics_refresh_interval"`
	StatusCheckSchedule    string        `yaml:"status_check_schedule"` // cron spec, empty disables
	StatusCheckRate        float64       `yaml:"status_check_rate"`     // checks per second during CheckAll, 0 = unpaced
	DashboardIdleTimeout   time.Duration `yaml:"dashboard_idle_timeout"`

	// Registry change feed (postgres LISTEN/NOTIFY channel)
	NotifyChannel string `yaml:"notify_channel"`

	// Prometheus
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// Set when loaded through CONFIG_FILE
	File string `yaml:"-"`
}

// Defaults returns the configuration used when neither a file nor the
// environment says otherwise.
func Defaults() *Config {
	return &Config{
		Port:                   "8097",
		LogLevel:               "info",
		DBDriver:               "postgres",
		DBHost:                 "localhost",
		DBPort:                 "5432",
		DBUser:                 "postgres",
		DBName:                 "serverdeck",
		DBSSLMode:              "disable",
		DBPath:                 "data/serverdeck.db",
		AccessTokenTTL:         15 * time.Minute,
		RefreshTokenTTL:        7 * 24 * time.Hour,
		ProxyTimeout:           10 * time.Second,
		ProxyRateLimit:         20,
		ProxyRateBurst:         40,
		AuditResponseLimit:     10000,
		MetricsRefreshInterval: 10 * time.Second,
		StatusCheckSchedule:    "@every 1m",
		StatusCheckRate:        5,
		DashboardIdleTimeout:   2 * time.Minute,
		NotifyChannel:          "server_changes",
		MetricsEnabled:         true,
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and finally the environment.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
		cfg.File = path
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DBDriver = getEnv("DB_DRIVER", cfg.DBDriver)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = getEnv("DB_SSLMODE", cfg.DBSSLMode)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.AccessTokenTTL = getDuration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.RefreshTokenTTL = getDuration("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL)
	cfg.ProxyTimeout = getDuration("PROXY_TIMEOUT", cfg.ProxyTimeout)
	cfg.ProxyRateLimit = getFloat("PROXY_RATE_LIMIT", cfg.ProxyRateLimit)
	cfg.ProxyRateBurst = getInt("PROXY_RATE_BURST", cfg.ProxyRateBurst)
	cfg.AuditResponseLimit = getInt("AUDIT_RESPONSE_LIMIT", cfg.AuditResponseLimit)
	cfg.MetricsRefreshInterval = getDuration("METRICS_REFRESH_INTERVAL", cfg.MetricsRefreshInterval)
	cfg.StatusCheckSchedule = getEnv("STATUS_CHECK_SCHEDULE", cfg.StatusCheckSchedule)
	cfg.StatusCheckRate = getFloat("STATUS_CHECK_RATE", cfg.StatusCheckRate)
	cfg.DashboardIdleTimeout = getDuration("DASHBOARD_IDLE_TIMEOUT", cfg.DashboardIdleTimeout)
	cfg.NotifyChannel = getEnv("NOTIFY_CHANNEL", cfg.NotifyChannel)
	cfg.MetricsEnabled = getBool("METRICS_ENABLED", cfg.MetricsEnabled)
}

// Validate reports the first setting that would prevent the server from
// running correctly.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.ProxyTimeout <= 0 {
		return errors.New("PROXY_TIMEOUT must be positive")
	}
	if c.MetricsRefreshInterval <= 0 {
		return errors.New("METRICS_REFRESH_INTERVAL must be positive")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.AuditResponseLimit <= 0 {
		return errors.New("AUDIT_RESPONSE_LIMIT must be positive")
	}
	if c.ProxyRateLimit < 0 || c.StatusCheckRate < 0 {
		return errors.New("rate limits must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
