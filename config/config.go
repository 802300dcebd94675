package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds process settings. Values come from defaults, then an
// optional YAML file, then the environment.
type Config struct {
	Port           string
	DatabaseDriver string
	DatabaseURL    string
	JWTSecret      string
	TokenTTL       time.Duration
	TypingIdle     time.Duration
	HistoryLimit   int
	CORSOrigin     string
	LogLevel       string
	LogDev         bool
	// MetricsInterval enables a periodic stdout metrics export when positive.
	MetricsInterval time.Duration
}

type rawConfig struct {
	Port            string `yaml:"port"`
	DatabaseDriver  string `yaml:"database_driver"`
	DatabaseURL     string `yaml:"database_url"`
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTL        string `yaml:"token_ttl"`
	TypingIdle      string `yaml:"typing_idle"`
	HistoryLimit    int    `yaml:"history_limit"`
	CORSOrigin      string `yaml:"cors_origin"`
	LogLevel        string `yaml:"log_level"`
	LogDev          bool   `yaml:"log_dev"`
	MetricsInterval string `yaml:"metrics_interval"`
}

func defaults() *Config {
	return &Config{
		Port:           "5000",
		DatabaseDriver: "sqlite3",
		DatabaseURL:    "duochat.db",
		TokenTTL:       7 * 24 * time.Hour,
		TypingIdle:     time.Second,
		HistoryLimit:   100,
		CORSOrigin:     "http://localhost:3000",
		LogLevel:       "info",
	}
}

// Load reads .env (if present), the YAML file at path or DUOCHAT_CONFIG
// (if set), and environment overrides, then validates the result.
// envLoaded reports whether a .env file was found.
func Load(path string) (cfg *Config, envLoaded bool, err error) {
	envLoaded = godotenv.Load() == nil

	cfg = defaults()
	if path == "" {
		path = os.Getenv("DUOCHAT_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, envLoaded, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, envLoaded, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, envLoaded, err
	}
	return cfg, envLoaded, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.Port, raw.Port)
	setString(&c.DatabaseDriver, raw.DatabaseDriver)
	setString(&c.DatabaseURL, raw.DatabaseURL)
	setString(&c.JWTSecret, raw.JWTSecret)
	setString(&c.CORSOrigin, raw.CORSOrigin)
	setString(&c.LogLevel, raw.LogLevel)
	if raw.HistoryLimit != 0 {
		c.HistoryLimit = raw.HistoryLimit
	}
	if raw.LogDev {
		c.LogDev = true
	}
	if err := setDuration(&c.TokenTTL, "token_ttl", raw.TokenTTL); err != nil {
		return err
	}
	if err := setDuration(&c.MetricsInterval, "metrics_interval", raw.MetricsInterval); err != nil {
		return err
	}
	return setDuration(&c.TypingIdle, "typing_idle", raw.TypingIdle)
}

func (c *Config) loadEnv() error {
	setString(&c.Port, os.Getenv("PORT"))
	setString(&c.DatabaseDriver, os.Getenv("DATABASE_DRIVER"))
	setString(&c.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&c.JWTSecret, os.Getenv("JWT_SECRET"))
	setString(&c.CORSOrigin, os.Getenv("CORS_ORIGIN"))
	setString(&c.LogLevel, os.Getenv("LOG_LEVEL"))

	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HISTORY_LIMIT: %w", err)
		}
		c.HistoryLimit = n
	}
	if v := os.Getenv("LOG_DEV"); v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_DEV: %w", err)
		}
		c.LogDev = dev
	}
	if err := setDuration(&c.TokenTTL, "TOKEN_TTL", os.Getenv("TOKEN_TTL")); err != nil {
		return err
	}
	if err := setDuration(&c.MetricsInterval, "METRICS_EXPORT_INTERVAL", os.Getenv("METRICS_EXPORT_INTERVAL")); err != nil {
		return err
	}
	return setDuration(&c.TypingIdle, "TYPING_IDLE", os.Getenv("TYPING_IDLE"))
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DatabaseDriver {
	case "sqlite3", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.TokenTTL <= 0 || c.TypingIdle <= 0 {
		return errors.New("durations must be positive")
	}
	if c.MetricsInterval < 0 {
		return errors.New("metrics interval must not be negative")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}
