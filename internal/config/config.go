// Package config loads dashboard settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CAMBRIA"

// Config holds all configuration for the service.
type Config struct {
	Environment string
	Version     string

	HTTP     HTTPConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Reset    ResetConfig
	SMTP     SMTPConfig
	Uploads  UploadsConfig
}

type HTTPConfig struct {
	Addr           string
	GRPCAddr       string
	MaxBodyBytes   int64
	RateBurst      int
	RatePerSecond  int
	AllowedOrigins []string
	TrustProxy     bool
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects the primary store. An empty DSN means degraded mode.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Configured reports whether a primary store was configured.
func (c DatabaseConfig) Configured() bool {
	return strings.TrimSpace(c.DSN) != ""
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	CookieName    string
	CookieSecure  bool

	// Seed credentials for the mock dataset used when no database is configured.
	BootstrapEmail    string
	BootstrapPassword string
}

type ResetConfig struct {
	CodeTTL  time.Duration
	FilePath string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Configured reports whether outgoing mail is enabled.
func (c SMTPConfig) Configured() bool {
	return strings.TrimSpace(c.Host) != ""
}

type UploadsConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Configured reports whether an object store bucket was configured.
func (c UploadsConfig) Configured() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// Load reads configuration. A .env file in the working directory is applied first
// (without overriding real environment variables); configFile is optional.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Environment: v.GetString("environment"),
		Version:     v.GetString("version"),
		HTTP: HTTPConfig{
			Addr:           v.GetString("http.addr"),
			GRPCAddr:       v.GetString("http.grpc_addr"),
			MaxBodyBytes:   v.GetInt64("http.max_body_bytes"),
			RateBurst:      v.GetInt("http.rate_burst"),
			RatePerSecond:  v.GetInt("http.rate_per_second"),
			AllowedOrigins: v.GetStringSlice("http.allowed_origins"),
			TrustProxy:     v.GetBool("http.trust_proxy"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("pg.dsn"),
			MaxOpenConns:    v.GetInt("pg.max_open_conns"),
			MaxIdleConns:    v.GetInt("pg.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("pg.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Auth: AuthConfig{
			SessionSecret: v.GetString("auth.session_secret"),
			SessionTTL:    v.GetDuration("auth.session_ttl"),
			CookieName:    v.GetString("auth.cookie_name"),
			CookieSecure:  v.GetBool("auth.cookie_secure"),

			BootstrapEmail:    v.GetString("auth.bootstrap_email"),
			BootstrapPassword: v.GetString("auth.bootstrap_password"),
		},
		Reset: ResetConfig{
			CodeTTL:  v.GetDuration("reset.code_ttl"),
			FilePath: v.GetString("reset.file_path"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
			FromName: v.GetString("smtp.from_name"),
		},
		Uploads: UploadsConfig{
			Bucket:       v.GetString("uploads.bucket"),
			Region:       v.GetString("uploads.region"),
			Endpoint:     v.GetString("uploads.endpoint"),
			UsePathStyle: v.GetBool("uploads.use_path_style"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.SessionSecret) == "" {
		return errors.New("config: auth.session_secret is required (CAMBRIA_AUTH_SESSION_SECRET)")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("config: auth.session_ttl must be positive")
	}
	if c.Reset.CodeTTL <= 0 {
		return errors.New("config: reset.code_ttl must be positive")
	}
	if c.SMTP.Configured() && strings.TrimSpace(c.SMTP.From) == "" {
		return errors.New("config: smtp.from is required when smtp.host is set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("version", "dev")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.grpc_addr", "")
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("http.rate_per_second", 20)
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pg.dsn", "")
	v.SetDefault("pg.max_open_conns", 10)
	v.SetDefault("pg.max_idle_conns", 10)
	v.SetDefault("pg.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("redis.url", "")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl", 8*time.Hour)
	v.SetDefault("auth.cookie_name", "cambria_session")
	v.SetDefault("auth.cookie_secure", true)
	v.SetDefault("auth.bootstrap_email", "admin@cambria.local")
	v.SetDefault("auth.bootstrap_password", "")
	v.SetDefault("reset.code_ttl", 15*time.Minute)
	v.SetDefault("reset.file_path", "data/reset-codes.json")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.from_name", "Cambria Dashboard")
	v.SetDefault("uploads.bucket", "")
	v.SetDefault("uploads.region", "us-east-1")
	v.SetDefault("uploads.endpoint", "")
	v.SetDefault("uploads.use_path_style", false)
}
