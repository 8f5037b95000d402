// Package config loads application configuration from command-line flags,
// environment variables and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Token formats accepted by AuthConfig.TokenFormat.
const (
	TokenFormatPaseto = "paseto"
	TokenFormatJWT    = "jwt"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Data    DataConfig
	Server  ServerConfig
	Auth    AuthConfig
	Cleanup CleanupConfig
	Cache   CacheConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds on-disk locations.
type DataConfig struct {
	BasePath    string // database, search index and keys live here
	UploadsPath string // cover images; served under /uploads
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	PublicURL      string // prefix for imageUrl, without trailing slash
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	CORSOrigins    []string
	MaxUploadBytes int64
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	TokenFormat   string
	TokenDuration time.Duration
	BcryptCost    int
	// JWTSecret signs HS256 tokens when TokenFormat is jwt. Generated and
	// persisted under the data path when empty.
	JWTSecret string
	// Per-IP limit on signup/login.
	RateLimitPerMinute int
	RateLimitBurst     int
}

// CleanupConfig sizes the image cleanup worker pool.
type CleanupConfig struct {
	Workers   int
	QueueSize int
}

// CacheConfig configures the optional Redis read cache. Empty RedisAddr
// disables it.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds the configuration with precedence:
// 1. Command-line flags.
// 2. Environment variables.
// 3. .env file.
// 4. Defaults.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("shelfmark", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for database and keys")
	uploadsPath := fs.String("uploads-path", "", "Directory for uploaded cover images")
	port := fs.String("port", "", "Server port (default: 5000)")
	publicURL := fs.String("public-url", "", "Public base URL used to build image URLs")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed origins (default: *)")
	tokenFormat := fs.String("token-format", "", "Bearer token format: paseto or jwt")
	tokenDuration := fs.String("token-duration", "", "Bearer token lifetime (default: 1h)")
	redisAddr := fs.String("redis-addr", "", "Redis address for the read cache (disabled when empty)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// A missing .env file is fine; godotenv never overrides real env vars.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath:    getConfigValue(*dataPath, "DATA_PATH", ""),
			UploadsPath: getConfigValue(*uploadsPath, "UPLOADS_PATH", ""),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*port, "PORT", "5000"),
			PublicURL:      getConfigValue(*publicURL, "PUBLIC_URL", ""),
			CORSOrigins:    splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			MaxUploadBytes: int64(getIntConfigValue("", "MAX_UPLOAD_BYTES", 10<<20)),
		},
		Auth: AuthConfig{
			TokenFormat:        strings.ToLower(getConfigValue(*tokenFormat, "AUTH_TOKEN_FORMAT", TokenFormatPaseto)),
			BcryptCost:         getIntConfigValue("", "AUTH_BCRYPT_COST", 10),
			JWTSecret:          getConfigValue("", "AUTH_JWT_SECRET", ""),
			RateLimitPerMinute: getIntConfigValue("", "AUTH_RATE_LIMIT_PER_MINUTE", 20),
			RateLimitBurst:     getIntConfigValue("", "AUTH_RATE_LIMIT_BURST", 10),
		},
		Cleanup: CleanupConfig{
			Workers:   getIntConfigValue("", "CLEANUP_WORKERS", 2),
			QueueSize: getIntConfigValue("", "CLEANUP_QUEUE_SIZE", 256),
		},
		Cache: CacheConfig{
			RedisAddr:     getConfigValue(*redisAddr, "REDIS_ADDR", ""),
			RedisPassword: getConfigValue("", "REDIS_PASSWORD", ""),
			RedisDB:       getIntConfigValue("", "REDIS_DB", 0),
		},
	}

	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dst       *time.Duration
	}{
		{*tokenDuration, "AUTH_TOKEN_DURATION", "1h", &cfg.Auth.TokenDuration},
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{"", "CACHE_TTL", "30s", &cfg.Cache.TTL},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://localhost:" + cfg.Server.Port
	}
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data path cannot be empty")
	}
	if c.Data.UploadsPath == "" {
		return errors.New("uploads path cannot be empty")
	}

	if c.Auth.TokenFormat != TokenFormatPaseto && c.Auth.TokenFormat != TokenFormatJWT {
		return fmt.Errorf("invalid token format: %s (must be paseto or jwt)", c.Auth.TokenFormat)
	}
	if c.Auth.TokenDuration <= 0 {
		return errors.New("token duration must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("invalid bcrypt cost: %d (must be between 4 and 31)", c.Auth.BcryptCost)
	}

	if c.Cleanup.Workers < 1 {
		return errors.New("cleanup workers must be at least 1")
	}
	if c.Cleanup.QueueSize < 1 {
		return errors.New("cleanup queue size must be at least 1")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("max upload size must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data path (default ~/Shelfmark/data) and the
// uploads path (default {data}/uploads).
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	base, err := expandPath(c.Data.BasePath, filepath.Join(homeDir, "Shelfmark", "data"))
	if err != nil {
		return err
	}
	c.Data.BasePath = base

	uploads, err := expandPath(c.Data.UploadsPath, filepath.Join(base, "uploads"))
	if err != nil {
		return err
	}
	c.Data.UploadsPath = uploads
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
// Unparseable values fall back to the default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
