package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Data: DataConfig{
			BasePath:    "/data",
			UploadsPath: "/data/uploads",
		},
		Server: ServerConfig{MaxUploadBytes: 10 << 20},
		Auth: AuthConfig{
			TokenFormat:   TokenFormatPaseto,
			TokenDuration: time.Hour,
			BcryptCost:    10,
		},
		Cleanup: CleanupConfig{Workers: 1, QueueSize: 10},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown environment", func(c *Config) { c.App.Environment = "test" }},
		{"environment is case sensitive", func(c *Config) { c.App.Environment = "DEVELOPMENT" }},
		{"bad log level", func(c *Config) { c.Logger.Level = "trace" }},
		{"empty data path", func(c *Config) { c.Data.BasePath = "" }},
		{"empty uploads path", func(c *Config) { c.Data.UploadsPath = "" }},
		{"unknown token format", func(c *Config) { c.Auth.TokenFormat = "saml" }},
		{"zero token duration", func(c *Config) { c.Auth.TokenDuration = 0 }},
		{"bcrypt cost too low", func(c *Config) { c.Auth.BcryptCost = 2 }},
		{"no cleanup workers", func(c *Config) { c.Cleanup.Workers = 0 }},
		{"no cleanup queue", func(c *Config) { c.Cleanup.QueueSize = 0 }},
		{"no upload size", func(c *Config) { c.Server.MaxUploadBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DATA_PATH", dataDir)

	cfg, err := Load([]string{"-env-file", filepath.Join(dataDir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "http://localhost:5000", cfg.Server.PublicURL)
	assert.Equal(t, filepath.Join(dataDir, "uploads"), cfg.Data.UploadsPath)
	assert.Equal(t, TokenFormatPaseto, cfg.Auth.TokenFormat)
	assert.Equal(t, time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Empty(t, cfg.Cache.RedisAddr)
}

func TestLoad_Precedence(t *testing.T) {
	dataDir := t.TempDir()
	envFile := filepath.Join(dataDir, ".env")
	content := "PORT=7000\nLOG_LEVEL=debug\nPUBLIC_URL=https://books.example.com/\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("DATA_PATH", dataDir)
	t.Setenv("LOG_LEVEL", "warn")
	// godotenv writes into the process environment.
	t.Cleanup(func() {
		_ = os.Unsetenv("PORT")
		_ = os.Unsetenv("PUBLIC_URL")
	})

	cfg, err := Load([]string{"-env-file", envFile, "-port", "9000"})
	require.NoError(t, err)

	// Flag beats .env.
	assert.Equal(t, "9000", cfg.Server.Port)
	// Real environment beats .env.
	assert.Equal(t, "warn", cfg.Logger.Level)
	// .env used when nothing else is set; trailing slash trimmed.
	assert.Equal(t, "https://books.example.com", cfg.Server.PublicURL)
}

func TestLoad_InvalidDuration(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DATA_PATH", dataDir)
	t.Setenv("AUTH_TOKEN_DURATION", "soon")

	_, err := Load([]string{"-env-file", filepath.Join(dataDir, "missing.env")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_TOKEN_DURATION")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/books", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "books"), got)

	got, err = expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("/a/../b", "")
	require.NoError(t, err)
	assert.Equal(t, "/b", got)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a , http://b ,"))
	assert.Nil(t, splitList(""))
}
