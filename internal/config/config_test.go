package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CAMBRIA_AUTH_SESSION_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Reset.CodeTTL)
	assert.Equal(t, 8*time.Hour, cfg.Auth.SessionTTL)
	assert.False(t, cfg.Database.Configured())
	assert.False(t, cfg.SMTP.Configured())
	assert.False(t, cfg.Uploads.Configured())
	assert.False(t, cfg.HTTP.TrustProxy)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CAMBRIA_AUTH_SESSION_SECRET", "s3cret")
	t.Setenv("CAMBRIA_PG_DSN", "postgres://localhost/cambria")
	t.Setenv("CAMBRIA_RESET_CODE_TTL", "5m")
	t.Setenv("CAMBRIA_HTTP_ADDR", ":9000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Database.Configured())
	assert.Equal(t, 5*time.Minute, cfg.Reset.CodeTTL)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CAMBRIA_AUTH_SESSION_SECRET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CAMBRIA_AUTH_SESSION_SECRET") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.SessionSecret)
}

func TestLoadRequiresSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CAMBRIA_AUTH_SESSION_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
}

func TestValidateSMTPFrom(t *testing.T) {
	cfg := &Config{
		Auth:  AuthConfig{SessionSecret: "x", SessionTTL: time.Hour},
		Reset: ResetConfig{CodeTTL: time.Minute},
		SMTP:  SMTPConfig{Host: "smtp.example.com"},
	}
	require.Error(t, cfg.Validate())
	cfg.SMTP.From = "noreply@example.com"
	require.NoError(t, cfg.Validate())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
