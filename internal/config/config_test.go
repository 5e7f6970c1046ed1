package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STOCKPILE_CONFIG", "STOCKPILE_ENV", "STOCKPILE_API_URL", "STOCKPILE_PROD_API_URL",
		"STOCKPILE_API_TIMEOUT_MS", "STOCKPILE_WITH_CREDENTIALS", "STOCKPILE_REFRESH_SCHEDULE",
		"STOCKPILE_LOGIN_PATH", "STOCKPILE_HOME_PATH", "STOCKPILE_DASH_ADDR",
		"STOCKPILE_DASH_ORIGINS", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	// Keep stray .env files in the package dir out of the picture
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "http://localhost:8000/api", cfg.BaseURL())
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.API.WithCredentials)
	assert.Equal(t, "@every 4m", cfg.Session.RefreshSchedule)
	assert.Equal(t, "/login", cfg.Session.LoginPath)
	assert.Equal(t, "/", cfg.Session.HomePath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)

	t.Setenv("STOCKPILE_ENV", "Production")
	t.Setenv("STOCKPILE_API_URL", "http://dev.example.com/api")
	t.Setenv("STOCKPILE_PROD_API_URL", "https://api.example.com")
	t.Setenv("STOCKPILE_API_TIMEOUT_MS", "20000")
	t.Setenv("STOCKPILE_WITH_CREDENTIALS", "false")
	t.Setenv("STOCKPILE_DASH_ORIGINS", "http://localhost:3000, http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL())
	assert.Equal(t, 20*time.Second, cfg.API.Timeout)
	assert.False(t, cfg.API.WithCredentials)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Dash.AllowOrigins)
}

func TestLoad_ProductionWithoutProdURLFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOCKPILE_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", cfg.BaseURL())
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "stockpile.yaml")
	content := `
api:
  base_url: http://yaml.example.com/api
  timeout: 10s
session:
  refresh_schedule: "@every 2m"
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("STOCKPILE_CONFIG", path)

	// Environment wins over the file
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://yaml.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, "@every 2m", cfg.Session.RefreshSchedule)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	// Untouched keys keep their defaults
	assert.Equal(t, "/login", cfg.Session.LoginPath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"timeout too small", "STOCKPILE_API_TIMEOUT_MS", "10"},
		{"timeout not a number", "STOCKPILE_API_TIMEOUT_MS", "soon"},
		{"bad base url", "STOCKPILE_API_URL", "not a url"},
		{"login path not absolute", "STOCKPILE_LOGIN_PATH", "login"},
		{"unknown environment", "STOCKPILE_ENV", "staging"},
		{"bad credentials flag", "STOCKPILE_WITH_CREDENTIALS", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
