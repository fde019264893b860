package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusunglee/subway-board/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MTA_API_KEY", "SUBWAY_STATION", "SUBWAY_LINES", "POLL_INTERVAL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "23st", cfg.Station)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.MinUseful)
	assert.Equal(t, 2, cfg.MaxFollowing)
	assert.Equal(t, []models.LineID{"1", "6", "C", "E", "F", "M", "R", "W"}, cfg.LineIDs())
	assert.Error(t, cfg.RequireAPIKey())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
api_key: file-key
station: 23st
lines: [F, m, 6X]
poll_interval: 45s
dedup_tolerance: 30s
max_following: 0
log_format: JSON
sleep:
  enabled: true
  start_hour: 23
  wake_hour: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, []models.LineID{"F", "M", "6"}, cfg.LineIDs())
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.DedupTolerance)
	assert.Equal(t, 0, cfg.MaxFollowing)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.Sleep.Enabled)
	assert.Equal(t, 23, cfg.Sleep.StartHour)

	// Unset fields keep their defaults
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MTA_API_KEY", "env-key")
	t.Setenv("SUBWAY_STATION", "14st-union-sq")
	t.Setenv("SUBWAY_LINES", "L, 6")
	t.Setenv("POLL_INTERVAL", "20")
	t.Setenv("LOG_LEVEL", "DEBUG")

	path := writeConfig(t, "api_key: file-key\nlines: [F]\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "14st-union-sq", cfg.Station)
	assert.Equal(t, []models.LineID{"L", "6"}, cfg.LineIDs())
	assert.Equal(t, 20*time.Second, cfg.PollInterval)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{
			name:    "line not at station",
			content: "lines: [L]\n",
		},
		{
			name:    "unknown station",
			content: "station: nowhere\n",
		},
		{
			name:    "poll interval too short",
			content: "poll_interval: 10ms\n",
		},
		{
			name:    "bad log level",
			content: "log_level: loud\n",
		},
		{
			name:    "sleep hour out of range",
			content: "sleep:\n  start_hour: 24\n",
		},
		{
			name:    "negative following",
			content: "max_following: -1\n",
		},
		{
			name:    "bad yaml",
			content: "lines: [F\n",
		},
		{
			name:    "bad env interval",
			content: "",
			env:     map[string]string{"POLL_INTERVAL": "soon"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"component":"test"`)
}
