package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "file", cfg.Artifacts.Backend)
	assert.Equal(t, time.Hour, cfg.Artifacts.TTL)
	assert.Equal(t, "exact", cfg.Stats.DedupMode)
	assert.Equal(t, 3, cfg.Validation.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Validation.JobBudget)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "console", cfg.Logging.Output)
}

func TestLoadFrom_Environment(t *testing.T) {
	t.Setenv("CSVMAIL_SERVER_PORT", "9090")
	t.Setenv("CSVMAIL_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("CSVMAIL_SECURITY_ALLOWED_ORIGINS", "http://a.example,https://b.example")
	t.Setenv("CSVMAIL_LOGGING_LEVEL", "debug")
	t.Setenv("CSVMAIL_LOGGING_FORMAT", "text")
	t.Setenv("CSVMAIL_ARTIFACTS_BACKEND", "redis")
	t.Setenv("CSVMAIL_ARTIFACTS_REDIS_ADDR", "redis:6379")
	t.Setenv("CSVMAIL_STATS_DEDUP_MODE", "hashed")
	t.Setenv("CSVMAIL_VALIDATION_JOB_BUDGET", "90s")
	t.Setenv("CSVMAIL_VALIDATION_MULTIPLIER", "1.5")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "redis", cfg.Artifacts.Backend)
	assert.Equal(t, "redis:6379", cfg.Artifacts.Redis.Addr)
	assert.Equal(t, "hashed", cfg.Stats.DedupMode)
	assert.Equal(t, 90*time.Second, cfg.Validation.JobBudget)
	assert.Equal(t, 1.5, cfg.Validation.Multiplier)

	// Untouched fields keep their defaults.
	assert.Equal(t, 3, cfg.Validation.MaxAttempts)
}

func TestLoadFrom_FileThenEnvironment(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 6060
  read_timeout: 20s
logging:
  level: error
artifacts:
  dir: /var/lib/csvmail
  ttl: 2h
validation:
  workers: 4
`)
	t.Setenv("CSVMAIL_SERVER_PORT", "7070")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/csvmail", cfg.Artifacts.Dir)
	assert.Equal(t, 2*time.Hour, cfg.Artifacts.TTL)
	assert.Equal(t, 4, cfg.Validation.Workers)
	assert.Equal(t, 16, Default().Validation.Workers)
}

func TestLoad_ConfigFileFromEnvironment(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 5050\n")
	t.Setenv("CSVMAIL_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5050, cfg.Server.Port)
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "port out of range", env: map[string]string{"CSVMAIL_SERVER_PORT": "99999"}},
		{name: "zero port", env: map[string]string{"CSVMAIL_SERVER_PORT": "0"}},
		{name: "negative timeout", env: map[string]string{"CSVMAIL_SERVER_READ_TIMEOUT": "-5s"}},
		{name: "malformed duration", env: map[string]string{"CSVMAIL_ARTIFACTS_TTL": "soon"}},
		{name: "empty origins with cors", env: map[string]string{"CSVMAIL_SECURITY_ALLOWED_ORIGINS": ""}},
		{name: "unknown backend", env: map[string]string{"CSVMAIL_ARTIFACTS_BACKEND": "s3"}},
		{name: "redis without addr", env: map[string]string{"CSVMAIL_ARTIFACTS_BACKEND": "redis", "CSVMAIL_ARTIFACTS_REDIS_ADDR": ""}},
		{name: "unknown dedup mode", env: map[string]string{"CSVMAIL_STATS_DEDUP_MODE": "bloom"}},
		{name: "unknown log level", env: map[string]string{"CSVMAIL_LOGGING_LEVEL": "chatty"}},
		{name: "unknown log output", env: map[string]string{"CSVMAIL_LOGGING_OUTPUT": "syslog"}},
		{name: "zero workers", env: map[string]string{"CSVMAIL_VALIDATION_WORKERS": "0"}},
		{name: "shrinking backoff", env: map[string]string{"CSVMAIL_VALIDATION_MULTIPLIER": "0.5"}},
		{name: "sample ratio", env: map[string]string{"CSVMAIL_TELEMETRY_SAMPLE_RATIO": "2"}},
		{name: "trace exporter", env: map[string]string{"CSVMAIL_TELEMETRY_TRACE_EXPORTER": "jaeger"}},
		{name: "bad yaml", file: "server: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}
			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
