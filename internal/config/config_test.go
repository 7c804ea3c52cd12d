package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	conf, err := Parse(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, conf.Polling.RefreshInterval)
	assert.Equal(t, 2, conf.Polling.RetryAttempts)
	assert.Equal(t, time.Second, conf.Polling.RetryDelay)
	assert.Equal(t, 10*time.Second, conf.HTTP.RequestTimeout)
	assert.Equal(t, 8, conf.HTTP.FanoutLimit)
	assert.Equal(t, slog.LevelWarn, conf.Logger.Level)
	assert.False(t, conf.S3.Configured())
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_MONITOR_API_BASE_URL", "https://api.example.test/v1")
	t.Setenv("PIPELINE_MONITOR_POLLING_REFRESH_INTERVAL", "2s")
	t.Setenv("PIPELINE_MONITOR_LOGGER_LEVEL", "debug")
	t.Setenv("PIPELINE_MONITOR_S3_ENDPOINT", "localhost:9000")
	t.Setenv("PIPELINE_MONITOR_S3_ACCESS_KEY", "ak")
	t.Setenv("PIPELINE_MONITOR_S3_SECRET_KEY", "sk")

	conf, err := Parse(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.test/v1", conf.APIBaseURL)
	assert.Equal(t, "https://api.example.test/v1", conf.EffectiveFileDownloadBaseURL())
	assert.Equal(t, 2*time.Second, conf.Polling.RefreshInterval)
	assert.Equal(t, slog.LevelDebug, conf.Logger.Level)
	assert.True(t, conf.S3.Configured())
}

func TestParseDotEnvDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	data := "PIPELINE_MONITOR_CONVERTER_BASE_URL=https://conv.example.test\n" +
		"PIPELINE_MONITOR_FILE_DOWNLOAD_BASE_URL=https://files.from-dotenv.test\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("PIPELINE_MONITOR_FILE_DOWNLOAD_BASE_URL", "https://files.example.test")
	t.Setenv("PIPELINE_MONITOR_CONVERTER_BASE_URL", "")
	require.NoError(t, os.Unsetenv("PIPELINE_MONITOR_CONVERTER_BASE_URL"))
	t.Cleanup(func() { _ = os.Unsetenv("PIPELINE_MONITOR_CONVERTER_BASE_URL") })

	conf, err := Parse(path)
	require.NoError(t, err)

	assert.Equal(t, "https://conv.example.test", conf.ConverterBaseURL)
	assert.Equal(t, "https://files.example.test", conf.FileDownloadBaseURL)
}
