package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("INTEGRITY_SCHEDULE", "@hourly")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "@hourly", cfg.Integrity.Schedule)
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, 100, cfg.Processing.Waveform.Points)
}

func TestLoadProcessing_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.toml")
	content := `
max_upload_bytes = 1048576
strict_mime = true

[allowed_extensions]
image = ["png"]

[thumbnails]
image_width = 128
image_height = 96

[waveform]
points = 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadProcessing(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1048576), cfg.MaxUploadBytes)
	assert.True(t, cfg.StrictMIME)
	assert.Equal(t, []string{"png"}, cfg.AllowedExtensions["image"])
	assert.Equal(t, 128, cfg.Thumbnails.ImageWidth)
	assert.Equal(t, 96, cfg.Thumbnails.ImageHeight)
	// Untouched keys keep their defaults.
	assert.True(t, cfg.Thumbnails.Enabled)
	assert.Equal(t, 640, cfg.Thumbnails.VideoWidth)
	assert.Equal(t, 1024, cfg.Spectrogram.FFTSize)
	// Non-positive point counts are reset.
	assert.Equal(t, 100, cfg.Waveform.Points)
}

func TestLoadProcessing_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.toml")
	require.NoError(t, os.WriteFile(path, []byte("strict_mime = true\n"), 0o600))

	t.Setenv("STRICT_MIME", "false")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")

	cfg, err := LoadProcessing(path)
	require.NoError(t, err)
	assert.False(t, cfg.StrictMIME)
	assert.Equal(t, int64(2048), cfg.MaxUploadBytes)
}

func TestLoadProcessing_Errors(t *testing.T) {
	_, err := LoadProcessing(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	t.Setenv("MAX_UPLOAD_BYTES", "-1")
	_, err = LoadProcessing("")
	assert.Error(t, err)
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	t.Setenv(key, "value")

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	t.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	t.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	t.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	t.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))
	assert.Equal(t, int64(123), getEnvInt64(key, 0))

	t.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))
	assert.Equal(t, int64(10), getEnvInt64(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}
