package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StorageSynthetic, cfg.StorageType)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.HasS3Config())
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(file, []byte("port: 9000\nlog_level: debug\nstorage_type: http\n"), 0o644))

	t.Setenv("PORT", "9100")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, StorageHTTP, cfg.StorageType)
}

func TestLoadS3FromEnv(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ACCESS_KEY", "minio")
	t.Setenv("S3_SECRET_KEY", "minio123")
	t.Setenv("S3_BUCKET", "lake")

	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.HasS3Config())
	assert.Equal(t, "lake", *cfg.S3.Bucket)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadS3IncompleteWarns(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.HasS3Config())
	assert.NotEmpty(t, cfg.Warnings)
}

func TestLoadRejectsUnknownStorageType(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "ftp")
	_, err := Load("")
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	cfg.LogLevel = "WARN"
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
	cfg.LogLevel = "unknown"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("# comment\nDOTENV_A=hello\nDOTENV_B=\"quoted\"\n"), 0o644))

	t.Setenv("DOTENV_A", "already-set")
	os.Unsetenv("DOTENV_B")
	t.Cleanup(func() { os.Unsetenv("DOTENV_B") })

	require.NoError(t, LoadDotEnv(file))
	assert.Equal(t, "already-set", os.Getenv("DOTENV_A"))
	assert.Equal(t, "quoted", os.Getenv("DOTENV_B"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing")))
}
