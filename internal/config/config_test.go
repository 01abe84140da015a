package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoad_defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "DATA_DIR", "MAX_UPLOAD_BYTES", "BACKUP_KEEP",
		"REVENUE_PER_CONTRACT", "SINK_URL", "SINK_SECRET", "HTTP_TIMEOUT", "RETRY_ATTEMPTS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 5, cfg.BackupKeep)
	assert.Equal(t, 50000.0, cfg.RevenuePerContract)
	assert.Empty(t, cfg.SinkURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
}

func TestLoad_overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_DIR", "/var/lib/leadboard")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("BACKUP_KEEP", "2")
	t.Setenv("REVENUE_PER_CONTRACT", "75000.5")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("RETRY_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/var/lib/leadboard", cfg.DataDir)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, 2, cfg.BackupKeep)
	assert.Equal(t, 75000.5, cfg.RevenuePerContract)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts, "invalid values fall back to the default")
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, (&Config{LogLevel: "debug"}).NewLogger().GetLevel())
	assert.Equal(t, logrus.InfoLevel, (&Config{LogLevel: "loud"}).NewLogger().GetLevel())
}
