package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port               string
	LogLevel           string
	DataDir            string
	MaxUploadBytes     int64
	BackupKeep         int
	RevenuePerContract float64
	SinkURL            string
	SinkSecret         string
	HTTPTimeout        time.Duration
	RetryAttempts      int
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DataDir:            getEnv("DATA_DIR", "./data"),
		MaxUploadBytes:     getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
		BackupKeep:         int(getEnvInt64("BACKUP_KEEP", 5)),
		RevenuePerContract: getEnvFloat("REVENUE_PER_CONTRACT", 50000),
		SinkURL:            getEnv("SINK_URL", ""),
		SinkSecret:         getEnv("SINK_SECRET", ""),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		RetryAttempts:      int(getEnvInt64("RETRY_ATTEMPTS", 3)),
	}
}

// NewLogger builds the JSON logger used by every component.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
