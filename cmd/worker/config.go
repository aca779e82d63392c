package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/reeltorecipe/video-worker/internal/models"
	"github.com/reeltorecipe/video-worker/internal/utils"
)

// loadConfig loads configuration from environment variables
func loadConfig() models.Config {
	config := models.Config{
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		OutputDir:           getEnv("OUTPUT_DIR", "/tmp/videos"),
		ConsumerGroup:       getEnv("CONSUMER_GROUP", "video-workers"),
		ConsumerName:        getEnv("CONSUMER_NAME", "consumer-"+uuid.NewString()),
		OCRConcurrency:      getEnvInt("OCR_CONCURRENCY", runtime.NumCPU()),
		OCREngine:           getEnv("OCR_ENGINE", utils.OCREngineLibrary),
		ToolTimeout:         getEnvDuration("TOOL_TIMEOUT", 15*time.Minute),
		TranscribeOutputDir: getEnv("TRANSCRIBE_OUTPUT_DIR", ""),
		DownloadProxyURL:    getEnv("DOWNLOAD_PROXY_URL", ""),
		DownloadCookiesPath: getEnv("DOWNLOAD_COOKIES_PATH", ""),
		PostgresURL:         getEnv("POSTGRES_URL", ""),
		StatsInterval:       getEnvDuration("STATS_INTERVAL", 30*time.Second),
		BlockTimeout:        5 * time.Second,
		IdleDelay:           time.Second,
		ErrorDelay:          5 * time.Second,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
	}

	return config
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets integer environment variable with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration such as "90s" or "15m"; "0" disables the limit
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if value == "0" {
			return 0
		}
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}
