// Package config provides configuration for the chat engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the chat engine configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// LLM capability
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Intent classification
	ClassifierThreshold float64

	// Session policy
	AnonymousSessionTTL     time.Duration
	AuthenticatedSessionTTL time.Duration
	SweepSchedule           string

	// External collaborators
	PropertyServiceURL string
	RefSyncServiceURL  string

	// Turn handling
	MaxWriteRetries int
	HistoryWindow   int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:                getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:             getEnv("DATABASE_URL", "file:chatcore.db?cache=shared&mode=rwc"),
		LLMBaseURL:              getEnv("OPENAI_BASE_URL", ""),
		LLMAPIKey:               getEnv("OPENAI_API_KEY", ""),
		LLMModel:                getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout:              time.Duration(getEnvInt("LLM_TIMEOUT_MS", 30000)) * time.Millisecond,
		ClassifierThreshold:     getEnvFloat("CLASSIFIER_THRESHOLD", 0.5),
		AnonymousSessionTTL:     time.Duration(getEnvInt("ANONYMOUS_SESSION_TTL_HOURS", 24)) * time.Hour,
		AuthenticatedSessionTTL: time.Duration(getEnvInt("AUTH_SESSION_TTL_HOURS", 720)) * time.Hour,
		SweepSchedule:           getEnv("SWEEP_SCHEDULE", "@hourly"),
		PropertyServiceURL:      getEnv("PROPERTY_SERVICE_URL", ""),
		RefSyncServiceURL:       getEnv("REFSYNC_SERVICE_URL", ""),
		MaxWriteRetries:         getEnvInt("MAX_WRITE_RETRIES", 3),
		HistoryWindow:           getEnvInt("HISTORY_WINDOW", 5),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
