// Package config provides configuration for the gateway.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Upstream support backend
	BackendURL   string
	BackendToken string
	BackendRPS   float64
	BackendBurst int

	// Poll cadences
	TranscriptPollEvery  time.Duration
	SessionListPollEvery time.Duration

	// Reconciler match window: how far a server timestamp may drift from the
	// local creation time and still identify the same message. Too small
	// shows duplicates after confirmation; too large risks cross-matching
	// identical texts sent close together.
	MatchWindow time.Duration

	// Send pipeline
	SendTimeout time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8080),
		BackendURL:           getEnv("BACKEND_URL", "http://localhost:9090"),
		BackendToken:         getEnv("BACKEND_TOKEN", ""),
		BackendRPS:           float64(getEnvInt("BACKEND_RPS", 10)),
		BackendBurst:         getEnvInt("BACKEND_BURST", 20),
		TranscriptPollEvery:  time.Duration(getEnvInt("TRANSCRIPT_POLL_MS", 3000)) * time.Millisecond,
		SessionListPollEvery: time.Duration(getEnvInt("SESSION_LIST_POLL_MS", 15000)) * time.Millisecond,
		MatchWindow:          time.Duration(getEnvInt("MATCH_WINDOW_MS", 5000)) * time.Millisecond,
		SendTimeout:          time.Duration(getEnvInt("SEND_TIMEOUT_MS", 10000)) * time.Millisecond,
	}
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
