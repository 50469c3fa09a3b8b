package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL  string
	APIToken    string
	LogLevel    string
	LogFormat   string
	HTTPTimeout time.Duration
	// RedirectDelay is how long the client waits before navigating to the
	// results view when a test turns out to be already completed.
	RedirectDelay time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		APIBaseURL:    getEnv("EXAMIND_API_URL", "http://localhost:8080/api/v1"),
		APIToken:      getEnv("EXAMIND_TOKEN", ""),
		LogLevel:      getEnv("LOG_LEVEL", "warn"),
		LogFormat:     getEnv("LOG_FORMAT", "pretty"),
		HTTPTimeout:   time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		RedirectDelay: time.Duration(getEnvInt("REDIRECT_DELAY_SECONDS", 3)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
