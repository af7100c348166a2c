package config

import (
	"os"
	"strings"
	"time"
)

type AppConfig struct {
	// Backend API
	APIBaseURL string
	PortalHost string

	// Session persistence
	SessionBackend string // "file" or "redis"
	SessionFile    string
	SessionGroup   string
	RedisAddr      string
	RedisPass      string

	// BankID polling
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Loopback callback server for browser redirects
	CallbackAddr string

	// Delay before the post-checkout dashboard redirect
	RedirectDelay time.Duration

	Debug bool
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		APIBaseURL: getEnv("API_BASE_URL", "https://sandboxapi.optimum-method.com/api"),
		PortalHost: getEnv("PORTAL_HOST", "app.optimum-method.com"),

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "file")),
		SessionFile:    getEnv("SESSION_FILE", ""),
		SessionGroup:   getEnv("SESSION_GROUP", "default"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:      getEnv("REDIS_PASS", ""),

		PollInterval: getEnvDuration("BANKID_POLL_INTERVAL", 2*time.Second),
		PollTimeout:  getEnvDuration("BANKID_POLL_TIMEOUT", 5*time.Minute),

		CallbackAddr: getEnv("CALLBACK_ADDR", "127.0.0.1:8765"),

		RedirectDelay: getEnvDuration("REDIRECT_DELAY", 3*time.Second),

		Debug: strings.ToLower(getEnv("DEBUG", "false")) == "true",
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
