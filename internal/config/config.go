package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            int
	DatabaseURL     string
	NatsURL         string
	NatsToken       string
	LogLevel        string
	LogFormat       string
	AnthropicAPIKey string
	AnthropicModel  string
	AnthropicURL    string
	MaxTokens       int
	AllowedOrigin   string
	APIToken        string

	RateLimitBackend string
	RateLimitUnauth  int
	RateLimitAuth    int
	RateLimitWindow  time.Duration

	// StreamAtomic buffers each attempt and discards it on retry, so the
	// client never sees output from a failed attempt.
	StreamAtomic bool
}

func Load() Config {
	return Config{
		Port:            envInt("SCOPECAST_PORT", 8780),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFormat:       envStr("LOG_FORMAT", "json"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("SCOPECAST_MODEL", "claude-3-5-sonnet-20241022"),
		AnthropicURL:    envStr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		MaxTokens:       envInt("SCOPECAST_MAX_TOKENS", 4096),
		AllowedOrigin:   envStr("ALLOWED_ORIGIN", "http://localhost:5173"),
		APIToken:        envStr("SCOPECAST_API_TOKEN", ""),

		RateLimitBackend: strings.ToLower(envStr("RATE_LIMIT_BACKEND", "memory")),
		RateLimitUnauth:  envInt("RATE_LIMIT_UNAUTH", 5),
		RateLimitAuth:    envInt("RATE_LIMIT_AUTH", 15),
		RateLimitWindow:  envDuration("RATE_LIMIT_WINDOW", time.Hour),

		StreamAtomic: envBool("STREAM_ATOMIC", false),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
