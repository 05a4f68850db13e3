package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds the gateway's environment-supplied settings.
type Config struct {
	Port            string
	UpstreamBaseURL string
	UpstreamWSURL   string
	DatabaseURL     string // empty disables the review archive
	ReplyTimeout    time.Duration
}

// New loads .env if present, installs the global zap logger, and reads
// the environment.
func New() *Config {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		Port:            getenv("PORT", "8080"),
		UpstreamBaseURL: getenv("UPSTREAM_BASE_URL", "http://localhost:8000"),
		UpstreamWSURL:   getenv("UPSTREAM_WS_URL", "ws://localhost:8000"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ReplyTimeout:    getduration("REPLY_TIMEOUT", 2*time.Minute),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		zap.S().Warnw("ignoring unparseable duration", "key", key, "value", v)
		return fallback
	}
	return d
}
