package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the relay's runtime settings, read from the environment.
type Config struct {
	// HTTP listener
	Port       string
	CORSOrigin string

	// Identity provider
	SupabaseURL     string
	SupabaseAnonKey string
	VerifyTimeout   time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and an optional .env
// file. The identity provider settings are required; everything else has a
// default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		CORSOrigin:      getEnvOrDefault("CORS_ORIGIN", "*"),
		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey: os.Getenv("SUPABASE_ANON_KEY"),
		VerifyTimeout:   time.Duration(getEnvIntOrDefault("VERIFY_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:         os.Getenv("LOG_FILE"),
	}

	if cfg.SupabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return nil, fmt.Errorf("SUPABASE_ANON_KEY is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
