// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the pipeline service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	DispatcherCount int
	HandlerTimeout  time.Duration
	ReaperInterval  time.Duration

	DefaultMaxSpawnDepth int // depth ceiling stamped on new root items
	DefaultMaxRetries    int

	BoardAPIURL string
	BoardAppID  string
	BoardAppKey string
}

func positiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
	}
	return v, nil
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("PIPELINE_PORT")
	if port == "" {
		port = "8083"
	}

	dispatchers, err := positiveInt("DISPATCHER_COUNT", 2)
	if err != nil {
		return nil, err
	}
	timeoutSecs, err := positiveInt("HANDLER_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	reaperSecs, err := positiveInt("REAPER_INTERVAL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	maxDepth, err := positiveInt("DEFAULT_MAX_SPAWN_DEPTH", 10)
	if err != nil {
		return nil, err
	}
	maxRetries, err := positiveInt("DEFAULT_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	boardURL := os.Getenv("BOARD_API_URL")
	if boardURL == "" {
		boardURL = "https://api.adzuna.com/v1/api/jobs/us"
	}

	return &Config{
		Port:                 port,
		DatabaseURL:          dbURL,
		RedisURL:             redisURL,
		DispatcherCount:      dispatchers,
		HandlerTimeout:       time.Duration(timeoutSecs) * time.Second,
		ReaperInterval:       time.Duration(reaperSecs) * time.Second,
		DefaultMaxSpawnDepth: maxDepth,
		DefaultMaxRetries:    maxRetries,
		BoardAPIURL:          boardURL,
		BoardAppID:           os.Getenv("BOARD_APP_ID"),
		BoardAppKey:          os.Getenv("BOARD_APP_KEY"),
	}, nil
}
