// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	CycleInterval    time.Duration
	FetchTimeout     time.Duration
	GateWait         time.Duration
	BatchMaxChars    int
	BatchMaxItems    int
	DispatchPerSec   float64
	DispatchAttempts int
	SeenRetention    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/watchbot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	cycleMin, err := envInt("CYCLE_INTERVAL_MINUTES", 15, 1, 1440)
	if err != nil {
		return nil, err
	}
	fetchSec, err := envInt("FETCH_TIMEOUT_SECONDS", 30, 1, 300)
	if err != nil {
		return nil, err
	}
	gateSec, err := envInt("GATE_WAIT_SECONDS", 60, 1, 600)
	if err != nil {
		return nil, err
	}
	// 4096 is Telegram's hard message limit; leave headroom by default.
	maxChars, err := envInt("BATCH_MAX_CHARS", 4000, 200, 4096)
	if err != nil {
		return nil, err
	}
	maxItems, err := envInt("BATCH_MAX_ITEMS", 10, 1, 100)
	if err != nil {
		return nil, err
	}
	perSec, err := envInt("DISPATCH_PER_SECOND", 20, 1, 30)
	if err != nil {
		return nil, err
	}
	attempts, err := envInt("DISPATCH_MAX_ATTEMPTS", 5, 1, 20)
	if err != nil {
		return nil, err
	}
	retentionDays, err := envInt("SEEN_RETENTION_DAYS", 90, 1, 3650)
	if err != nil {
		return nil, err
	}

	return &Config{
		TelegramBotToken: token,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
		AllowedUsers:     allowedUsers,
		CycleInterval:    time.Duration(cycleMin) * time.Minute,
		FetchTimeout:     time.Duration(fetchSec) * time.Second,
		GateWait:         time.Duration(gateSec) * time.Second,
		BatchMaxChars:    maxChars,
		BatchMaxItems:    maxItems,
		DispatchPerSec:   float64(perSec),
		DispatchAttempts: attempts,
		SeenRetention:    time.Duration(retentionDays) * 24 * time.Hour,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envInt(key string, def, min, max int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", key, min, max, v)
	}
	return v, nil
}
