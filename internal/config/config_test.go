package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var allKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_USERS",
	"CYCLE_INTERVAL_MINUTES", "FETCH_TIMEOUT_SECONDS", "GATE_WAIT_SECONDS",
	"BATCH_MAX_CHARS", "BATCH_MAX_ITEMS", "DISPATCH_PER_SECOND",
	"DISPATCH_MAX_ATTEMPTS", "SEEN_RETENTION_DAYS",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: &Config{
				TelegramBotToken: "test-token",
				DatabasePath:     "./data/watchbot.db",
				LogLevel:         "info",
				AllowedUsers:     nil,
				CycleInterval:    15 * time.Minute,
				FetchTimeout:     30 * time.Second,
				GateWait:         60 * time.Second,
				BatchMaxChars:    4000,
				BatchMaxItems:    10,
				DispatchPerSec:   20,
				DispatchAttempts: 5,
				SeenRetention:    90 * 24 * time.Hour,
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":     "tok",
				"DATABASE_PATH":          "/tmp/bot.db",
				"LOG_LEVEL":              "debug",
				"ALLOWED_USERS":          "111,222,333",
				"CYCLE_INTERVAL_MINUTES": "5",
				"FETCH_TIMEOUT_SECONDS":  "10",
				"GATE_WAIT_SECONDS":      "30",
				"BATCH_MAX_CHARS":        "2000",
				"BATCH_MAX_ITEMS":        "5",
				"DISPATCH_PER_SECOND":    "10",
				"DISPATCH_MAX_ATTEMPTS":  "3",
				"SEEN_RETENTION_DAYS":    "30",
			},
			want: &Config{
				TelegramBotToken: "tok",
				DatabasePath:     "/tmp/bot.db",
				LogLevel:         "debug",
				AllowedUsers:     []int64{111, 222, 333},
				CycleInterval:    5 * time.Minute,
				FetchTimeout:     10 * time.Second,
				GateWait:         30 * time.Second,
				BatchMaxChars:    2000,
				BatchMaxItems:    5,
				DispatchPerSec:   10,
				DispatchAttempts: 3,
				SeenRetention:    30 * 24 * time.Hour,
			},
		},
		{
			name: "invalid user id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "123,abc",
			},
			wantErr: true,
		},
		{
			name: "interval out of range",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":     "tok",
				"CYCLE_INTERVAL_MINUTES": "0",
			},
			wantErr: true,
		},
		{
			name: "batch chars above transport limit",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"BATCH_MAX_CHARS":    "9000",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range allKeys {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []int64
		userID  int64
		want    bool
	}{
		{name: "empty list allows everyone", allowed: nil, userID: 42, want: true},
		{name: "listed user", allowed: []int64{1, 2, 3}, userID: 2, want: true},
		{name: "unlisted user", allowed: []int64{1, 2, 3}, userID: 42, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowed}
			if got := cfg.IsUserAllowed(tt.userID); got != tt.want {
				t.Errorf("IsUserAllowed(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}
