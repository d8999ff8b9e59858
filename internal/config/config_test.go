package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("expected default database path, got %q", cfg.DatabasePath)
	}
	if cfg.RemoteURL != defaultRemoteURL {
		t.Fatalf("expected default remote url, got %q", cfg.RemoteURL)
	}
	if cfg.TokenTTL != time.Duration(defaultTokenTTLMin)*time.Minute {
		t.Fatalf("expected default token ttl, got %v", cfg.TokenTTL)
	}
	if cfg.SyncInterval != time.Duration(defaultSyncIntervalS)*time.Second {
		t.Fatalf("expected default sync interval, got %v", cfg.SyncInterval)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	configViper := NewViper()
	configViper.Set("database.path", "/tmp/custom.db")
	configViper.Set("remote.url", "https://sync.example.com")
	configViper.Set("sync.interval_seconds", 30)
	configViper.Set("log.level", "debug")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/custom.db" {
		t.Fatalf("expected overridden database path, got %q", cfg.DatabasePath)
	}
	if cfg.RemoteURL != "https://sync.example.com" {
		t.Fatalf("expected overridden remote url, got %q", cfg.RemoteURL)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Fatalf("expected 30s sync interval, got %v", cfg.SyncInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		badValue any
	}{
		{name: "blank database path", key: "database.path", badValue: "   "},
		{name: "blank remote url", key: "remote.url", badValue: ""},
		{name: "zero sync interval", key: "sync.interval_seconds", badValue: 0},
		{name: "negative sync interval", key: "sync.interval_seconds", badValue: -5},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set(testCase.key, testCase.badValue)
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected %s to be rejected", testCase.name)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	t.Setenv("SPORTTRACKER_DATABASE_PATH", "/var/lib/sporttracker.db")
	t.Setenv("SPORTTRACKER_LOG_LEVEL", "warn")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabasePath != "/var/lib/sporttracker.db" {
		t.Fatalf("expected env-provided database path, got %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected env-provided log level, got %q", cfg.LogLevel)
	}
}
