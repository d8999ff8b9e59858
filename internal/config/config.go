package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "SPORTTRACKER"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "sporttracker.db"
	defaultServerDBPath  = "sporttracker-cloud.db"
	defaultRemoteURL     = "http://localhost:8080"
	defaultLogLevel      = "info"
	defaultTokenTTLMin   = 720
	defaultSyncIntervalS = 300
)

// AppConfig captures runtime configuration for both the device-side CLI and
// the cloud API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	ServerDBPath  string
	RemoteURL     string
	SigningSecret string
	TokenTTL      time.Duration
	SyncInterval  time.Duration
	LogLevel      string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("server.database_path", defaultServerDBPath)
	configViper.SetDefault("remote.url", defaultRemoteURL)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("sync.interval_seconds", defaultSyncIntervalS)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		ServerDBPath:  configViper.GetString("server.database_path"),
		RemoteURL:     configViper.GetString("remote.url"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		SyncInterval:  time.Duration(configViper.GetInt("sync.interval_seconds")) * time.Second,
		LogLevel:      configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.RemoteURL) == "" {
		return fmt.Errorf("remote.url is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync.interval_seconds must be positive")
	}
	return nil
}
