// Package config loads the server configuration from a YAML file and
// STOJALA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/stojala/internal/docstore"
)

// LogConfig controls the optional rotated log file.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the server configuration.
type Config struct {
	Addr          string `yaml:"addr"`
	DataDir       string `yaml:"data_dir"`
	PublicBaseURL string `yaml:"public_base_url"`
	// Memory keeps all documents in memory; nothing survives a restart.
	Memory bool `yaml:"memory"`

	Log LogConfig `yaml:"log"`

	NoticeTTL   time.Duration `yaml:"notice_ttl"`
	NoticeLimit int           `yaml:"notice_limit"`

	// ReconcileSchedule is a cron spec for finishing interrupted stand receipts.
	ReconcileSchedule string `yaml:"reconcile_schedule"`
	// ReconcileAfter is how old a pending report must be before it is finished.
	ReconcileAfter time.Duration `yaml:"reconcile_after"`

	// Store, when set, is applied at startup if no configuration was saved.
	Store *docstore.Config `yaml:"store"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:          ":8080",
		DataDir:       "./data",
		PublicBaseURL: "http://localhost:8080",
		Log: LogConfig{
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		NoticeTTL:         3 * time.Second,
		NoticeLimit:       20,
		ReconcileSchedule: "@every 1m",
		ReconcileAfter:    30 * time.Second,
	}
}

// Load reads path (if not empty) over the defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr required")
	}
	if c.DataDir == "" && !c.Memory {
		return errors.New("config: data_dir required")
	}
	if c.NoticeTTL <= 0 {
		return errors.New("config: notice_ttl must be positive")
	}
	if c.ReconcileSchedule == "" {
		return errors.New("config: reconcile_schedule required")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Addr, "STOJALA_ADDR")
	setString(&cfg.DataDir, "STOJALA_DATA_DIR")
	setString(&cfg.PublicBaseURL, "STOJALA_PUBLIC_BASE_URL")
	setString(&cfg.Log.File, "STOJALA_LOG_FILE")
	setString(&cfg.ReconcileSchedule, "STOJALA_RECONCILE_SCHEDULE")

	if v := os.Getenv("STOJALA_MEMORY"); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("STOJALA_MEMORY: %w", err)
		}
		cfg.Memory = b
	}
	if v := os.Getenv("STOJALA_NOTICE_TTL"); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("STOJALA_NOTICE_TTL: %w", err)
		}
		cfg.NoticeTTL = d
	}
	if v := os.Getenv("STOJALA_NOTICE_LIMIT"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("STOJALA_NOTICE_LIMIT: %w", err)
		}
		cfg.NoticeLimit = n
	}

	// A store configuration can be seeded from the environment.
	if key := os.Getenv("STOJALA_STORE_API_KEY"); key != "" {
		store := docstore.Config{}
		if cfg.Store != nil {
			store = *cfg.Store
		}
		store.APIKey = key
		setString(&store.AuthDomain, "STOJALA_STORE_AUTH_DOMAIN")
		setString(&store.ProjectID, "STOJALA_STORE_PROJECT_ID")
		setString(&store.StorageBucket, "STOJALA_STORE_STORAGE_BUCKET")
		setString(&store.MessagingSenderID, "STOJALA_STORE_MESSAGING_SENDER_ID")
		setString(&store.AppID, "STOJALA_STORE_APP_ID")
		cfg.Store = &store
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
