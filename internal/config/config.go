// Package config loads process configuration from an optional TOML file
// and LEDGER_* environment variables. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string // LEDGER_DATA_DIR (default ~/.local/state/bizledger)
	DatabaseURL string // LEDGER_DATABASE_URL (default sqlite://<data dir>/bizledger.db; "off" = document store only)
	NATSURL     string // LEDGER_NATS_URL (optional, empty = no events)
	LogLevel    string // LEDGER_LOG_LEVEL (default "info")

	// Backup settings
	SyncInterval   time.Duration // LEDGER_SYNC_INTERVAL (default 15m; 0 = disabled)
	SyncS3Bucket   string        // LEDGER_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // LEDGER_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // LEDGER_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // LEDGER_SYNC_S3_KEY (default "bizledger/backup.json")
	SyncS3History  int           // LEDGER_SYNC_S3_HISTORY (timestamped copies kept, default 30; 0 = latest only)
	SyncGitRepo    string        // LEDGER_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // LEDGER_SYNC_GIT_FILE (default "bizledger.json")
	SyncGitBranch  string        // LEDGER_SYNC_GIT_BRANCH (default "main")

	// File is the config file that was read, or "" if none.
	File string
}

// fileConfig is the on-disk shape of the config file.
type fileConfig struct {
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"`
	NATSURL     string `toml:"nats_url"`
	LogLevel    string `toml:"log_level"`
	Sync        struct {
		Interval string `toml:"interval"`
		S3       struct {
			Bucket   string `toml:"bucket"`
			Endpoint string `toml:"endpoint"`
			Region   string `toml:"region"`
			Key      string `toml:"key"`
		} `toml:"s3"`
		Git struct {
			Repo   string `toml:"repo"`
			File   string `toml:"file"`
			Branch string `toml:"branch"`
		} `toml:"git"`
	} `toml:"sync"`
}

// Load reads the config file named by LEDGER_CONFIG, or the default
// ~/.config/bizledger/config.toml when that exists, then applies the
// environment.
func Load() (*Config, error) {
	var fc fileConfig
	path, explicit := os.Getenv("LEDGER_CONFIG"), true
	if path == "" {
		path, explicit = defaultConfigPath(), false
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || explicit {
				return nil, fmt.Errorf("config file %s: %w", path, err)
			}
			path = ""
		}
	}

	c := &Config{
		DataDir:        envOrDefault("LEDGER_DATA_DIR", fc.DataDir),
		DatabaseURL:    envOrDefault("LEDGER_DATABASE_URL", fc.DatabaseURL),
		NATSURL:        envOrDefault("LEDGER_NATS_URL", fc.NATSURL),
		LogLevel:       envOrDefault("LEDGER_LOG_LEVEL", orDefault(fc.LogLevel, "info")),
		SyncS3Bucket:   envOrDefault("LEDGER_SYNC_S3_BUCKET", fc.Sync.S3.Bucket),
		SyncS3Endpoint: envOrDefault("LEDGER_SYNC_S3_ENDPOINT", fc.Sync.S3.Endpoint),
		SyncS3Region:   envOrDefault("LEDGER_SYNC_S3_REGION", orDefault(fc.Sync.S3.Region, "us-east-1")),
		SyncS3Key:      envOrDefault("LEDGER_SYNC_S3_KEY", orDefault(fc.Sync.S3.Key, "bizledger/backup.json")),
		SyncGitRepo:    envOrDefault("LEDGER_SYNC_GIT_REPO", fc.Sync.Git.Repo),
		SyncGitFile:    envOrDefault("LEDGER_SYNC_GIT_FILE", orDefault(fc.Sync.Git.File, "bizledger.json")),
		SyncGitBranch:  envOrDefault("LEDGER_SYNC_GIT_BRANCH", orDefault(fc.Sync.Git.Branch, "main")),
		File:           path,
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("LEDGER_DATA_DIR not set and no home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".local", "state", "bizledger")
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = "sqlite://" + filepath.Join(c.DataDir, "bizledger.db")
	}

	intervalStr := envOrDefault("LEDGER_SYNC_INTERVAL", orDefault(fc.Sync.Interval, "15m"))
	d, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_SYNC_INTERVAL: %w", err)
	}
	c.SyncInterval = d

	history := "30"
	if fc.Sync.S3.History != nil {
		history = strconv.Itoa(*fc.Sync.S3.History)
	}
	n, err := strconv.Atoi(envOrDefault("LEDGER_SYNC_S3_HISTORY", history))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("LEDGER_SYNC_S3_HISTORY: want a non-negative count")
	}
	c.SyncS3History = n

	if _, err := c.Level(); err != nil {
		return nil, err
	}
	return c, nil
}

// Level returns LogLevel as a slog level.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("LEDGER_LOG_LEVEL: unknown level %q", c.LogLevel)
}

// PrimaryDisabled reports whether the primary database is switched off.
func (c *Config) PrimaryDisabled() bool {
	return c.DatabaseURL == "off"
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bizledger", "config.toml")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
