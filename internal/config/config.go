// Package config loads mailsheet's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full configuration.
type Config struct {
	Google struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
	} `yaml:"google"`

	Sheet struct {
		SpreadsheetID string `yaml:"spreadsheet_id"`
		Name          string `yaml:"name"`
	} `yaml:"sheet"`

	Ingest struct {
		BatchLimit  int    `yaml:"batch_limit"`
		ItemDelayMS int    `yaml:"item_delay_ms"`
		Query       string `yaml:"query"`
	} `yaml:"ingest"`

	State struct {
		WatermarkFile string `yaml:"watermark_file"`
		HistoryDB     string `yaml:"history_db"`
	} `yaml:"state"`

	Serve struct {
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"serve"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mailsheet", "config.yaml")
}

func defaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "mailsheet")
}

// Load reads and validates the config file at path. An empty path uses
// the default location.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if cfg.Sheet.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheet.spreadsheet_id is required")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	home, _ := os.UserHomeDir()
	confDir := filepath.Join(home, ".config", "mailsheet")

	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = filepath.Join(confDir, "credentials.json")
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = filepath.Join(confDir, "token.json")
	}
	if c.Sheet.Name == "" {
		c.Sheet.Name = "Email Log"
	}
	if c.Ingest.BatchLimit == 0 {
		c.Ingest.BatchLimit = 10
	}
	if c.Ingest.ItemDelayMS == 0 {
		c.Ingest.ItemDelayMS = 500
	}
	if c.Ingest.Query == "" {
		c.Ingest.Query = "is:unread in:inbox"
	}
	if c.State.WatermarkFile == "" {
		c.State.WatermarkFile = filepath.Join(defaultDataDir(), "last_processed.json")
	}
	if c.State.HistoryDB == "" {
		c.State.HistoryDB = filepath.Join(defaultDataDir(), "history.db")
	}
	if c.Serve.PollInterval == "" {
		c.Serve.PollInterval = "5m"
	}
}

// ItemDelay returns the configured inter-item delay.
func (c *Config) ItemDelay() time.Duration {
	return time.Duration(c.Ingest.ItemDelayMS) * time.Millisecond
}

// PollInterval returns the serve loop interval, defaulting on a bad value.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Serve.PollInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
