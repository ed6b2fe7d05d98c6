package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models ahjosync.yml.
type Config struct {
	Remote struct {
		BaseURL  string `yaml:"base_url"`
		TokenEnv string `yaml:"token_env"`
		Language string `yaml:"language"`
	} `yaml:"remote"`
	Backfill struct {
		ChunkDays int `yaml:"chunk_days"`
	} `yaml:"backfill"`
	Worker struct {
		// Max-retry windows before a failed task escalates to the
		// next queue, keyed by task origin.
		NotificationWindow Duration `yaml:"notification_window"`
		BulkWindow         Duration `yaml:"bulk_window"`
	} `yaml:"worker"`
}

// Duration wraps time.Duration for YAML round-tripping ("3h", "72h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("config.remote.base_url is required")
	}
	if c.Remote.Language == "" {
		return fmt.Errorf("config.remote.language is required")
	}
	if c.Backfill.ChunkDays <= 0 {
		return fmt.Errorf("config.backfill.chunk_days must be positive")
	}
	if c.Worker.NotificationWindow <= 0 {
		return fmt.Errorf("config.worker.notification_window must be positive")
	}
	if c.Worker.BulkWindow <= 0 {
		return fmt.Errorf("config.worker.bulk_window must be positive")
	}
	return nil
}

// Token resolves the remote API bearer credential from the environment.
// The token itself never lives in the config file.
func (c *Config) Token() string {
	env := c.Remote.TokenEnv
	if env == "" {
		env = "AHJOSYNC_API_TOKEN"
	}
	return os.Getenv(env)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ahjosync.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `remote:
  base_url: https://ahjo.hel.fi:9802/ahjorest/v1
  token_env: AHJOSYNC_API_TOKEN
  language: fi

backfill:
  chunk_days: 7

worker:
  notification_window: 3h
  bulk_window: 72h
`
