package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"protodesk/internal/domain"
)

// Config models protodesk.yml.
type Config struct {
	Statuses      []domain.Status `yaml:"statuses"`
	DefaultStatus string          `yaml:"default_status"`
	Storage       struct {
		Root string `yaml:"root"`
	} `yaml:"storage"`
	Reminders struct {
		Interval  string          `yaml:"interval"`
		Lookahead string          `yaml:"lookahead"`
		Webhooks  []WebhookConfig `yaml:"webhooks"`
	} `yaml:"reminders"`
}

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Enabled *bool             `yaml:"enabled"`
	Headers map[string]string `yaml:"headers"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pd config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Statuses) == 0 {
		return fmt.Errorf("config.statuses is required")
	}
	ids := map[int64]bool{}
	names := map[string]bool{}
	open := 0
	for _, s := range c.Statuses {
		if s.ID <= 0 {
			return fmt.Errorf("status %q has invalid id %d", s.Name, s.ID)
		}
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("status %d has empty name", s.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate status id %d", s.ID)
		}
		key := strings.ToLower(s.Name)
		if names[key] {
			return fmt.Errorf("duplicate status name %s", s.Name)
		}
		ids[s.ID] = true
		names[key] = true
		if !s.IsTerminal {
			open++
		}
	}
	if open == 0 {
		return fmt.Errorf("config.statuses needs at least one non-terminal status")
	}
	if c.DefaultStatus == "" {
		return fmt.Errorf("config.default_status is required")
	}
	def, ok := c.StatusByName(c.DefaultStatus)
	if !ok {
		return fmt.Errorf("default status %s not defined", c.DefaultStatus)
	}
	if def.IsTerminal {
		return fmt.Errorf("default status %s must not be terminal", c.DefaultStatus)
	}
	for _, field := range []struct{ name, value string }{
		{"reminders.interval", c.Reminders.Interval},
		{"reminders.lookahead", c.Reminders.Lookahead},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("config.%s: %w", field.name, err)
		}
	}
	for i, hook := range c.Reminders.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.reminders.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// StatusByName looks a seeded status up case-insensitively.
func (c *Config) StatusByName(name string) (domain.Status, bool) {
	for _, s := range c.Statuses {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return domain.Status{}, false
}

// ReminderInterval returns the notifier poll interval.
func (c *Config) ReminderInterval() time.Duration {
	return durationOr(c.Reminders.Interval, time.Minute)
}

// ReminderLookahead returns how far ahead the notifier picks reminders up.
func (c *Config) ReminderLookahead() time.Duration {
	return durationOr(c.Reminders.Lookahead, 0)
}

// StorageRoot resolves the attachment root against the workspace.
func (c *Config) StorageRoot(workspace string) string {
	root := c.Storage.Root
	if root == "" {
		root = filepath.Join(".protodesk", "storage")
	}
	if filepath.IsAbs(root) {
		return root
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, root)
}

func durationOr(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "protodesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `statuses:
  - id: 1
    name: New
    color: "#3b82f6"
    order: 1
  - id: 2
    name: In Progress
    color: "#f59e0b"
    order: 2
  - id: 3
    name: Waiting for Customer
    color: "#a855f7"
    order: 3
  - id: 4
    name: Completed
    color: "#22c55e"
    order: 4
    terminal: true
  - id: 5
    name: Cancelled
    color: "#ef4444"
    order: 5
    terminal: true

default_status: New

storage:
  root: .protodesk/storage

reminders:
  interval: 1m
  lookahead: 0s
  webhooks: []
`
