package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"forestlog/internal/game"
)

const FileName = "forestlog.yml"

// Config models forestlog.yml.
type Config struct {
	Game struct {
		Timezone       string                `yaml:"timezone"`
		PointsPerLevel int                   `yaml:"points_per_level"`
		Effort         map[string]PointRange `yaml:"effort"`
		Milestones     []Milestone           `yaml:"milestones"`
	} `yaml:"game"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Logging  LoggingConfig   `yaml:"logging"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type PointRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type Milestone struct {
	Threshold   int    `yaml:"threshold"`
	Badge       string `yaml:"badge"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Game.Timezone != "" {
		if _, err := time.LoadLocation(c.Game.Timezone); err != nil {
			return fmt.Errorf("config.game.timezone: %w", err)
		}
	}
	if c.Game.PointsPerLevel <= 0 {
		return fmt.Errorf("config.game.points_per_level must be positive")
	}
	for _, e := range game.Efforts {
		r, ok := c.Game.Effort[string(e)]
		if !ok {
			return fmt.Errorf("config.game.effort.%s is required", e)
		}
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("config.game.effort.%s has invalid range %d-%d", e, r.Min, r.Max)
		}
	}
	for name := range c.Game.Effort {
		if _, err := game.ParseEffort(name); err != nil {
			return fmt.Errorf("config.game.effort: %w", err)
		}
	}
	seen := make(map[string]bool, len(c.Game.Milestones))
	for _, m := range c.Game.Milestones {
		if m.Threshold <= 0 {
			return fmt.Errorf("milestone %q threshold must be positive", m.Badge)
		}
		if strings.TrimSpace(m.Badge) == "" {
			return fmt.Errorf("milestone with threshold %d has empty badge", m.Threshold)
		}
		if seen[m.Badge] {
			return fmt.Errorf("milestone badge %q defined twice", m.Badge)
		}
		seen[m.Badge] = true
	}
	if c.Auth.TokenTTL != "" {
		if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
			return fmt.Errorf("config.auth.token_ttl: %w", err)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Rules converts the game section into engine rules.
func (c *Config) Rules() game.Rules {
	rules := game.DefaultRules()
	if c == nil {
		return rules
	}
	if c.Game.PointsPerLevel > 0 {
		rules.PointsPerLevel = c.Game.PointsPerLevel
	}
	for name, r := range c.Game.Effort {
		rules.EffortPoints[game.Effort(name)] = game.PointRange{Min: r.Min, Max: r.Max}
	}
	if len(c.Game.Milestones) > 0 {
		rules.Milestones = rules.Milestones[:0]
		for _, m := range c.Game.Milestones {
			badgeType := m.Type
			if badgeType == "" {
				badgeType = game.BadgeTypeStreak
			}
			rules.Milestones = append(rules.Milestones, game.MilestoneRule{
				Threshold:   m.Threshold,
				BadgeName:   m.Badge,
				BadgeType:   badgeType,
				Description: m.Description,
			})
		}
	}
	return rules
}

// Location is the zone in which "today" is evaluated. Defaults to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Game.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Game.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) TokenTTL() time.Duration {
	if c != nil && c.Auth.TokenTTL != "" {
		if d, err := time.ParseDuration(c.Auth.TokenTTL); err == nil && d > 0 {
			return d
		}
	}
	return 7 * 24 * time.Hour
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
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

// WriteDefault writes the default template into workspace unless a config exists.
func WriteDefault(workspace string) (string, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

const defaultTemplate = `game:
  timezone: UTC
  points_per_level: 500
  effort:
    seed:
      min: 5
      max: 15
    sapling:
      min: 20
      max: 50
    oak:
      min: 60
      max: 150
  milestones:
    - threshold: 3
      badge: 3-Day Starter
      type: streak
      description: Logged for 3 consecutive days
    - threshold: 7
      badge: 7-Day Warrior
      type: streak
      description: Logged for 7 consecutive days
    - threshold: 10
      badge: 10-Day Champion
      type: streak
      description: Logged for 10 consecutive days
    - threshold: 30
      badge: 30-Day Legend
      type: streak
      description: Logged for 30 consecutive days

server:
  addr: 127.0.0.1:8080
  base_path: /api/v1

auth:
  token_ttl: 168h

logging:
  level: info
  file: ""
  max_size_mb: 100
  max_backups: 3
  max_age_days: 7
`
