// Package config provides YAML-based configuration loading for Recap.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Recap configuration, loaded from recap.yaml.
// Secrets may be supplied (or overridden) through the environment:
// RECAP_SLACK_BOT_TOKEN, RECAP_SLACK_SIGNING_SECRET, RECAP_SUMMARIZER_API_KEY.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Slack      SlackConfig      `yaml:"slack"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Digests    []DigestConfig   `yaml:"digests"`
	Verbose    bool             `yaml:"verbose"`
}

// ServerConfig holds the webhook HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SlackConfig holds Slack credentials.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token"`
	SigningSecret string `yaml:"signing_secret"`
}

// SummarizerConfig holds connection settings for the summarization API.
type SummarizerConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DigestConfig defines one scheduled channel digest.
type DigestConfig struct {
	Channel  string `yaml:"channel"`
	Schedule string `yaml:"schedule"` // 5-field cron expression
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from environment variables when set.
func (c *Config) applyEnv() {
	if v := os.Getenv("RECAP_SLACK_BOT_TOKEN"); v != "" {
		c.Slack.BotToken = v
	}
	if v := os.Getenv("RECAP_SLACK_SIGNING_SECRET"); v != "" {
		c.Slack.SigningSecret = v
	}
	if v := os.Getenv("RECAP_SUMMARIZER_API_KEY"); v != "" {
		c.Summarizer.APIKey = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Summarizer.TimeoutSeconds == 0 {
		c.Summarizer.TimeoutSeconds = 30
	}
	for i := range c.Digests {
		if c.Digests[i].Schedule == "" {
			c.Digests[i].Schedule = "0 9 * * *"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token is required")
	}
	if c.Slack.SigningSecret == "" {
		errs = append(errs, "slack.signing_secret is required")
	}
	if c.Summarizer.URL == "" {
		errs = append(errs, "summarizer.url is required")
	}
	if c.Summarizer.APIKey == "" {
		errs = append(errs, "summarizer.api_key is required")
	}
	for i, d := range c.Digests {
		if d.Channel == "" {
			errs = append(errs, fmt.Sprintf("digests[%d].channel is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
