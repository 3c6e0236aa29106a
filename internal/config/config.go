// Package config loads the service configuration from config.yaml and
// SLACKCOPILOT_-prefixed environment variables.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Slack     SlackConfig     `koanf:"slack"`
	Assistant AssistantConfig `koanf:"assistant"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type SlackConfig struct {
	// Upstream is the Slack web client origin the intercept proxy
	// forwards to.
	Upstream string `koanf:"upstream"`
	// APIBaseURL is where conversations.replies and users.list live.
	APIBaseURL string `koanf:"api_base_url"`
	// PollInterval is the navigation poll cadence, e.g. "500ms".
	PollInterval string `koanf:"poll_interval"`
}

type AssistantConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile loads configuration from the given yaml file, then overlays
// SLACKCOPILOT_ environment variables (double underscore separates
// nesting levels) and applies defaults.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("SLACKCOPILOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SLACKCOPILOT_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8090)
	}
	if !k.Exists("slack.upstream") {
		k.Set("slack.upstream", "https://app.slack.com")
	}
	if !k.Exists("slack.api_base_url") {
		k.Set("slack.api_base_url", "https://app.slack.com/api")
	}
	if !k.Exists("slack.poll_interval") {
		k.Set("slack.poll_interval", "500ms")
	}
	if !k.Exists("assistant.model") {
		k.Set("assistant.model", "llama-3.3-70b-versatile")
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "sqlite")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "slack-copilot.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Assistant.APIKey = substituteEnvVars(cfg.Assistant.APIKey)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
