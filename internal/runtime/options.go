package runtime

import (
	"fmt"
	"log/slog"

	"github.com/josephj/slack-copilot/internal/config"
	"github.com/josephj/slack-copilot/internal/storage"
	"github.com/josephj/slack-copilot/internal/storage/memory"
	"github.com/josephj/slack-copilot/internal/storage/sqlite"
)

// Option is a functional option for configuring a Copilot.
type Option func(*Copilot) error

// WithConfig supplies the loaded configuration. Required.
func WithConfig(cfg *config.Config) Option {
	return func(c *Copilot) error {
		c.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from a yaml file.
func WithConfigFile(path string) Option {
	return func(c *Copilot) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		c.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Copilot) error {
		c.logger = logger
		return nil
	}
}

// WithStore injects a storage backend, overriding the configured one.
func WithStore(store storage.Store) Option {
	return func(c *Copilot) error {
		c.store = store
		return nil
	}
}

// openStore builds the configured storage backend when none was injected.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "", "sqlite":
		store, err := sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("create sqlite storage: %w", err)
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}
