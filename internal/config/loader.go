package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from path. An empty path triggers discovery; if
// no file is found anywhere, defaults are returned so the CLI works without
// any setup.
func Load(path string) (*Config, error) {
	if path == "" {
		discovered, ok := discover()
		if !ok {
			return Defaults(), nil
		}
		path = discovered
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s", absPath)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// discover checks standard locations.
// Priority order: $OVERSEER_CONFIG, ~/.config/overseer/config.yaml, ./config.yaml
func discover() (string, bool) {
	if p := os.Getenv("OVERSEER_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "overseer", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", true
	}
	return "", false
}

func validate(cfg *Config) error {
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is empty")
	}
	if cfg.Task.Timeout <= 0 {
		return fmt.Errorf("task.timeout must be positive")
	}
	if cfg.Task.PollInterval <= 0 {
		return fmt.Errorf("task.poll_interval must be positive")
	}
	if cfg.Workers.GeneratorBin == "" {
		return fmt.Errorf("workers.generator_bin is empty")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is empty")
	}
	return nil
}
