package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultServer is used when neither a flag nor the config file names one.
	DefaultServer  = "http://localhost:8080"
	DefaultTimeout = 10 * time.Minute
)

// Config is the releasectl user config. Server includes the context path.
type Config struct {
	Server  string        `yaml:"server,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ConfigPathOverride allows tests to override the config file path.
var ConfigPathOverride string

func configPath() string {
	if ConfigPathOverride != "" {
		return ConfigPathOverride
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".releasectl.yaml")
}

// LoadConfig reads the user config. A missing file yields an empty config.
func LoadConfig() (*Config, error) {
	path := configPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%s: negative timeout", path)
	}
	return &cfg, nil
}

func SaveConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0600)
}
