package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RateLimit configures per-IP limits. Downloads get their own tier.
type RateLimit struct {
	Enabled           bool    `yaml:"enabled"`
	PerSecond         float64 `yaml:"per_second"`
	Burst             int     `yaml:"burst"`
	DownloadPerSecond float64 `yaml:"download_per_second"`
	DownloadBurst     int     `yaml:"download_burst"`
}

type Config struct {
	Port           int           `yaml:"port"`
	UploadDir      string        `yaml:"upload_dir"`
	DescriptorPath string        `yaml:"descriptor_path"`
	ContextPath    string        `yaml:"context_path,omitempty"`
	AuditDB        string        `yaml:"audit_db,omitempty"`
	AuditRetention time.Duration `yaml:"audit_retention"`
	LogLevel       string        `yaml:"log_level"`
	LogDevelopment bool          `yaml:"log_development"`

	// TrustProxy takes client addresses from X-Forwarded-For. Enable it
	// only when a reverse proxy in front of the server sets that header.
	TrustProxy bool      `yaml:"trust_proxy"`
	RateLimit  RateLimit `yaml:"rate_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           8080,
		UploadDir:      "uploads",
		DescriptorPath: "jt808.json",
		AuditRetention: 30 * 24 * time.Hour,
		LogLevel:       "info",
		RateLimit: RateLimit{
			Enabled:           true,
			PerSecond:         1,
			Burst:             10,
			DownloadPerSecond: 0.2,
			DownloadBurst:     5,
		},
	}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return errors.New("upload_dir must not be empty")
	}
	if strings.TrimSpace(c.DescriptorPath) == "" {
		return errors.New("descriptor_path must not be empty")
	}
	if c.ContextPath != "" && (!strings.HasPrefix(c.ContextPath, "/") || strings.HasSuffix(c.ContextPath, "/")) {
		return fmt.Errorf("context_path %q must start with / and not end with /", c.ContextPath)
	}
	if c.AuditDB != "" && c.AuditRetention <= 0 {
		return errors.New("audit_retention must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 ||
			c.RateLimit.DownloadPerSecond <= 0 || c.RateLimit.DownloadBurst <= 0 {
			return errors.New("rate_limit values must be positive")
		}
	}
	return nil
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ReadDotEnv returns the variables in a .env file. A missing file yields
// an empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return vars, nil
}

// ApplyEnv overlays RELEASE_* variables onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("RELEASE_UPLOAD_DIR", &cfg.UploadDir)
	str("RELEASE_DESCRIPTOR", &cfg.DescriptorPath)
	str("RELEASE_CONTEXT_PATH", &cfg.ContextPath)
	str("RELEASE_AUDIT_DB", &cfg.AuditDB)
	str("RELEASE_LOG_LEVEL", &cfg.LogLevel)

	if v, ok := lookup("RELEASE_PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELEASE_PORT: %w", err)
		}
		cfg.Port = p
	}
	if v, ok := lookup("RELEASE_AUDIT_RETENTION"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RELEASE_AUDIT_RETENTION: %w", err)
		}
		cfg.AuditRetention = d
	}
	if v, ok := lookup("RELEASE_LOG_DEV"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RELEASE_LOG_DEV: %w", err)
		}
		cfg.LogDevelopment = b
	}
	if v, ok := lookup("RELEASE_RATE_LIMIT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RELEASE_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit.Enabled = b
	}
	if v, ok := lookup("RELEASE_TRUST_PROXY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RELEASE_TRUST_PROXY: %w", err)
		}
		cfg.TrustProxy = b
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file, the .env
// file, the environment and finally explicitly set flags. The default
// config.yaml may be absent; a file named with -config must exist.
func Load(args []string, lookup func(string) (string, bool), stderr io.Writer) (Config, error) {
	fs := flag.NewFlagSet("release-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "YAML config file")
	envFile := fs.String("env-file", ".env", "dotenv file")
	port := fs.Int("port", 8080, "server port")
	uploads := fs.String("uploads", "uploads", "upload directory")
	descriptor := fs.String("descriptor", "jt808.json", "version descriptor file")
	contextPath := fs.String("context-path", "", "path prefix for all routes, e.g. /pyqt6")
	auditDB := fs.String("audit-db", "", "SQLite download audit database (empty disables auditing)")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	trustProxy := fs.Bool("trust-proxy", false, "take client addresses from X-Forwarded-For")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := Default()
	if err := LoadFile(*configPath, &cfg); err != nil {
		if set["config"] || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
	}

	dotenv, err := ReadDotEnv(*envFile)
	if err != nil {
		return Config{}, err
	}
	merged := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := ApplyEnv(&cfg, merged); err != nil {
		return Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "uploads":
			cfg.UploadDir = *uploads
		case "descriptor":
			cfg.DescriptorPath = *descriptor
		case "context-path":
			cfg.ContextPath = *contextPath
		case "audit-db":
			cfg.AuditDB = *auditDB
		case "log-level":
			cfg.LogLevel = *logLevel
		case "trust-proxy":
			cfg.TrustProxy = *trustProxy
		}
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
