// Package config loads the typed application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TITON_LOG_LEVEL.
const EnvPrefix = "TITON_"

// Config is the central typed configuration struct.
type Config struct {
	App       AppConfig       `yaml:"app" json:"app"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Container ContainerConfig `yaml:"container" json:"container"`
}

type AppConfig struct {
	Name  string `yaml:"name" json:"name"`
	Env   string `yaml:"env" json:"env"` // local | production | testing
	Debug bool   `yaml:"debug" json:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // logrus level name
	Format string `yaml:"format" json:"format"` // text | json
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

type ContainerConfig struct {
	MaxDepth int `yaml:"max_depth" json:"max_depth"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name: "titon",
			Env:  "local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "titon",
		},
		Container: ContainerConfig{
			MaxDepth: 100,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the given .env files (missing ones are ignored) and
// finally TITON_* environment variables.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later during bootstrap.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported format %q (want text or json)", c.Log.Format)
	}

	if c.Container.MaxDepth <= 0 {
		return fmt.Errorf("container.max_depth: must be positive, got %d", c.Container.MaxDepth)
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return errors.New("metrics.namespace: required when metrics are enabled")
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.App.Name = env("APP_NAME", c.App.Name)
	c.App.Env = env("APP_ENV", c.App.Env)
	c.Log.Level = env("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env("LOG_FORMAT", c.Log.Format)
	c.Metrics.Namespace = env("METRICS_NAMESPACE", c.Metrics.Namespace)

	var err error
	if c.App.Debug, err = envBool("APP_DEBUG", c.App.Debug); err != nil {
		return err
	}
	if c.Metrics.Enabled, err = envBool("METRICS_ENABLED", c.Metrics.Enabled); err != nil {
		return err
	}
	if c.Container.MaxDepth, err = envInt("CONTAINER_MAX_DEPTH", c.Container.MaxDepth); err != nil {
		return err
	}

	return nil
}

func env(key, fallback string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return i, nil
}
