// Package config loads the YAML configuration shared by the trainer and the
// prediction server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTP  HTTPConfig  `yaml:"http"`
	Log   LogConfig   `yaml:"log"`
	ML    MLConfig    `yaml:"ml"`
	Cache CacheConfig `yaml:"cache"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File enables a rotating JSON log next to console output.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MLConfig struct {
	ModelType       string `yaml:"model_type"`
	ModelPath       string `yaml:"model_path"`
	DatasetPath     string `yaml:"dataset_path"`
	NEstimators     int    `yaml:"n_estimators"`
	MaxDepth        int    `yaml:"max_depth"`
	MinSamplesSplit int    `yaml:"min_samples_split"`
	MaxFeatures     int    `yaml:"max_features"`
	Bootstrap       bool   `yaml:"bootstrap"`
	Seed            int64  `yaml:"seed"`
	WatchArtifact   bool   `yaml:"watch_artifact"`
}

type CacheConfig struct {
	Size int `yaml:"size"`
}

// Default mirrors the behaviour of running either binary with no config
// file at all.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           5000,
			Timeout:        30 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		ML: MLConfig{
			ModelType:       "random_forest",
			ModelPath:       "model/performance_model.json",
			NEstimators:     100,
			MinSamplesSplit: 2,
			Bootstrap:       true,
			Seed:            42,
			WatchArtifact:   true,
		},
		Cache: CacheConfig{
			Size: 1024,
		},
	}
}

// Load decodes path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.Timeout < 0 {
		return errors.New("http.timeout must not be negative")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	switch c.ML.ModelType {
	case "random_forest", "regression_tree":
	default:
		return fmt.Errorf("unsupported ml.model_type %q", c.ML.ModelType)
	}
	if c.ML.ModelPath == "" {
		return errors.New("ml.model_path is required")
	}
	if c.ML.NEstimators <= 0 {
		return errors.New("ml.n_estimators must be positive")
	}
	if c.ML.MaxDepth < 0 || c.ML.MaxFeatures < 0 {
		return errors.New("ml.max_depth and ml.max_features must not be negative")
	}
	if c.ML.MinSamplesSplit < 2 {
		return errors.New("ml.min_samples_split must be at least 2")
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	return nil
}
