package server

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything needed to start a Server. Flags on the command
// line override whatever a -config YAML file set, field by field.
type Config struct {
	DBPath                string `yaml:"db_path"`
	Port                  int    `yaml:"port"`
	CheckpointDir         string `yaml:"checkpoint_dir"`
	CheckpointIntervalSec int    `yaml:"checkpoint_interval_seconds"`
	DefaultTickQuota      int64  `yaml:"default_tick_quota"`
	MaxTasksPerPlayer     int    `yaml:"max_tasks_per_player"`
	LogLevel              string `yaml:"log_level"`
}

// DefaultConfig returns the baseline configuration used when no -config
// file is given and no flag overrides a field.
func DefaultConfig() Config {
	return Config{
		DBPath:                "Test.db",
		Port:                  7777,
		CheckpointIntervalSec: 300,
		DefaultTickQuota:      300000,
		MaxTasksPerPlayer:     0, // unlimited
		LogLevel:              "info",
	}
}

// LoadConfigFile reads a YAML config file into a copy of base, leaving any
// field the file doesn't set at its base value.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, err
	}
	return cfg, nil
}

// CheckpointInterval returns the checkpoint period as a time.Duration.
func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalSec) * time.Second
}

// CheckpointPath returns the path the checkpoint manager should treat as its
// "main database file": the configured checkpoint directory joined with the
// database file's base name when CheckpointDir is set, otherwise DBPath
// itself (checkpoints land next to the loaded database).
func (c Config) CheckpointPath() string {
	if c.CheckpointDir == "" {
		return c.DBPath
	}
	return filepath.Join(c.CheckpointDir, filepath.Base(c.DBPath))
}
