// Package config loads cmd/chatlabd's own bootstrap configuration —
// distinct from the shell-owned per-session JSON settings files, which the
// core never parses itself — using gopkg.in/yaml.v3.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is chatlabd's bootstrap configuration.
type Config struct {
	StoreDir        string        `yaml:"store_dir"`
	TempDir         string        `yaml:"temp_dir"`
	MergedDir       string        `yaml:"merged_dir"`
	SessionCacheDir string        `yaml:"session_cache_dir"`
	LogDir          string        `yaml:"log_dir"`
	LogLevel        string        `yaml:"log_level"`
	CommitEvery     int64         `yaml:"commit_every"`
	CheckpointEvery int64         `yaml:"checkpoint_every"`
	GapThreshold    int64         `yaml:"gap_threshold_seconds"`
	ShortTimeout    time.Duration `yaml:"short_request_timeout"`
	LongTimeout     time.Duration `yaml:"long_request_timeout"`
}

// Default mirrors the values internal/parser and internal/importer already
// default to when no config is loaded at all.
func Default() Config {
	return Config{
		StoreDir:        "databases",
		TempDir:         "temp",
		MergedDir:       "merged",
		SessionCacheDir: "sessioncache",
		LogDir:          "logs",
		LogLevel:        "info",
		CommitEvery:     50000,
		CheckpointEvery: 200000,
		GapThreshold:    1800,
		ShortTimeout:    30 * time.Second,
		LongTimeout:     10 * time.Minute,
	}
}

// Load reads and parses a YAML config file, falling back to Default for
// any zero-valued field left unset in the file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config file")
	}
	return cfg, nil
}
