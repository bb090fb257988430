// Package config loads per-repository settings from .DFM/config.yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file is missing or leaves a field
// unset.
const (
	DefaultAuthor           = "unknown"
	DefaultLockTTLSeconds   = 24 * 60 * 60
	DefaultHookTimeoutSecs  = 30
	DefaultAutoCompressKeep = 0 // disabled
)

// RepoConfig holds the tunable settings of one repository.
type RepoConfig struct {
	// Author is the default commit author when none is supplied.
	Author string `yaml:"author"`
	// LockTTLSeconds bounds how long a file lock lives without renewal.
	// Zero means locks never expire.
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`
	// HookTimeoutSeconds bounds each hook script's run time.
	HookTimeoutSeconds int `yaml:"hook_timeout_seconds"`
	// AutoCompressKeep is how many mesh_only commits to retain per
	// branch; older ones are deleted after each commit. Zero disables
	// compression.
	AutoCompressKeep int `yaml:"auto_compress_keep"`
}

// Default returns a config with every field at its default.
func Default() *RepoConfig {
	return &RepoConfig{
		Author:             DefaultAuthor,
		LockTTLSeconds:     DefaultLockTTLSeconds,
		HookTimeoutSeconds: DefaultHookTimeoutSecs,
		AutoCompressKeep:   DefaultAutoCompressKeep,
	}
}

// Load reads a config file. A missing file yields the defaults.
func Load(path string) (*RepoConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Author == "" {
		cfg.Author = DefaultAuthor
	}
	if cfg.HookTimeoutSeconds <= 0 {
		cfg.HookTimeoutSeconds = DefaultHookTimeoutSecs
	}
	if cfg.LockTTLSeconds < 0 {
		cfg.LockTTLSeconds = 0
	}
	if cfg.AutoCompressKeep < 0 {
		cfg.AutoCompressKeep = 0
	}
	return cfg, nil
}

// Save writes the config file.
func (c *RepoConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// LockTTL returns the lock time-to-live as a duration.
func (c *RepoConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// HookTimeout returns the hook deadline as a duration.
func (c *RepoConfig) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutSeconds) * time.Second
}
