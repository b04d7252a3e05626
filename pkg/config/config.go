// Package config loads the client's local, non-secret configuration
// file: disk quota, max upload size, the PoW hard ceiling, and the
// default TLS-verification opt-out. None of these belong in the
// relational store — they are operator-tunable defaults, not state the
// client accumulates while running.
//
// At startup the client applies DataDir, ServerAddr and TLSSkipVerify.
// QuotaBytes, MaxUploadBytes, PowHardCeiling and KnownServerSeed are
// loaded and saved but not applied: the upload ceiling and PoW ceiling in
// effect are the constants in pkg/contentstore and pkg/powminer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "config.yaml"

// Config is the on-disk shape of config.yaml. Every field has a
// built-in default; a missing file, or a missing field within an
// existing file, falls back to Default().
type Config struct {
	DataDir         string        `yaml:"data_dir"`
	ServerAddr      string        `yaml:"server_addr"`
	QuotaBytes      int64         `yaml:"quota_bytes"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	PowHardCeiling  time.Duration `yaml:"pow_hard_ceiling"`
	TLSSkipVerify   bool          `yaml:"tls_skip_verify"`
	KnownServerSeed []string      `yaml:"known_server_seed"`
}

// Default returns the built-in configuration applied when config.yaml
// is absent or a field is left unset within it.
func Default() Config {
	home, err := os.UserHomeDir()
	dataDir := ".hps-cli"
	if err == nil {
		dataDir = filepath.Join(home, ".hps-cli")
	}
	return Config{
		DataDir:        dataDir,
		ServerAddr:     "https://hps.example.net",
		QuotaBytes:     1 << 30, // 1 GiB
		MaxUploadBytes: 100 << 20,
		PowHardCeiling: 600 * time.Second,
		TLSSkipVerify:  false,
	}
}

// Load reads dir/config.yaml and merges it over Default(). A missing
// file is not an error.
func Load(dir string) (Config, error) {
	cfg := Default()
	cfg.DataDir = dir

	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	overlay := cfg
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return overlay, nil
}

// Save writes cfg to dir/config.yaml, creating dir if necessary.
func Save(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
