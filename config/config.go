// Package config holds project-level configuration: where pages live, the
// dev/prod error-surface mode, and server bind options. Modeled on the
// teacher CLI's config.Config (yaml-backed, functional-options
// constructor), adapted from a user-home config file to a per-project one
// since pywire projects are served in place rather than scaffolded out to
// a generated app tree.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the project config file, searched for in
// the project root.
const ConfigFileName = "pywire.yaml"

// Config is a pywire project's configuration.
type Config struct {
	// PagesDir is the root directory pages are discovered under.
	PagesDir string `yaml:"pages_dir,omitempty"`

	// Addr is the server's bind address.
	Addr string `yaml:"addr,omitempty"`

	// Dev toggles development mode: detailed compile-error pages, hot
	// reload via the file watcher, and unminified output.
	Dev bool `yaml:"dev,omitempty"`

	// SessionTTL is how long an idle live session is kept before its
	// page instance is discarded (spec §4.11's 300s default).
	SessionTTL time.Duration `yaml:"session_ttl,omitempty"`

	// Minify enables HTML minification of rendered output in production.
	Minify bool `yaml:"minify"`

	// UploadMaxBytes bounds a single multipart upload (spec §6 upload
	// endpoint).
	UploadMaxBytes int64 `yaml:"upload_max_bytes,omitempty"`
}

// Option configures a Config during construction.
type Option func(*Config) error

// DefaultConfig returns a Config with the project's conventional defaults.
func DefaultConfig() *Config {
	return &Config{
		PagesDir:       "pages",
		Addr:           ":8080",
		Dev:            false,
		SessionTTL:     300 * time.Second,
		Minify:         true,
		UploadMaxBytes: 32 << 20, // 32MiB
	}
}

// New builds a Config from defaults plus opts, in order.
func New(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithPagesDir overrides the pages root.
func WithPagesDir(dir string) Option {
	return func(c *Config) error {
		c.PagesDir = dir
		return nil
	}
}

// WithAddr overrides the bind address.
func WithAddr(addr string) Option {
	return func(c *Config) error {
		c.Addr = addr
		return nil
	}
}

// WithDev toggles development mode.
func WithDev(dev bool) Option {
	return func(c *Config) error {
		c.Dev = dev
		return nil
	}
}

// Load reads and parses a project config file. A missing file is not an
// error: callers get DefaultConfig() back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// FindAndLoad searches projectDir for ConfigFileName and loads it, falling
// back to defaults when absent.
func FindAndLoad(projectDir string) (*Config, error) {
	return Load(filepath.Join(projectDir, ConfigFileName))
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
