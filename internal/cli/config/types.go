// Package config provides configuration management for the weft CLI.
//
// Configuration is merged from four layers with rising precedence:
// built-in defaults, a weft.yaml project file, WEFT_-prefixed environment
// variables, and command-line flags.
package config

import (
	"github.com/weftlabs/weft/internal/kv"
)

// RegistryConfig is an alias for the shared registry backend selection.
// This allows CLI code to use config.RegistryConfig without importing
// internal/kv.
type RegistryConfig = kv.Config

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

// DefaultServeConfig returns a ServeConfig with default values.
func DefaultServeConfig() *ServeConfig {
	return &ServeConfig{
		Port:  8707,
		Watch: true,
	}
}

// GetServeConfig returns the serve config with defaults applied for any
// unset values.
func (c *Config) GetServeConfig() *ServeConfig {
	if c.Serve == nil {
		return DefaultServeConfig()
	}
	serve := c.Serve
	if serve.Port == 0 {
		serve.Port = 8707
	}
	return serve
}

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot  string               `koanf:"-"`
	ScriptsDir   string               `koanf:"scripts_dir"`
	StatePath    string               `koanf:"state_path"`
	OutDir       string               `koanf:"out_dir"`
	Environment  string               `koanf:"environment"`
	LogLevel     string               `koanf:"log_level"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	MaxDepth     int                  `koanf:"max_depth"`
	Registry     RegistryConfig       `koanf:"registry"`
	Serve        *ServeConfig         `koanf:"serve"`
	Environments map[string]EnvConfig `koanf:"environments"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	ScriptsDir string          `koanf:"scripts_dir"`
	StatePath  string          `koanf:"state_path"`
	OutDir     string          `koanf:"out_dir"`
	Registry   *RegistryConfig `koanf:"registry"`
}

// Default configuration values.
const (
	DefaultScriptsDir = "scripts"
	DefaultStateFile  = ".weft/state.db"
	DefaultEnv        = "dev"
	DefaultOutput     = "table"
	DefaultLogLevel   = "warn"
	DefaultBackend    = "memory"
)

// MergeRegistryConfig merges two registry configs, with override taking
// precedence field by field.
func MergeRegistryConfig(base RegistryConfig, override *RegistryConfig) RegistryConfig {
	if override == nil {
		return base
	}
	merged := base
	if override.Backend != "" {
		merged.Backend = override.Backend
	}
	if override.Path != "" {
		merged.Path = override.Path
	}
	if override.DSN != "" {
		merged.DSN = override.DSN
	}
	if override.Key != "" {
		merged.Key = override.Key
	}
	return merged
}
