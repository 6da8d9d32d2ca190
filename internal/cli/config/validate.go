package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/weftlabs/weft/internal/kv"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ScriptsDir == "" {
		return fmt.Errorf("scripts_dir is required")
	}
	if c.Registry.Backend != "" && !kv.IsRegistered(c.Registry.Backend) {
		return fmt.Errorf("unknown registry backend %q (available: %s)\nHint: set registry.backend in weft.yaml to one of the available backends",
			c.Registry.Backend, strings.Join(kv.ListBackends(), ", "))
	}

	// Only validate directory existence if we're running a command that
	// needs it. This allows help commands to work without a valid directory
	return nil
}

// ValidateDirectories checks if required directories exist.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.ScriptsDir); os.IsNotExist(err) {
		return fmt.Errorf("scripts directory does not exist: %s\nHint: Create the directory or use --scripts-dir to specify a different path", c.ScriptsDir)
	}
	return nil
}
