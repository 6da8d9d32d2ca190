package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/cli/config"
	"github.com/weftlabs/weft/internal/engine"

	// Register the kv backends selectable via --registry-backend.
	_ "github.com/weftlabs/weft/internal/kv/memkv"
	_ "github.com/weftlabs/weft/internal/kv/pgkv"
	_ "github.com/weftlabs/weft/internal/kv/sqlitekv"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Engine *engine.Engine
}

// NewCommandContext creates a CommandContext with an engine. Returns the
// context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = eng.Close()
	}

	return &CommandContext{
		Cfg:    cfg,
		Logger: logger,
		Engine: eng,
	}, cleanup, nil
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to
// environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	// Fallback: read from environment with defaults
	scriptsDir := getEnvOrDefault("WEFT_SCRIPTS_DIR", config.DefaultScriptsDir)
	statePath := getEnvOrDefault("WEFT_STATE_PATH", config.DefaultStateFile)
	environment := getEnvOrDefault("WEFT_ENVIRONMENT", config.DefaultEnv)
	backend := getEnvOrDefault("WEFT_REGISTRY_BACKEND", config.DefaultBackend)
	verbose := os.Getenv("WEFT_VERBOSE") == "true"
	outputFormat := getEnvOrDefault("WEFT_OUTPUT", config.DefaultOutput)

	return &config.Config{
		ScriptsDir:   scriptsDir,
		StatePath:    statePath,
		Environment:  environment,
		Verbose:      verbose,
		OutputFormat: outputFormat,
		Registry:     config.RegistryConfig{Backend: backend},
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	// Ensure state directory exists
	if cfg.StatePath != "" && cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0750); err != nil {
				return nil, err
			}
		}
	}

	engineCfg := engine.Config{
		ScriptsDir:  cfg.ScriptsDir,
		StatePath:   cfg.StatePath,
		Environment: cfg.Environment,
		OutDir:      cfg.OutDir,
		Registry:    cfg.Registry,
		MaxDepth:    cfg.MaxDepth,
		Logger:      logger,
	}

	return engine.New(engineCfg)
}
