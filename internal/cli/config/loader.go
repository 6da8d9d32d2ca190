package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/weftlabs/weft/internal/kv"
)

// loggerKey is used to store the logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for
// config files.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// findConfigFile finds the config file to use.
// Priority: explicit path > weft.yaml > weft.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("weft.yaml"); err == nil {
		return "weft.yaml"
	}
	if _, err := os.Stat("weft.yml"); err == nil {
		return "weft.yml"
	}
	return ""
}

// configExistsIn checks if a weft config file exists in the directory.
func configExistsIn(dir string) bool {
	for _, name := range []string{"weft.yaml", "weft.yml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findProjectRootUpward searches upward from startDir for a weft config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configExistsIn(dir) {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root from CLI flags and filesystem.
// Priority:
//  1. Explicit --project-dir flag
//  2. Infer from --scripts-dir (parent if it contains a config or the
//     directory is named "scripts")
//  3. Search upward from CWD for weft.yaml
//  4. Current working directory
func inferProjectRoot(flags *pflag.FlagSet) string {
	// 1. Check explicit --project-dir
	if flags != nil {
		if projectDir, _ := flags.GetString("project-dir"); projectDir != "" && flags.Changed("project-dir") {
			abs, err := filepath.Abs(projectDir)
			if err == nil {
				return abs
			}
			return filepath.Clean(projectDir)
		}
	}

	// 2. Infer from --scripts-dir
	if flags != nil {
		if scriptsDir, _ := flags.GetString("scripts-dir"); scriptsDir != "" && flags.Changed("scripts-dir") {
			absScripts, err := filepath.Abs(scriptsDir)
			if err == nil {
				parent := filepath.Dir(absScripts)

				// If parent has a config file, it's the project root
				if configExistsIn(parent) {
					return parent
				}

				// If folder is named "scripts", assume parent is root
				if filepath.Base(absScripts) == "scripts" {
					return parent
				}
			}
		}
	}

	// 3. Search upward from CWD for weft.yaml
	if cwd, err := os.Getwd(); err == nil {
		if root := findProjectRootUpward(cwd); root != "" {
			return root
		}
	}

	// 4. Default to CWD
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not
// absolute. Empty paths and the :memory: sentinel pass through unchanged.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigWithEnv(cfgFile, "", flags)
}

// LoadConfigWithEnv loads configuration with an optional environment
// override. The envOverride parameter selects which environment's overrides
// to apply. The flags parameter allows CLI flags to override config file and
// env var values.
func LoadConfigWithEnv(cfgFile string, envOverride string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	// Infer project root from flags before loading config.
	// This enables the "anchor pattern" where --scripts-dir testdata/scripts
	// implies project root is testdata/
	projectRoot := inferProjectRoot(flags)

	// Track paths that were explicitly provided as flags (already relative to
	// CWD). These are converted to absolute paths before the normal
	// resolution step, to prevent double-resolution when project root was
	// inferred from them.
	var flagScriptsDir, flagStatePath, flagOutDir, flagRegistryPath string
	if flags != nil {
		if flags.Changed("scripts-dir") {
			if v, _ := flags.GetString("scripts-dir"); v != "" {
				flagScriptsDir, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("state") {
			if v, _ := flags.GetString("state"); v != "" {
				// State path can be :memory: or a file path
				if v != ":memory:" {
					flagStatePath, _ = filepath.Abs(v)
				} else {
					flagStatePath = v
				}
			}
		}
		if flags.Changed("out-dir") {
			if v, _ := flags.GetString("out-dir"); v != "" {
				flagOutDir, _ = filepath.Abs(v)
			}
		}
		if flags.Changed("registry-path") {
			if v, _ := flags.GetString("registry-path"); v != "" {
				flagRegistryPath, _ = filepath.Abs(v)
			}
		}
	}

	// If an explicit config file is provided, use its directory as project
	// root (unless a more specific hint was given via flags)
	if cfgFile != "" && projectRoot == inferProjectRoot(nil) {
		// No flag-based inference happened, use config file's directory
		if absPath, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(absPath)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"scripts_dir":      DefaultScriptsDir,
		"state_path":       DefaultStateFile,
		"environment":      DefaultEnv,
		"log_level":        DefaultLogLevel,
		"verbose":          false,
		"output":           DefaultOutput,
		"registry.backend": DefaultBackend,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	// Search in project root if no explicit config file provided
	if cfgFile == "" {
		// Look for config in inferred project root
		for _, name := range []string{"weft.yaml", "weft.yml"} {
			candidate := filepath.Join(projectRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				cfgFile = candidate
				break
			}
		}
	}
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (WEFT_ prefix)
	// Transform: WEFT_SCRIPTS_DIR -> scripts_dir
	if err := k.Load(env.Provider("WEFT_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "WEFT_"))
		// EXPLICIT MAPPING: WEFT_REGISTRY_BACKEND -> registry.backend
		if rest, ok := strings.CutPrefix(key, "registry_"); ok {
			return "registry." + rest
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			// EXPLICIT MAPPING: Bridge the gap between --state flag and
			// state_path config key. The CLI uses --state for brevity, but
			// the config struct uses state_path for clarity
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}

			// EXPLICIT MAPPING: --registry-* flags map to the registry group
			if rest, ok := strings.CutPrefix(key, "registry_"); ok {
				return "registry." + rest, posflag.FlagVal(flags, f)
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Apply environment-specific overrides before path resolution so that
	// relative override paths anchor at the project root too
	envName := cfg.Environment
	if envOverride != "" {
		envName = envOverride
		cfg.Environment = envOverride
	}
	if envCfg, ok := cfg.Environments[envName]; ok {
		if envCfg.ScriptsDir != "" {
			cfg.ScriptsDir = envCfg.ScriptsDir
		}
		if envCfg.StatePath != "" {
			cfg.StatePath = envCfg.StatePath
		}
		if envCfg.OutDir != "" {
			cfg.OutDir = envCfg.OutDir
		}
		cfg.Registry = MergeRegistryConfig(cfg.Registry, envCfg.Registry)
	}

	// 7. Set project root and resolve relative paths
	// Use project root as base for all path resolution (not config file
	// directory). This implements the "anchor pattern" for intuitive path
	// resolution.
	cfg.ProjectRoot = projectRoot

	// For paths explicitly provided via flags, use the pre-computed absolute
	// paths (already computed relative to CWD at flag parse time).
	// For paths from config file or defaults, resolve relative to project
	// root.
	if flagScriptsDir != "" {
		cfg.ScriptsDir = flagScriptsDir
	} else {
		cfg.ScriptsDir = resolvePathRelativeTo(cfg.ScriptsDir, projectRoot)
	}
	if flagStatePath != "" {
		cfg.StatePath = flagStatePath
	} else {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}
	if flagOutDir != "" {
		cfg.OutDir = flagOutDir
	} else {
		cfg.OutDir = resolvePathRelativeTo(cfg.OutDir, projectRoot)
	}
	if flagRegistryPath != "" {
		cfg.Registry.Path = flagRegistryPath
	} else {
		cfg.Registry.Path = resolvePathRelativeTo(cfg.Registry.Path, projectRoot)
	}

	// Expand environment variables in registry credentials
	expandRegistryEnvVars(&cfg.Registry)

	// Validate registry configuration
	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = DefaultBackend
	}
	if !kv.IsRegistered(cfg.Registry.Backend) {
		return nil, fmt.Errorf("invalid registry configuration: %w", &kv.UnknownBackendError{
			Name:      cfg.Registry.Backend,
			Available: kv.ListBackends(),
		})
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig or LoadConfigWithEnv is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// expandEnvVars expands ${VAR} patterns in a string with environment
// variable values.
func expandEnvVars(s string) string {
	// Match ${VAR} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR}
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandRegistryEnvVars expands environment variables in sensitive registry
// fields. The postgres DSN in particular routinely carries credentials via
// ${VAR} placeholders.
func expandRegistryEnvVars(r *RegistryConfig) {
	if r == nil {
		return
	}
	r.DSN = expandEnvVars(r.DSN)
	r.Key = expandEnvVars(r.Key)
}
