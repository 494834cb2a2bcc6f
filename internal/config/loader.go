package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v              *viper.Viper
	configFile     string
	envPrefix      string
	projectDir     string     // Resolved project root directory (set by Load)
	projectDirHint string     // Optional: override project root directory for path resolution
	resolvePaths   bool       // Whether to resolve relative paths to absolute on Load
	mu             sync.Mutex // Protects concurrent access to viper operations
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:            viper.New(),
		envPrefix:    "RALPH",
		resolvePaths: true,
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:            v,
		envPrefix:    "RALPH",
		resolvePaths: true,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithProjectDir provides a project root directory hint for resolving relative paths.
func (l *Loader) WithProjectDir(path string) *Loader {
	l.projectDirHint = path
	return l
}

// WithResolvePaths controls whether relative paths are resolved to absolute paths on Load().
func (l *Loader) WithResolvePaths(resolve bool) *Loader {
	l.resolvePaths = resolve
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
//  1. CLI flags (set via viper.BindPFlag)
//  2. Environment variables (RALPH_*)
//  3. Project config (.ralph-tui/config.{toml,yaml,yml})
//  4. Legacy project config (.ralph.yaml, for backwards compatibility)
//  5. User config (~/.config/ralph/config.yaml)
//  6. Defaults
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else if found := findProjectConfigFile("."); found != "" {
		l.v.SetConfigFile(found)
	} else {
		l.v.SetConfigName(".ralph")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "ralph"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// no project/legacy config anywhere on the search path: defaults only
		case errors.Is(err, os.ErrNotExist):
			// an explicit --config path that doesn't exist: defaults only
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if configPath := l.v.ConfigFileUsed(); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			normalized, err := loadNormalizedConfigMap(configPath)
			if err != nil {
				return nil, fmt.Errorf("normalizing config: %w", err)
			}
			if len(normalized) > 0 {
				if err := l.v.MergeConfigMap(normalized); err != nil {
					return nil, fmt.Errorf("merging normalized config: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	projectDir := ""
	if configPath := l.v.ConfigFileUsed(); configPath != "" {
		if absConfigPath, err := filepath.Abs(configPath); err == nil {
			configDir := filepath.Dir(absConfigPath)
			if filepath.Base(configDir) == ".ralph-tui" {
				projectDir = filepath.Dir(configDir)
			} else {
				projectDir = configDir
			}
		}
	}
	if projectDir == "" {
		projectDir, _ = os.Getwd()
	}
	if strings.TrimSpace(l.projectDirHint) != "" {
		projectDir = l.projectDirHint
	}
	l.projectDir = projectDir
	if l.resolvePaths {
		l.resolveAbsolutePaths(&cfg, projectDir)
	}

	return &cfg, nil
}

// findProjectConfigFile looks for .ralph-tui/config.{toml,yaml,yml} under
// dir, returning the first match (toml > yaml > yml, matching viper's own
// type-detection preference order).
func findProjectConfigFile(dir string) string {
	for _, ext := range []string{"toml", "yaml", "yml"} {
		candidate := filepath.Join(dir, ".ralph-tui", "config."+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// ProjectDir returns the resolved project root directory.
// Available after Load() has been called.
func (l *Loader) ProjectDir() string {
	return l.projectDir
}

// resolveAbsolutePaths converts relative paths in the config to absolute
// paths, relative to baseDir (typically the config file's directory), so
// behavior doesn't change with the caller's working directory.
func (l *Loader) resolveAbsolutePaths(cfg *Config, baseDir string) {
	if cfg.TrackerOptions.Path != "" {
		cfg.TrackerOptions.Path = resolvePathRelativeTo(cfg.TrackerOptions.Path, baseDir)
	}
	for i, p := range cfg.Sandbox.AllowPaths {
		cfg.Sandbox.AllowPaths[i] = resolvePathRelativeTo(p, baseDir)
	}
	for i, p := range cfg.Sandbox.ReadOnlyPaths {
		cfg.Sandbox.ReadOnlyPaths[i] = resolvePathRelativeTo(p, baseDir)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = resolvePathRelativeTo(cfg.Log.File, baseDir)
	}
}

// resolvePathRelativeTo converts a relative path to an absolute path using
// baseDir as the base. If the path is already absolute, it is returned
// unchanged.
func resolvePathRelativeTo(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if len(path) > 0 && (path[0] == '/' || path[0] == '\\') {
		return path
	}
	return filepath.Join(baseDir, path)
}

func loadNormalizedConfigMap(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var raw map[string]interface{}
	if strings.HasSuffix(path, ".toml") {
		// viper already parsed TOML into its own tree; legacy-key
		// normalization below only applies to the YAML project/legacy
		// config locations this adapter historically supported.
		return nil, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	normalizeLegacyConfigMap(raw)
	return raw, nil
}

// setDefaults configures default values for every recognized key (§6).
func (l *Loader) setDefaults() {
	l.v.SetDefault("configVersion", 1)

	l.v.SetDefault("agent", "claude")
	l.v.SetDefault("command", "")
	l.v.SetDefault("maxIterations", 0)
	l.v.SetDefault("iterationDelay", "2s")
	l.v.SetDefault("autoCommit", true)

	l.v.SetDefault("tracker", "json")
	l.v.SetDefault("trackerOptions.path", "")
	l.v.SetDefault("trackerOptions.epicId", "")

	l.v.SetDefault("parallel", 1)
	l.v.SetDefault("worktree", "")

	l.v.SetDefault("errorHandling.strategy", "stop")
	l.v.SetDefault("errorHandling.maxRetries", 2)
	l.v.SetDefault("errorHandling.retryDelayMs", 5000)
	l.v.SetDefault("errorHandling.continueOnNonZeroExit", false)

	l.v.SetDefault("conflictResolution.enabled", true)
	l.v.SetDefault("conflictResolution.confidenceThreshold", 0.75)
	l.v.SetDefault("conflictResolution.timeoutMs", 120000)
	l.v.SetDefault("conflictResolution.maxFiles", 20)

	l.v.SetDefault("agentOptions.model", "")
	l.v.SetDefault("agentOptions.timeout", "15m")
	l.v.SetDefault("agentOptions.envExclude", []string{})
	l.v.SetDefault("agentOptions.envPassthrough", []string{})
	l.v.SetDefault("agentOptions.defaultFlags", []string{})

	l.v.SetDefault("sandbox.enabled", false)
	l.v.SetDefault("sandbox.mode", "workspace-write")
	l.v.SetDefault("sandbox.allowPaths", []string{})
	l.v.SetDefault("sandbox.readOnlyPaths", []string{})
	l.v.SetDefault("sandbox.network", false)

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.file", "")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	if l.configFile != "" {
		return l.configFile
	}
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// AllSettings returns all settings as a map.
func (l *Loader) AllSettings() map[string]interface{} {
	return l.v.AllSettings()
}
