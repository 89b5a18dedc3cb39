package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/odb/pkg/odb"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	ObjectsDir     string `json:"objects_dir"`
	Refresh        string `json:"refresh,omitempty"`
	MultiPackIndex *bool  `json:"multi_pack_index,omitempty"`
	SlotCount      int    `json:"slot_count,omitempty"`
	LogLevel       string `json:"log_level,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd  string          `json:"-"`
	ObjectsDirAbs string          `json:"-"`
	RefreshMode   odb.RefreshMode `json:"-"`
	Level         slog.Level      `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ObjectsDir: filepath.Join(".git", "objects"),
		Refresh:    odb.RefreshAfterAllIndicesLoaded.String(),
		LogLevel:   "warn",
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".odbx.json"

// UseMultiPackIndex reports the effective multi_pack_index setting.
func (c Config) UseMultiPackIndex() bool {
	return c.MultiPackIndex == nil || *c.MultiPackIndex
}

// StoreOptions returns the options for opening the configured store.
func (c Config) StoreOptions(logger *slog.Logger) odb.Options {
	return odb.Options{
		ObjectsDir:           c.ObjectsDirAbs,
		Logger:               logger,
		Slots:                c.SlotCount,
		IgnoreMultiPackIndex: !c.UseMultiPackIndex(),
	}
}

// getGlobalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/odbx/config.json if set, otherwise ~/.config/odbx/config.json.
// Returns empty string if home directory cannot be determined.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "odbx", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "odbx", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride    string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath         string            // -c/--config flag value
	ObjectsDirOverride *string           // -o/--objects-dir flag value; nil means no override
	LogLevelOverride   string            // --log-level flag value
	Env                map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config (~/.config/odbx/config.json or $XDG_CONFIG_HOME/odbx/config.json)
// 3. Project config file at default location (.odbx.json, if exists)
// 4. Explicit config file via configPath (if non-empty)
// 5. CLI overrides.
//
// The objects directory in the returned Config is resolved to an absolute path.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadLayer(getGlobalConfigPath(input.Env), false)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if input.ObjectsDirOverride != nil {
		if *input.ObjectsDirOverride == "" {
			return Config{}, ErrObjectsDirEmpty
		}

		cfg.ObjectsDir = *input.ObjectsDirOverride
	}

	if input.LogLevelOverride != "" {
		cfg.LogLevel = input.LogLevelOverride
	}

	err = resolveConfig(&cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.ObjectsDir) {
		cfg.ObjectsDirAbs = filepath.Clean(cfg.ObjectsDir)
	} else {
		cfg.ObjectsDirAbs = filepath.Join(workDir, cfg.ObjectsDir)
	}

	return cfg, nil
}

// loadProjectConfig loads the project config file (.odbx.json) or an explicit config file.
// Returns the config, the path if loaded, and any error.
func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		return loadLayer(filepath.Join(workDir, ConfigFileName), false)
	}

	cfgFile := configPath
	if !filepath.IsAbs(cfgFile) {
		cfgFile = filepath.Join(workDir, cfgFile)
	}

	// Check existence first to provide a clear "not found" error
	_, statErr := os.Stat(cfgFile)
	if statErr != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
	}

	return loadLayer(cfgFile, true)
}

// loadLayer loads one config file and rejects an explicitly empty
// objects_dir. Returns the config and the path if loaded.
func loadLayer(path string, mustExist bool) (Config, string, error) {
	if path == "" {
		return Config{}, "", nil
	}

	fileCfg, explicitEmpty, loaded, err := loadConfigFile(path, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["objects_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrObjectsDirEmpty)
	}

	return fileCfg, path, nil
}

// loadConfigFile loads a config file. If mustExist is false, missing files return zero config.
// Returns the config, a map of explicitly empty fields, whether file was loaded, and any error.
func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	// Check which fields were explicitly set to empty
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["objects_dir"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["objects_dir"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.ObjectsDir != "" {
		base.ObjectsDir = overlay.ObjectsDir
	}

	if overlay.Refresh != "" {
		base.Refresh = overlay.Refresh
	}

	if overlay.MultiPackIndex != nil {
		base.MultiPackIndex = overlay.MultiPackIndex
	}

	if overlay.SlotCount != 0 {
		base.SlotCount = overlay.SlotCount
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

// resolveConfig validates cfg and fills its parsed fields.
func resolveConfig(cfg *Config) error {
	if cfg.ObjectsDir == "" {
		return ErrObjectsDirEmpty
	}

	mode, err := odb.ParseRefreshMode(cfg.Refresh)
	if err != nil {
		return fmt.Errorf("%w: refresh: %w", ErrConfigInvalid, err)
	}

	cfg.RefreshMode = mode

	if cfg.SlotCount < 0 {
		return fmt.Errorf("%w: slot_count must be >= 0, got %d", ErrConfigInvalid, cfg.SlotCount)
	}

	err = cfg.Level.UnmarshalText([]byte(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrConfigInvalid, err)
	}

	return nil
}

// FormatConfig renders cfg as key=value lines.
func FormatConfig(cfg Config) string {
	return fmt.Sprintf("objects_dir=%s\nrefresh=%s\nmulti_pack_index=%t\nslot_count=%d\nlog_level=%s",
		cfg.ObjectsDirAbs, cfg.RefreshMode, cfg.UseMultiPackIndex(), cfg.SlotCount, cfg.Level)
}
