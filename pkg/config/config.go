/*
Package config manages the TOML config for slynkserve: where the Slynk
server listens, which Lisp runtime to start, and IPC server limits.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bastiangx/slynkserve/internal/utils"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Slynk   SlynkConfig   `toml:"slynk"`
	Runtime RuntimeConfig `toml:"runtime"`
	Server  ServerConfig  `toml:"server"`
}

// SlynkConfig has connection options.
type SlynkConfig struct {
	Address         string `toml:"address"`
	ConnectRetries  int    `toml:"connect_retries"`
	RetryIntervalMs int    `toml:"retry_interval_ms"`
}

// RuntimeConfig describes the Lisp runtime to spawn. An empty Path means
// attach to a server that is already running.
type RuntimeConfig struct {
	Path       string   `toml:"path"`
	Core       string   `toml:"core"`
	Args       []string `toml:"args"`
	StopSignal string   `toml:"stop_signal"`
}

// ServerConfig has IPC server options.
type ServerConfig struct {
	CompletionLimit int `toml:"completion_limit"`
	SymbolCacheSize int `toml:"symbol_cache_size"`
}

// RetryInterval returns the pause between connection attempts.
func (s SlynkConfig) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalMs) * time.Millisecond
}

// Attach reports whether no runtime should be spawned.
func (r RuntimeConfig) Attach() bool {
	return r.Path == ""
}

// CommandArgs returns the runtime's argument list, core image first.
func (r RuntimeConfig) CommandArgs() []string {
	args := make([]string, 0, len(r.Args)+2)
	if r.Core != "" {
		args = append(args, "--core", r.Core)
	}
	return append(args, r.Args...)
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
// 4. builtin defaults
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.ExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", "slynkserve")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "slynkserve")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.ExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/slynkserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Slynk: SlynkConfig{
			Address:         "127.0.0.1:4005",
			ConnectRetries:  5,
			RetryIntervalMs: 500,
		},
		Runtime: RuntimeConfig{
			Path:       "",
			Core:       "",
			Args:       []string{},
			StopSignal: "REPL~QUIT",
		},
		Server: ServerConfig{
			CompletionLimit: 24,
			SymbolCacheSize: 32,
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	config.sanitize()
	return config, nil
}

// tryPartialParse keeps every well-typed value from a file that failed
// to decode into Config as a whole.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "slynk"); ok {
		extractSlynkConfig(section, &config.Slynk)
	}
	if section, ok := utils.ExtractSection(tempConfig, "runtime"); ok {
		extractRuntimeConfig(section, &config.Runtime)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	config.sanitize()
	return config, nil
}

func extractSlynkConfig(data map[string]any, slynk *SlynkConfig) {
	if val, ok := utils.ExtractString(data, "address"); ok {
		slynk.Address = val
	}
	if val, ok := utils.ExtractInt64(data, "connect_retries"); ok {
		slynk.ConnectRetries = val
	}
	if val, ok := utils.ExtractInt64(data, "retry_interval_ms"); ok {
		slynk.RetryIntervalMs = val
	}
}

func extractRuntimeConfig(data map[string]any, runtime *RuntimeConfig) {
	if val, ok := utils.ExtractString(data, "path"); ok {
		runtime.Path = val
	}
	if val, ok := utils.ExtractString(data, "core"); ok {
		runtime.Core = val
	}
	if val, ok := utils.ExtractStringSlice(data, "args"); ok {
		runtime.Args = val
	}
	if val, ok := utils.ExtractString(data, "stop_signal"); ok {
		runtime.StopSignal = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "completion_limit"); ok {
		server.CompletionLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "symbol_cache_size"); ok {
		server.SymbolCacheSize = val
	}
}

// sanitize restores defaults for values that would stall or break the client.
func (c *Config) sanitize() {
	defaults := DefaultConfig()
	if c.Slynk.Address == "" {
		c.Slynk.Address = defaults.Slynk.Address
	}
	if c.Slynk.ConnectRetries < 1 {
		log.Warnf("connect_retries %d is below 1, using %d", c.Slynk.ConnectRetries, defaults.Slynk.ConnectRetries)
		c.Slynk.ConnectRetries = defaults.Slynk.ConnectRetries
	}
	if c.Slynk.RetryIntervalMs < 0 {
		c.Slynk.RetryIntervalMs = defaults.Slynk.RetryIntervalMs
	}
	if c.Server.CompletionLimit < 1 {
		c.Server.CompletionLimit = defaults.Server.CompletionLimit
	}
	if c.Server.SymbolCacheSize < 1 {
		c.Server.SymbolCacheSize = defaults.Server.SymbolCacheSize
	}
	if c.Runtime.Args == nil {
		c.Runtime.Args = []string{}
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return err
	}
	return utils.SaveTOMLFile(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of the loaded config file,
// or "" when the built-in defaults are in use.
func GetActiveConfigPath(configPath string) string {
	return utils.AbsPath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Apply overrides the runtime values that are non-nil.
func (c *Config) Apply(runtimePath, corePath, address *string) {
	if runtimePath != nil {
		c.Runtime.Path = *runtimePath
	}
	if corePath != nil {
		c.Runtime.Core = *corePath
	}
	if address != nil {
		c.Slynk.Address = *address
	}
}

// Update changes the runtime values and saves to file
func (c *Config) Update(configPath string, runtimePath, corePath, address *string) error {
	c.Apply(runtimePath, corePath, address)
	return SaveConfig(c, configPath)
}
