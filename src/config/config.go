package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"agents-ide/src/internal/common"
	"agents-ide/src/internal/constants"
	"agents-ide/src/server/lsp"
	"agents-ide/src/server/navigation"
	"agents-ide/src/server/process"
)

// Config contains the language server and client settings
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Logging  LoggingConfig `yaml:"logging"`
}

// ServerConfig describes the language server process
type ServerConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	WorkingDir string   `yaml:"working_dir,omitempty"`
	// LanguageID is used for files whose extension is not recognized
	LanguageID            string            `yaml:"language_id,omitempty"`
	InitializationOptions interface{}       `yaml:"initialization_options,omitempty"`
	Env                   map[string]string `yaml:"env,omitempty"`
	// MaxMessageBytes caps one server message, 0 for the built-in limit
	MaxMessageBytes int `yaml:"max_message_bytes,omitempty"`
}

// TimeoutConfig holds Go duration strings such as "30s" or "500ms"
type TimeoutConfig struct {
	Request         time.Duration `yaml:"request"`
	Initialize      time.Duration `yaml:"initialize"`
	Shutdown        time.Duration `yaml:"shutdown"`
	DiagnosticsWait time.Duration `yaml:"diagnostics_wait"`
}

// LoggingConfig controls the stderr loggers
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from a YAML file. Missing fields take
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// LoadConfigOrDefault loads path, falling back to the defaults when the
// file does not exist
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		common.CLILogger.Debug("No config at %s, using defaults", path)
		return GetDefaultConfig(), nil
	}
	return LoadConfig(path)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefaultConfig writes the default configuration to path
func GenerateDefaultConfig(path string) error {
	return SaveConfig(GetDefaultConfig(), path)
}

func (c *Config) applyDefaults() {
	if c.Server.Command == "" && len(c.Server.Args) == 0 {
		c.Server.Command = constants.DefaultLanguageServer[0]
		c.Server.Args = append([]string(nil), constants.DefaultLanguageServer[1:]...)
	}
	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = constants.DefaultRequestTimeout
	}
	if c.Timeouts.Initialize <= 0 {
		c.Timeouts.Initialize = constants.DefaultInitializeTimeout
	}
	if c.Timeouts.Shutdown <= 0 {
		c.Timeouts.Shutdown = constants.ProcessShutdownTimeout
	}
	if c.Timeouts.DiagnosticsWait <= 0 {
		c.Timeouts.DiagnosticsWait = constants.DiagnosticsWait
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for values that can never work
func (c *Config) Validate() error {
	if c.Server.Command == "" {
		return fmt.Errorf("server command is required")
	}
	if c.Server.MaxMessageBytes < 0 {
		return fmt.Errorf("server max_message_bytes must not be negative")
	}
	if c.Server.WorkingDir != "" {
		info, err := os.Stat(c.Server.WorkingDir)
		if err != nil {
			return fmt.Errorf("server working_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("server working_dir %s is not a directory", c.Server.WorkingDir)
		}
	}
	if _, err := common.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging level: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agents-ide", "config.yaml")
}

// GetDefaultConfig returns the default configuration: pyright over stdio
func GetDefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

// ProcessConfig builds the process settings for the language server
func (c *Config) ProcessConfig() process.Config {
	keys := make([]string, 0, len(c.Server.Env))
	for k := range c.Server.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Server.Env[k])
	}

	return process.Config{
		Command:         c.Server.Command,
		Args:            append([]string(nil), c.Server.Args...),
		Dir:             c.Server.WorkingDir,
		Env:             env,
		ShutdownTimeout: c.Timeouts.Shutdown,
	}
}

// SessionConfig builds the session settings
func (c *Config) SessionConfig() lsp.Config {
	return lsp.Config{
		Process:               c.ProcessConfig(),
		InitializationOptions: c.Server.InitializationOptions,
		MaxMessageBytes:       c.Server.MaxMessageBytes,
		RequestTimeout:        c.Timeouts.Request,
		InitializeTimeout:     c.Timeouts.Initialize,
	}
}

// NavigationOptions builds the navigation client settings
func (c *Config) NavigationOptions() navigation.Options {
	return navigation.Options{
		RequestTimeout:  c.Timeouts.Request,
		DiagnosticsWait: c.Timeouts.DiagnosticsWait,
	}
}
