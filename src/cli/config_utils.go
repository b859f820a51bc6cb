package cli

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"agents-ide/src/config"
	"agents-ide/src/internal/common"
	versionpkg "agents-ide/src/internal/version"
)

func resolveConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	return config.GetDefaultConfigPath()
}

func applyLogLevel(opts *options) error {
	if opts.verbose {
		common.SetGlobalLevel(common.LogDebug)
	}
	return nil
}

// loadConfig loads the configuration for session commands. An explicit
// --config must exist; the default path falls back to built-in defaults.
func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadConfig(opts.configPath)
	} else {
		cfg, err = config.LoadConfigOrDefault(config.GetDefaultConfigPath())
	}
	if err != nil {
		return nil, err
	}

	if !opts.verbose {
		level, err := common.ParseLogLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		common.SetGlobalLevel(level)
	}
	return cfg, nil
}

// InitConfig writes the default configuration file
func InitConfig(out io.Writer, configPath string, force bool) error {
	path := resolveConfigPath(configPath)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	if err := config.GenerateDefaultConfig(path); err != nil {
		return err
	}
	common.CLILogger.Info("Wrote default configuration to %s", path)
	fmt.Fprintln(out, path)
	return nil
}

// ShowConfig prints the effective configuration as YAML
func ShowConfig(out io.Writer, configPath string) error {
	path := resolveConfigPath(configPath)
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfig(path)
	} else {
		cfg, err = config.LoadConfigOrDefault(path)
	}
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprintf(out, "# %s\n%s", path, data)
	return nil
}

// ShowVersion prints the version, with build details when verbose
func ShowVersion(out io.Writer, verbose bool) error {
	if verbose {
		fmt.Fprintln(out, versionpkg.GetFullVersionInfo())
		return nil
	}
	fmt.Fprintf(out, "agents-ide %s\n", versionpkg.GetVersion())
	return nil
}
