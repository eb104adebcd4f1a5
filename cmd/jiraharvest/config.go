package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"jiraharvest/pkg/config"
	"jiraharvest/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage jiraharvest configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (JIRAHARVEST_*, including a .env file)
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the defaults",
	Long: `Write the default configuration to .jiraharvest.yaml in the current
directory, or to the path given with --config.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging flags, environment, file and
defaults. The API token is masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load and validate the configuration, reporting every problem found,
and check that the output, checkpoint and log locations are writable.`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".jiraharvest.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file %s already exists, remove it first to overwrite", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Fprintln(ui.Output(), "\nNext steps:")
	fmt.Fprintln(ui.Output(), "1. Edit the project list and, for private sites, the base URL")
	fmt.Fprintln(ui.Output(), "2. Run 'jiraharvest config validate' to check the configuration")
	fmt.Fprintln(ui.Output(), "3. Start harvesting with 'jiraharvest harvest'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Fprint(os.Stdout, string(data))

	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		source = "(none, defaults only)"
	}
	fmt.Fprintf(os.Stderr, "\n# configuration file: %s\n", source)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source != "" {
		ui.PrintInfo("Validating configuration", source)
	} else {
		ui.PrintInfo("Validating configuration", "defaults and environment")
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	var problems []error
	for _, path := range []string{cfg.Output.Path, cfg.Checkpoint.Path, cfg.Logging.File} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create directory for %s: %w", path, err))
		}
	}
	if err := errors.Join(problems...); err != nil {
		return err
	}

	if cfg.RateLimit.RequestsPerMinute == 0 {
		ui.PrintWarning("Request pacing is disabled, the server may answer with 429s")
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Fprintln(ui.Output(), "\nConfiguration summary:")
	fmt.Fprintf(ui.Output(), "  Site: %s\n", cfg.Jira.BaseURL)
	fmt.Fprintf(ui.Output(), "  Projects: %v\n", cfg.Jira.Projects)
	fmt.Fprintf(ui.Output(), "  Page size: %d\n", cfg.Jira.PageSize)
	fmt.Fprintf(ui.Output(), "  Output: %s\n", cfg.Output.Path)
	fmt.Fprintf(ui.Output(), "  Checkpoint: %s (%s)\n", cfg.Checkpoint.Path, cfg.Checkpoint.Backend)
	fmt.Fprintf(ui.Output(), "  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Fprintf(ui.Output(), "  Max attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Fprintf(ui.Output(), "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
