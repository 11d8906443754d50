package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alcoveio/alcove/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Inspect the configuration file, print effective settings, and generate the JSON schema.`,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE:  runConfigPath,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the effective configuration as JSON, after defaults, file values, and environment overrides.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file if none exists",
	RunE:  runConfigInit,
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate the JSON schema for the config file",
	RunE:  runConfigSchema,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSchemaCmd)
}

func runConfigPath(_ *cobra.Command, _ []string) error {
	configFile, err := config.GetConfigFile()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	fmt.Println(configFile)
	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	data, err := json.MarshalIndent(app.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	configFile, _ := config.GetConfigFile()
	fmt.Println(app.Theme.Subtle.Render(configFile))
	fmt.Println(string(data))
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	app := GetApp()
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	configFile, err := config.GetConfigFile()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	if _, statErr := os.Stat(configFile); statErr == nil {
		fmt.Println(app.Theme.Subtle.Render("Config file already exists: " + configFile))
		return nil
	}

	// Load through a fresh manager; it writes the default file when missing.
	mgr, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	fmt.Println(app.Theme.SuccessStyle.Render("Created " + configFile))
	return nil
}

func runConfigSchema(_ *cobra.Command, _ []string) error {
	return config.GenerateSchemaFile()
}
