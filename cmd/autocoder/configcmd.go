package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/autocoder/internal/config"
)

var configFlags struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	force    bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration for the repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		repoRoot, err := resolveRepoRoot(rootFlags.repo)
		if err != nil {
			return err
		}
		cfg, err := config.Load(repoRoot)
		if err != nil {
			return err
		}
		return config.Encode(cmd.OutOrStdout(), cfg.Redacted())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the global config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := config.GlobalPath()
		if _, err := os.Stat(path); err == nil && !configFlags.force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		cfg := config.Defaults()
		if configFlags.provider != "" {
			cfg.Provider = configFlags.provider
		}
		cfg.Model = configFlags.model
		cfg.APIKey = configFlags.apiKey
		cfg.BaseURL = configFlags.baseURL
		if cfg.APIKey == "" {
			return errors.New("--api-key is required")
		}
		if err := config.WriteGlobal(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configFlags.provider, "provider", "", "Model provider (openai, anthropic or a preset)")
	configInitCmd.Flags().StringVar(&configFlags.model, "model", "", "Model name (default: provider default)")
	configInitCmd.Flags().StringVar(&configFlags.apiKey, "api-key", "", "API key for the provider")
	configInitCmd.Flags().StringVar(&configFlags.baseURL, "base-url", "", "Custom endpoint for OpenAI-compatible providers")
	configInitCmd.Flags().BoolVar(&configFlags.force, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
