// Package cmd implements the eduswarm command line.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/hupe1980/eduswarm/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

// load reads the env file (if present) and then the configuration.
func (ro *rootOptions) load() error {
	if ro.envFile != "" {
		if err := godotenv.Load(ro.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return err
	}
	ro.cfg = cfg
	return nil
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "eduswarm",
		Short:         "Multi-agent learning orchestrator",
		Long:          "eduswarm coordinates specialized tutoring agents for learners, records every interaction as a thought graph and serves it over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return ro.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&ro.configPath, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&ro.envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(ro),
		newChatCmd(ro),
		newCatalogCmd(),
	)
	return rootCmd
}
