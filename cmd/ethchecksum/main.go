package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethchecksum/ethchecksum/internal/config"
	"github.com/ethchecksum/ethchecksum/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ethchecksum",
		Short:         "Ethereum address checksum widget with wallet-gated cloud sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(checksumCmd(), serveCmd(), connectCmd(), migrateSettingsCmd())
	return cmd
}

// loadConfig reads the environment and initializes the global logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}
