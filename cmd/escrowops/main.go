package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"escrowops/internal/platform/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "escrowops",
	Short:         "Operator control plane for the escrow bot",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv(config.FileEnvVar), "TOML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig() (config.Config, error) {
	return config.LoadFile(configFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
