// Package commands implements the sku-lookup CLI.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/storefront-sku-lookup/internal/config"
	"github.com/maltedev/storefront-sku-lookup/pkg/logger"
)

var (
	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sku-lookup",
	Short: "Find storefront products by SKU",
	Long: `sku-lookup searches the storefront for each SKU, visits the candidate
product pages and reports the product whose SKU matches.

Examples:
  # Run the HTTP service
  sku-lookup serve --port 8080

  # Look up SKUs from the command line
  sku-lookup lookup N55028 "AB 123"

  # Read SKUs from a file, one per line
  sku-lookup lookup --file skus.txt --output csv`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: json or text")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")

	c, err := config.Load(path)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		c.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		c.Logging.Format = v
	}

	cfg = c
	log = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	return nil
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
