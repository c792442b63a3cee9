package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cotton-extractor/internal/app"
	"cotton-extractor/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "cotton-extractor",
	Short: "Finds 100% cotton clothing across online retailers.",
	Long: `cotton-extractor walks retailer category listings, opens every product page
and keeps only the products whose composition is 100% cotton.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("COTTON_CONFIG"), "Path to a config file (default: ./config.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// loadSettings reads the settings and builds the logger for a command
func loadSettings() (*config.Settings, *logrus.Logger, error) {
	logger := app.NewLogger(verbose)
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return settings, logger, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
