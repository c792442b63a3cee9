package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"cotton-extractor/extractor"
	"cotton-extractor/internal/app"
	"cotton-extractor/internal/types"
	"cotton-extractor/services/storage"
	"github.com/spf13/cobra"
)

var scrapeFlags struct {
	region      string
	retailers   []string
	genders     []string
	output      string
	concurrent  bool
	browser     string
	maxProducts int
}

func init() {
	flags := scrapeCmd.Flags()
	flags.StringVar(&scrapeFlags.region, "region", "", "Region to scrape: UK, USA or ALL (default from config)")
	flags.StringSliceVarP(&scrapeFlags.retailers, "retailer", "r", nil, "Retailer keys to scrape (default: every retailer of the region)")
	flags.StringSliceVarP(&scrapeFlags.genders, "gender", "g", nil, "Genders to scrape: men, women, kids (default: all)")
	flags.StringVarP(&scrapeFlags.output, "output", "o", "", "Also write the combined products to this JSON file")
	flags.BoolVar(&scrapeFlags.concurrent, "concurrent", false, "Scrape retailers in parallel")
	flags.StringVar(&scrapeFlags.browser, "browser", "", "Browser backend: chrome, selenium or http (default from config)")
	flags.IntVar(&scrapeFlags.maxProducts, "max-products", 0, "Products to verify per category (default from config)")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--region UK] [--retailer hm,asos] [--gender men]",
	Short: "Scrapes retailers and saves the verified cotton products.",
	RunE:  runScrape,
}

func runScrape(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings()
	if err != nil {
		return err
	}

	if scrapeFlags.region != "" {
		settings.Scrape.Region = strings.ToUpper(scrapeFlags.region)
	}
	if cmd.Flags().Changed("concurrent") {
		settings.Scrape.Concurrent = scrapeFlags.concurrent
	}
	if scrapeFlags.browser != "" {
		switch backend := strings.ToLower(scrapeFlags.browser); backend {
		case "chrome", "selenium", "http":
			settings.Scrape.Browser = backend
		default:
			return fmt.Errorf("browser must be 'chrome', 'selenium' or 'http', got: %s", scrapeFlags.browser)
		}
	}
	if scrapeFlags.maxProducts > 0 {
		settings.Scrape.MaxProducts = scrapeFlags.maxProducts
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	genders := make([]types.Gender, 0, len(scrapeFlags.genders))
	for _, gender := range scrapeFlags.genders {
		genders = append(genders, types.Gender(gender))
	}

	if _, err := a.Extractor.Start(ctx, extractor.Request{
		Region:    settings.Scrape.Region,
		Retailers: scrapeFlags.retailers,
		Genders:   genders,
	}); err != nil {
		return err
	}

	// Interrupt finishes the retailer in progress and keeps what was found
	go func() {
		<-ctx.Done()
		if err := a.Extractor.Stop(); err == nil {
			logger.Warn("Interrupted, finishing the current retailer")
		}
	}()

	result, err := a.Extractor.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}

	fmt.Println(storage.Summarize(result.Products).Render())
	if len(result.Errors) > 0 {
		fmt.Printf("\n%d retailer(s) reported errors:\n", len(result.Errors))
		for _, message := range result.Errors {
			fmt.Printf("  - %s\n", message)
		}
	}

	if scrapeFlags.output != "" {
		jsonData, err := json.MarshalIndent(types.NewBatch(result.Products), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		if err := os.WriteFile(scrapeFlags.output, jsonData, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		logger.Infof("Results written to: %s", scrapeFlags.output)
	}

	return nil
}
