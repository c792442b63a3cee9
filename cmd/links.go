package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cotton-extractor/adapters"
	"cotton-extractor/internal/app"
	"cotton-extractor/internal/config"
	"cotton-extractor/internal/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var linksFlags struct {
	retailer string
	region   string
	gender   string
	browser  string
}

func init() {
	flags := linksCmd.Flags()
	flags.StringVarP(&linksFlags.retailer, "retailer", "r", "", "Retailer key whose discovery rules to apply")
	flags.StringVar(&linksFlags.region, "region", "UK", "Region whose base URL and currency to use")
	flags.StringVarP(&linksFlags.gender, "gender", "g", "men", "Category to open when no URL is given")
	flags.StringVar(&linksFlags.browser, "browser", "", "Browser backend: chrome, selenium or http (default from config)")
	_ = linksCmd.MarkFlagRequired("retailer")
	rootCmd.AddCommand(linksCmd)
}

var linksCmd = &cobra.Command{
	Use:   "links --retailer <key> [url]",
	Short: "Prints the product links discovered on a listing page.",
	Long: `Opens a listing page the way a scrape would and prints every product link the
retailer's adapter discovers. Without a URL the gender's category page is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLinks,
}

func runLinks(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings()
	if err != nil {
		return err
	}
	if linksFlags.browser != "" {
		settings.Scrape.Browser = strings.ToLower(linksFlags.browser)
	}

	catalog, err := config.LoadCatalog(settings.CatalogFile)
	if err != nil {
		return err
	}
	spec, err := catalog.Retailer(linksFlags.retailer)
	if err != nil {
		return err
	}
	region, err := catalog.Region(linksFlags.region)
	if err != nil {
		return err
	}

	cfg := settings.ScrapeConfig()
	adapter := adapters.New(spec, region, adapters.Options{Config: cfg, Logger: logger})

	baseURL, err := adapter.ResolveBaseURL(region.Code)
	if err != nil {
		return err
	}
	listingURL := adapter.BuildCategoryURL(baseURL, types.Gender(strings.ToLower(linksFlags.gender)))
	if len(args) == 1 {
		listingURL = args[0]
	}

	ctx := cmd.Context()
	browser, err := app.NewBrowserFactory(cfg, logger)(ctx)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	logger.Infof("Opening %s", listingURL)
	links, err := listingLinks(ctx, adapter, page, listingURL)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("%s %s", spec.Name, region.Code))
	t.AppendHeader(table.Row{"#", "Product link"})
	for i, link := range links {
		t.AppendRow(table.Row{i + 1, link})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d links (cap %d)", len(links), cfg.MaxLinks)})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

// listingLinks loads the listing page and runs the adapter's discovery on it.
// Relative hrefs resolve against the listing, as in a scrape.
func listingLinks(ctx context.Context, adapter types.RetailerAdapter, page types.Page, listingURL string) ([]string, error) {
	if err := page.Navigate(ctx, listingURL); err != nil {
		return nil, fmt.Errorf("failed to load listing page: %w", err)
	}
	return adapter.DiscoverLinks(ctx, page, listingURL)
}
