package main

import (
	"os"
	"strings"

	"cotton-extractor/adapters"
	"cotton-extractor/internal/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(retailersCmd)
}

var retailersCmd = &cobra.Command{
	Use:   "retailers",
	Short: "Prints which retailers serve which region.",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, _, err := loadSettings()
		if err != nil {
			return err
		}
		catalog, err := config.LoadCatalog(settings.CatalogFile)
		if err != nil {
			return err
		}

		codes := catalog.RegionCodes()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		header := table.Row{"Key", "Retailer", "Adapter"}
		for _, code := range codes {
			region, err := catalog.Region(code)
			if err != nil {
				return err
			}
			header = append(header, code+" ("+region.CurrencySymbol+")")
		}
		t.AppendHeader(header)

		for _, key := range catalog.Keys() {
			spec, err := catalog.Retailer(key)
			if err != nil {
				return err
			}
			adapter := "generic"
			if adapters.IsSpecialised(key) {
				adapter = "specialised"
			}
			row := table.Row{key, spec.Name, adapter}
			for _, code := range codes {
				if catalog.AvailableIn(key, code) {
					row = append(row, "yes")
				} else {
					row = append(row, "-")
				}
			}
			t.AppendRow(row)
		}

		t.SetCaption("Material filter on listings: %s", strings.Join(filteredRetailers(catalog), ", "))
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

// filteredRetailers lists the retailers whose listings can be narrowed to cotton
func filteredRetailers(catalog *config.Catalog) []string {
	var keys []string
	for _, key := range catalog.Keys() {
		if spec, err := catalog.Retailer(key); err == nil && spec.SupportsMaterialFilter {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return []string{"none"}
	}
	return keys
}
