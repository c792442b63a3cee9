package storage

import (
	"fmt"
	"sort"
	"strings"

	"cotton-extractor/internal/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
)

// MergeProducts appends the products of incoming whose id is not yet present
func MergeProducts(existing, incoming []types.Product) []types.Product {
	merged := make([]types.Product, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))

	for _, products := range [][]types.Product{existing, incoming} {
		for _, product := range products {
			if seen[product.ID] {
				continue
			}
			seen[product.ID] = true
			merged = append(merged, product)
		}
	}
	return merged
}

// Summary aggregates a product set for reporting
type Summary struct {
	Total      int
	ByGender   map[string]int
	ByRetailer map[string]int
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
	// Priced is false when no product carries a positive price
	Priced bool
}

// Summarize counts products per gender and retailer and finds the price range
func Summarize(products []types.Product) Summary {
	summary := Summary{
		Total:      len(products),
		ByGender:   make(map[string]int),
		ByRetailer: make(map[string]int),
	}

	for _, product := range products {
		gender := string(product.Gender)
		if gender == "" {
			gender = "unknown"
		}
		summary.ByGender[gender]++

		source := product.Source
		if source == "" {
			source = "unknown"
		}
		summary.ByRetailer[source]++

		if !product.Price.IsPositive() {
			continue
		}
		if !summary.Priced || product.Price.LessThan(summary.MinPrice) {
			summary.MinPrice = product.Price
		}
		if !summary.Priced || product.Price.GreaterThan(summary.MaxPrice) {
			summary.MaxPrice = product.Price
		}
		summary.Priced = true
	}
	return summary
}

// Render formats the summary as a table
func (s Summary) Render() string {
	if s.Total == 0 {
		return "No products found."
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Scraping Summary")
	t.AppendHeader(table.Row{"Group", "Value", "Products"})
	t.AppendRow(table.Row{"Total", "", s.Total})
	t.AppendSeparator()

	for _, gender := range sortedKeys(s.ByGender) {
		t.AppendRow(table.Row{"Gender", capitalize(gender), s.ByGender[gender]})
	}
	t.AppendSeparator()

	for _, source := range sortedKeys(s.ByRetailer) {
		t.AppendRow(table.Row{"Retailer", source, s.ByRetailer[source]})
	}

	if s.Priced {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Price range", fmt.Sprintf("%s - %s", s.MinPrice.StringFixed(2), s.MaxPrice.StringFixed(2)), ""})
	}
	return t.Render()
}

func sortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
