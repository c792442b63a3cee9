package adapters

import (
	"context"
	"regexp"
	"strings"

	"cotton-extractor/internal/types"
)

// HMAdapter handles extraction for H&M, whose listing tiles and composition
// blocks carry stable data-testid hooks
type HMAdapter struct {
	*BaseAdapter
}

// NewHMAdapter creates a new H&M adapter
func NewHMAdapter(spec types.RetailerSpec, region types.Region, opts Options) *HMAdapter {
	return &HMAdapter{
		BaseAdapter: NewBaseAdapter(spec, region, hmSelectors(), opts),
	}
}

// ScrapeCategory runs discovery and verification for one gender
func (h *HMAdapter) ScrapeCategory(ctx context.Context, page types.Page, gender types.Gender) ([]types.Product, error) {
	return h.RunCategory(ctx, page, gender, h)
}

func hmSelectors() Selectors {
	material := []string{
		`[data-testid="product-description-text"]`,
		".product-description",
		".product-detail-info",
		"#product-description",
		".composition",
	}

	return Selectors{
		ListingReady: []string{
			`article[data-testid="productTile"]`,
			".product-item",
		},
		Links: []string{
			`article[data-testid="productTile"] a`,
			".product-item a",
			"a.item-link",
			`[data-test="product-link"]`,
		},
		LinkFilter: func(link string) bool {
			return strings.Contains(link, "/productpage") || strings.HasSuffix(strings.SplitN(link, "?", 2)[0], ".html")
		},
		Material:           material,
		DisclosureMaterial: material,
		LabelledMaterial: []Disclosure{
			{Selector: "div", Label: "Composition"},
			{Selector: "div", Label: "Material"},
		},
		Disclosures: []Disclosure{
			{Selector: "button", Label: "Details"},
			{Selector: "button", Label: "Composition"},
			{Selector: "button", Label: "Material"},
		},
		MaterialPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:composition|material)[:\s]*(.*?cotton.*?)(?:\.|<|$)`),
		},
		Name: []string{
			`h1[data-testid="product-name"]`,
			"h1",
			".product-item-headline",
		},
		Price: []string{
			`[data-testid="product-price"] span`,
			".price-value",
			".product-price",
		},
		Image: []string{
			`img[data-testid="product-image"]`,
			".product-image img",
			".pdp-image img",
			`meta[property="og:image"]`,
		},
		Color: []string{
			`[data-testid="selected-color"]`,
			".color-name",
		},
		Sizes: []string{
			`[data-testid="size-selector"] button:not([disabled])`,
			`[data-testid="size-selector"] li:not([aria-disabled="true"])`,
			".size-options button:not([disabled])",
		},
		RequireListing: true,
	}
}
