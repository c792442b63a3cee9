package adapters

import (
	"context"
	"regexp"

	"cotton-extractor/internal/types"
)

// GenericAdapter scrapes any configured retailer with the shared heuristics only
type GenericAdapter struct {
	*BaseAdapter
}

// NewGenericAdapter creates a configuration-driven adapter
func NewGenericAdapter(spec types.RetailerSpec, region types.Region, opts Options) *GenericAdapter {
	return &GenericAdapter{
		BaseAdapter: NewBaseAdapter(spec, region, GenericSelectors(), opts),
	}
}

// ScrapeCategory runs discovery and verification for one gender
func (g *GenericAdapter) ScrapeCategory(ctx context.Context, page types.Page, gender types.Gender) ([]types.Product, error) {
	return g.RunCategory(ctx, page, gender, g)
}

// GenericSelectors returns the cascades used when nothing retailer-specific is known
func GenericSelectors() Selectors {
	return Selectors{
		Links: []string{
			`a[href*="/product"]`,
			`a[href*="/p/"]`,
			`a[href*="/pd/"]`,
			`a[href*="/item/"]`,
			`a[href*="/shop/"]`,
			`a[href*="-p-"]`,
			`.product-card a`,
			`.product-item a`,
			`.product-tile a`,
			`.product a[href]`,
			`article a[href]`,
			`[data-testid*="product"] a`,
			`[class*="product"] a[href]`,
			`[class*="Product"] a[href]`,
			`a[class*="product"]`,
			`a[class*="Product"]`,
			`.item a[href]`,
			`.item-link`,
			`a.product-link`,
		},
		Material: []string{
			`[data-testid="composition"]`,
			`[data-testid="product-composition"]`,
			`[data-testid="material"]`,
			`.composition`,
			`.material`,
			`.fabric`,
			`.fabric-care`,
			`#composition`,
			`#material`,
			`.product-details`,
			`.product-description`,
			`.product-info`,
			`[class*="composition"]`,
			`[class*="Composition"]`,
			`[class*="material"]`,
			`[class*="Material"]`,
			`[class*="fabric"]`,
			`[class*="Fabric"]`,
			`[id*="composition"]`,
			`[id*="material"]`,
			`.details-content`,
			`.description-text`,
		},
		Disclosures: []Disclosure{
			{Selector: "button", Label: "Details"},
			{Selector: "button", Label: "Composition"},
			{Selector: "button", Label: "Material"},
			{Selector: "a", Label: "Details"},
			{Selector: `[role="tab"]`, Label: "Details"},
			{Selector: ".tab", Label: "Details"},
		},
		MaterialPatterns: []*regexp.Regexp{
			regexp.MustCompile(`composition[:\s]*([^<>]*100%?[^<>]*cotton[^<>]*)`),
			regexp.MustCompile(`material[:\s]*([^<>]*100%?[^<>]*cotton[^<>]*)`),
			regexp.MustCompile(`fabric[:\s]*([^<>]*100%?[^<>]*cotton[^<>]*)`),
			regexp.MustCompile(`(100%\s*cotton)`),
			regexp.MustCompile(`(100%\s*organic\s*cotton)`),
			regexp.MustCompile(`(100%\s*bci\s*cotton)`),
			regexp.MustCompile(`(pure\s*cotton)`),
			regexp.MustCompile(`(all\s*cotton)`),
		},
		Name: []string{
			"h1",
			`[data-testid="product-title"]`,
			".product-name",
			".product-title",
			"#product-title",
		},
		Price: []string{
			`[data-testid="price"]`,
			".price",
			".product-price",
			`[class*="price"]`,
			"span[data-price]",
		},
		Image: []string{
			".product-image img",
			"#product-image img",
			`[data-testid="product-image"] img`,
			".gallery img",
			`img[alt*="product"]`,
			`meta[property="og:image"]`,
		},
		Color: []string{
			".selected-color",
			".color-name",
			`[data-testid="color"]`,
		},
		Sizes: []string{
			".size-selector button:not([disabled])",
			".size-option:not(.disabled)",
			`[data-testid="size"] option`,
			`select[name*="size"] option`,
		},
	}
}
