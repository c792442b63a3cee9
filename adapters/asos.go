package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"cotton-extractor/internal/types"
)

// asosMaxProducts caps verification per category; ASOS listings are already
// filtered by composition
const asosMaxProducts = 20

// ASOSAdapter handles extraction for ASOS. Its listings can be refined by
// composition and embed JSON-LD product data, which is preferred over DOM tiles.
type ASOSAdapter struct {
	*BaseAdapter

	mu       sync.Mutex
	listings map[string]Listing
}

// NewASOSAdapter creates a new ASOS adapter
func NewASOSAdapter(spec types.RetailerSpec, region types.Region, opts Options) *ASOSAdapter {
	return &ASOSAdapter{
		BaseAdapter: NewBaseAdapter(spec, region, asosSelectors(), opts),
		listings:    make(map[string]Listing),
	}
}

// BuildCategoryURL uses the composition-refined category pages where ASOS has them
func (a *ASOSAdapter) BuildCategoryURL(baseURL string, gender types.Gender) string {
	switch gender {
	case types.GenderMen:
		return baseURL + "/men/t-shirts-vests/cat/?cid=7616&refine=attribute_10992:100%25+Cotton"
	case types.GenderWomen:
		return baseURL + "/women/tops/cat/?cid=4169&refine=attribute_10992:100%25+Cotton"
	default:
		return fmt.Sprintf("%s/search/?q=100%%25+cotton+%s", baseURL, gender)
	}
}

// DiscoverLinks reads the JSON-LD product list first and falls back to DOM tiles
func (a *ASOSAdapter) DiscoverLinks(ctx context.Context, page types.Page, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	var links []string
	for _, listing := range a.structuredListings(ctx, page) {
		link, ok := ResolveProductLink(base, listing.url)
		if !ok {
			continue
		}
		listing.ImageURL = absoluteURL(link, listing.ImageURL)

		a.mu.Lock()
		a.listings[link] = listing.Listing
		a.mu.Unlock()
		links = append(links, link)
	}

	links = a.RemoveDuplicateURLs(links)
	if len(links) > 0 {
		a.logger.Debugf("[%s] %d products from structured data", a.Key(), len(links))
		return firstN(links, a.config.MaxLinks), nil
	}

	return a.CollectLinks(ctx, page, baseURL, a.selectors.Links, a.selectors.LinkFilter)
}

// ExtractAndVerify verifies the product, reusing any listing data already parsed
func (a *ASOSAdapter) ExtractAndVerify(ctx context.Context, page types.Page, productURL string, gender types.Gender) (*types.Product, error) {
	a.mu.Lock()
	listing := a.listings[productURL]
	a.mu.Unlock()

	return a.VerifyProduct(ctx, page, productURL, gender, a.ExtractMaterial, listing)
}

// ScrapeCategory runs discovery and verification for one gender
func (a *ASOSAdapter) ScrapeCategory(ctx context.Context, page types.Page, gender types.Gender) ([]types.Product, error) {
	return a.RunCategory(ctx, page, gender, a)
}

type structuredListing struct {
	Listing
	url string
}

// structuredListings parses every application/ld+json script for Product entries
func (a *ASOSAdapter) structuredListings(ctx context.Context, page types.Page) []structuredListing {
	scripts, err := page.Query(ctx, `script[type="application/ld+json"]`)
	if err != nil {
		return nil
	}

	var listings []structuredListing
	for _, script := range scripts {
		text, err := page.Text(ctx, script)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}

		var data interface{}
		if err := json.Unmarshal([]byte(text), &data); err != nil {
			a.logger.Debugf("Skipping malformed JSON-LD: %v", err)
			continue
		}
		listings = append(listings, collectProducts(data)...)
	}
	return listings
}

// collectProducts walks a JSON-LD value for objects typed Product, including
// those nested in @graph arrays and ItemList elements
func collectProducts(data interface{}) []structuredListing {
	var listings []structuredListing

	switch value := data.(type) {
	case []interface{}:
		for _, item := range value {
			listings = append(listings, collectProducts(item)...)
		}
	case map[string]interface{}:
		if isType(value["@type"], "Product") {
			listing := structuredListing{
				url: stringField(value["url"]),
				Listing: Listing{
					Name:     stringField(value["name"]),
					ImageURL: imageField(value["image"]),
					Price:    offerPrice(value["offers"]),
				},
			}
			if listing.url != "" {
				listings = append(listings, listing)
			}
			return listings
		}
		for _, key := range []string{"@graph", "itemListElement", "item"} {
			if nested, ok := value[key]; ok {
				listings = append(listings, collectProducts(nested)...)
			}
		}
	}
	return listings
}

func isType(value interface{}, want string) bool {
	switch t := value.(type) {
	case string:
		return t == want
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func stringField(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func imageField(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			return imageField(v[0])
		}
	case map[string]interface{}:
		return stringField(v["url"])
	}
	return ""
}

func offerPrice(value interface{}) string {
	switch v := value.(type) {
	case []interface{}:
		if len(v) > 0 {
			return offerPrice(v[0])
		}
	case map[string]interface{}:
		if price := stringField(v["price"]); price != "" {
			return price
		}
		return stringField(v["lowPrice"])
	}
	return ""
}

func asosSelectors() Selectors {
	return Selectors{
		ListingReady: []string{`[data-auto-id="productTile"], article[data-auto-id]`},
		Links: []string{
			`[data-auto-id="productTile"] a`,
			`article[data-auto-id] a`,
			`a[href*="/prd/"]`,
		},
		LinkFilter: func(link string) bool {
			return strings.Contains(link, "/prd/")
		},
		Material: []string{
			`[data-test-id="product-details-composition"]`,
			".product-details-composition",
			"#productDescription",
			".product-description",
			`[class*="composition"]`,
			`[class*="material"]`,
		},
		Disclosures: []Disclosure{
			{Selector: "button", Label: "Product Details"},
			{Selector: "button", Label: "Details"},
		},
		MaterialPatterns: []*regexp.Regexp{
			regexp.MustCompile(`composition[:\s]*(.*?cotton.*?)(?:<|$)`),
			regexp.MustCompile(`material[:\s]*(.*?cotton.*?)(?:<|$)`),
			regexp.MustCompile(`100%\s*cotton`),
		},
		Name: []string{
			"h1",
			`[data-testid="product-title"]`,
		},
		Price: []string{
			`[data-id="current-price"]`,
			`[data-testid="current-price"]`,
			".current-price",
		},
		Image: []string{
			`img[data-testid="gallery-image"]`,
			".gallery-image img",
			`meta[property="og:image"]`,
		},
		Color: []string{
			`[data-id="colour-value"]`,
			".selected-colour",
		},
		Sizes: []string{
			`[data-id="size-selector"] option:not([disabled])`,
			`[data-id="sizeSelect"] option:not([disabled])`,
			".size-option:not([disabled])",
		},
		MaxProducts: asosMaxProducts,
	}
}
