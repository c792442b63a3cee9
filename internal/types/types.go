package types

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gender is one of the canonical audience groups a product is listed under
type Gender string

const (
	GenderMen   Gender = "men"
	GenderWomen Gender = "women"
	GenderKids  Gender = "kids"
)

// AllGenders returns the canonical genders in default scrape order
func AllGenders() []Gender {
	return []Gender{GenderMen, GenderWomen, GenderKids}
}

// Product represents a verified 100% cotton product
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Brand          string          `json:"brand"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	CurrencySymbol string          `json:"currency_symbol"`
	URL            string          `json:"url"`
	ImageURL       string          `json:"image_url"`
	Gender         Gender          `json:"gender"`
	Category       string          `json:"category"`
	Material       string          `json:"material"`
	Color          string          `json:"color,omitempty"`
	Sizes          []string        `json:"sizes"`
	Source         string          `json:"source"`
	Region         string          `json:"region"`
	ScrapedAt      time.Time       `json:"scraped_at"`
}

// Batch is the persisted artifact for one group of products
type Batch struct {
	ScrapedAt     time.Time `json:"scraped_at"`
	TotalProducts int       `json:"total_products"`
	Products      []Product `json:"products"`
}

// NewBatch wraps products into a batch stamped with the current time
func NewBatch(products []Product) *Batch {
	if products == nil {
		products = []Product{}
	}
	return &Batch{
		ScrapedAt:     time.Now(),
		TotalProducts: len(products),
		Products:      products,
	}
}

// Region describes a shopping region and the retailers that serve it
type Region struct {
	Code           string   `json:"code"`
	Currency       string   `json:"currency"`
	CurrencySymbol string   `json:"currency_symbol"`
	Retailers      []string `json:"retailers"`
}

// RetailerSpec is the static configuration for one retailer
type RetailerSpec struct {
	Key                    string            `json:"key"`
	Name                   string            `json:"name"`
	BaseURLs               map[string]string `json:"base_urls"`
	SearchPaths            map[Gender]string `json:"search_paths"`
	MaterialFilter         string            `json:"material_filter,omitempty"`
	SupportsMaterialFilter bool              `json:"supports_material_filter"`
	MaterialSelector       string            `json:"material_selector,omitempty"`
}

// Config holds the configuration for the extractor
type Config struct {
	RequestDelay          time.Duration
	Jitter                time.Duration
	MaxRetries            int
	RetryBaseDelay        time.Duration
	Timeout               time.Duration
	WaitTimeout           time.Duration
	SettleDelay           time.Duration
	DisclosureDelay       time.Duration
	ScrollCount           int
	MaxLinks              int
	MaxProducts           int
	Concurrent            bool
	MaxConcurrentRequests int
	BrowserBackend        string
	SeleniumURL           string
	UserAgent             string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RequestDelay:          2 * time.Second,
		Jitter:                1 * time.Second,
		MaxRetries:            3,
		RetryBaseDelay:        1 * time.Second,
		Timeout:               30 * time.Second,
		WaitTimeout:           10 * time.Second,
		SettleDelay:           3 * time.Second,
		DisclosureDelay:       500 * time.Millisecond,
		ScrollCount:           3,
		MaxLinks:              100,
		MaxProducts:           30,
		Concurrent:            false,
		MaxConcurrentRequests: 5,
		BrowserBackend:        "chrome",
		SeleniumURL:           "http://localhost:4444/wd/hub",
		UserAgent:             "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Element is an opaque handle to a node owned by a Page backend
type Element interface{}

// Page is a single browsing context. Implementations are not safe for
// concurrent navigation.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor reports whether selector matched before the timeout elapsed
	WaitFor(ctx context.Context, selector string, timeout time.Duration) bool
	Query(ctx context.Context, selector string) ([]Element, error)
	Text(ctx context.Context, el Element) (string, error)
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	Click(ctx context.Context, el Element) error
	ScrollBy(ctx context.Context, pixels int) error
	Content(ctx context.Context) (string, error)
	URL() string
	Close() error
}

// Browser hands out pages from one underlying browsing capability
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// RetailerAdapter defines the retailer-specific discovery and extraction logic
type RetailerAdapter interface {
	// Key returns the retailer identifier used in product ids and output names
	Key() string

	// Name returns the display name of the retailer
	Name() string

	// ResolveBaseURL returns the base URL for the region or an error if the
	// retailer does not serve it
	ResolveBaseURL(region string) (string, error)

	// BuildCategoryURL returns the listing URL for one gender
	BuildCategoryURL(baseURL string, gender Gender) string

	// DiscoverLinks returns candidate product URLs from a loaded listing page
	DiscoverLinks(ctx context.Context, page Page, baseURL string) ([]string, error)

	// ExtractMaterial returns the composition text of a loaded product page
	ExtractMaterial(ctx context.Context, page Page) string

	// ExtractAndVerify loads a product page and returns the product when it
	// passes the cotton gate, nil when it does not
	ExtractAndVerify(ctx context.Context, page Page, productURL string, gender Gender) (*Product, error)

	// ScrapeCategory runs discovery and verification for one gender
	ScrapeCategory(ctx context.Context, page Page, gender Gender) ([]Product, error)
}

// Logger defines the logging interface
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
