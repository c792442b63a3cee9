package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"cotton-extractor/internal/types"
	scrapeerrors "cotton-extractor/pkg/errors"
	"cotton-extractor/services/cache"
	"cotton-extractor/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// siteFetcher serves fixture pages and counts requests per URL
type siteFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
}

func newSiteFetcher(pages map[string]string) *siteFetcher {
	return &siteFetcher{pages: pages, hits: make(map[string]int)}
}

func (f *siteFetcher) Get(ctx context.Context, u string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[u]++
	body, ok := f.pages[u]
	if !ok {
		return nil, errors.New("unexpected status code: 404")
	}
	return []byte(body), nil
}

func (f *siteFetcher) Hits(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[u]
}

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.RequestDelay = 0
	config.Jitter = 0
	config.MaxRetries = 1
	config.RetryBaseDelay = time.Millisecond
	config.SettleDelay = 0
	config.DisclosureDelay = 0
	config.WaitTimeout = time.Millisecond
	return config
}

func testOptions() Options {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return Options{
		Config:     testConfig(),
		Logger:     logger,
		Rejections: cache.NewRejections(cache.NewMemoryCache(), time.Hour),
	}
}

var testRegion = types.Region{Code: "UK", Currency: "GBP", CurrencySymbol: "£", Retailers: []string{"teststore"}}

func testSpec() types.RetailerSpec {
	return types.RetailerSpec{
		Key:      "teststore",
		Name:     "Test Store",
		BaseURLs: map[string]string{"UK": "https://shop.test"},
		SearchPaths: map[types.Gender]string{
			types.GenderMen: "/men",
		},
	}
}

const listingPage = `<html><body>
<nav><a href="/cart">Bag</a><a href="/account/login">Sign in</a><a href="javascript:void(0)">Menu</a><a href="#top">Top</a></nav>
<div class="product-card"><a href="/product/classic-tee">Classic Tee</a></div>
<div class="product-card"><a href="/product/stretch-tee#reviews">Stretch Tee</a></div>
<div class="product-card"><a href="https://shop.test/product/oxford-shirt">Oxford Shirt</a></div>
<article><a href="/product/classic-tee">Classic Tee again</a></article>
<a href="mailto:help@shop.test">Help</a>
</body></html>`

func productPage(name, price, composition string) string {
	return `<html><head><meta property="og:image" content="https://cdn.shop.test/og.jpg"></head><body>
<h1> ` + name + ` </h1>
<span class="price">` + price + `</span>
<div class="product-image"><img src="/img/main.jpg"></div>
<span class="color-name">White</span>
<div class="size-selector"><button>Select size</button><button>S</button><button>M</button><button disabled>L</button></div>
<div class="composition">` + composition + `</div>
</body></html>`
}

func fixtureSite() map[string]string {
	return map[string]string{
		"https://shop.test/men":                  listingPage,
		"https://shop.test/product/classic-tee":  productPage("Classic Tee", "£12.99", "Shell: 100% Cotton"),
		"https://shop.test/product/stretch-tee":  productPage("Stretch Tee", "£14.99", "80% Cotton 20% Elastane"),
		"https://shop.test/product/oxford-shirt": productPage("Oxford Shirt", "€ 39,99", "Pure Cotton poplin"),
	}
}

func newPage(t *testing.T, fetcher utils.Fetcher) types.Page {
	t.Helper()
	page, err := utils.NewDocumentBrowser(fetcher, logrus.New()).NewPage(context.Background())
	require.NoError(t, err)
	return page
}

func TestResolveProductLink(t *testing.T) {
	base, _ := url.Parse("https://shop.test/en_gb/men")

	tests := []struct {
		href     string
		expected string
		ok       bool
	}{
		{"/product/1", "https://shop.test/product/1", true},
		{"product/2", "https://shop.test/en_gb/product/2", true},
		{"https://other.test/p/3#reviews", "https://other.test/p/3", true},
		{"//cdn.shop.test/p/4", "https://cdn.shop.test/p/4", true},
		{"#top", "", false},
		{"", "", false},
		{"javascript:void(0)", "", false},
		{"mailto:help@shop.test", "", false},
		{"tel:123", "", false},
		{"/cart", "", false},
		{"/my-account/orders", "", false},
		{"/wishlist?add=1", "", false},
		{"ftp://shop.test/file", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			link, ok := ResolveProductLink(base, tt.href)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, link)
		})
	}
}

func TestGenericAdapter_DiscoverLinks(t *testing.T) {
	ctx := context.Background()
	adapter := NewGenericAdapter(testSpec(), testRegion, testOptions())
	page := newPage(t, newSiteFetcher(fixtureSite()))
	require.NoError(t, page.Navigate(ctx, "https://shop.test/men"))

	links, err := adapter.DiscoverLinks(ctx, page, "https://shop.test/men")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://shop.test/product/classic-tee",
		"https://shop.test/product/stretch-tee",
		"https://shop.test/product/oxford-shirt",
	}, links)

	again, err := adapter.DiscoverLinks(ctx, page, "https://shop.test/men")
	require.NoError(t, err)
	sort.Strings(links)
	sort.Strings(again)
	assert.Equal(t, links, again)
}

func TestGenericAdapter_DiscoverLinks_Capped(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.Config.MaxLinks = 2
	adapter := NewGenericAdapter(testSpec(), testRegion, opts)
	page := newPage(t, newSiteFetcher(fixtureSite()))
	require.NoError(t, page.Navigate(ctx, "https://shop.test/men"))

	links, err := adapter.DiscoverLinks(ctx, page, "https://shop.test/men")
	require.NoError(t, err)
	assert.Len(t, links, 2)
	assert.Equal(t, "https://shop.test/product/classic-tee", links[0])
}

func TestBaseAdapter_BuildCategoryURL(t *testing.T) {
	adapter := NewGenericAdapter(testSpec(), testRegion, testOptions())

	assert.Equal(t, "https://shop.test/men", adapter.BuildCategoryURL("https://shop.test", types.GenderMen))
	assert.Equal(t, "https://shop.test/search?q=100%25+cotton+women", adapter.BuildCategoryURL("https://shop.test", types.GenderWomen))

	spec := testSpec()
	spec.SupportsMaterialFilter = true
	spec.MaterialFilter = "composition=100%25+Cotton"
	spec.SearchPaths[types.GenderKids] = "/kids/cat/?cid=1"
	filtered := NewGenericAdapter(spec, testRegion, testOptions())

	assert.Equal(t, "https://shop.test/men?composition=100%25+Cotton", filtered.BuildCategoryURL("https://shop.test", types.GenderMen))
	assert.Equal(t, "https://shop.test/kids/cat/?cid=1&composition=100%25+Cotton", filtered.BuildCategoryURL("https://shop.test", types.GenderKids))
}

func TestBaseAdapter_ResolveBaseURL(t *testing.T) {
	adapter := NewGenericAdapter(testSpec(), testRegion, testOptions())

	baseURL, err := adapter.ResolveBaseURL("uk")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test", baseURL)

	_, err = adapter.ResolveBaseURL("USA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, scrapeerrors.ErrRegionUnsupported))
	assert.True(t, scrapeerrors.IsType(err, scrapeerrors.ErrorTypeConfiguration))
}

// revealPage swaps in new markup when a disclosure control is clicked
type revealPage struct {
	*utils.DocumentPage
	revealed string
	clicks   int
}

func (p *revealPage) Click(ctx context.Context, el types.Element) error {
	p.clicks++
	page, err := utils.NewDocumentPageFromHTML(p.URL(), p.revealed)
	if err != nil {
		return err
	}
	p.DocumentPage = page
	return nil
}

func TestBaseAdapter_ExtractMaterial(t *testing.T) {
	ctx := context.Background()
	adapter := NewGenericAdapter(testSpec(), testRegion, testOptions())

	t.Run("selector probing", func(t *testing.T) {
		page, err := utils.NewDocumentPageFromHTML("https://shop.test/p/1",
			`<div class="product-info">Soft jersey</div><div data-testid="composition"> 100%  Cotton </div>`)
		require.NoError(t, err)
		assert.Equal(t, "100% Cotton", adapter.ExtractMaterial(ctx, page))
	})

	t.Run("disclosure", func(t *testing.T) {
		initial, err := utils.NewDocumentPageFromHTML("https://shop.test/p/2",
			`<h1>Tee</h1><button>Size guide</button><button>Product Details</button>`)
		require.NoError(t, err)
		page := &revealPage{
			DocumentPage: initial,
			revealed:     `<h1>Tee</h1><div class="composition">Composition: 100% organic cotton</div>`,
		}

		assert.Equal(t, "Composition: 100% organic cotton", adapter.ExtractMaterial(ctx, page))
		assert.Equal(t, 1, page.clicks)
	})

	t.Run("full page search", func(t *testing.T) {
		page, err := utils.NewDocumentPageFromHTML("https://shop.test/p/3",
			`<h1>Tee</h1><p>About this item</p><ul><li>Material: 100% cotton twill</li></ul>`)
		require.NoError(t, err)
		assert.Equal(t, "100% cotton twill", adapter.ExtractMaterial(ctx, page))
	})

	t.Run("nothing found", func(t *testing.T) {
		page, err := utils.NewDocumentPageFromHTML("https://shop.test/p/4", `<h1>Mug</h1><p>Ceramic</p>`)
		require.NoError(t, err)
		assert.Equal(t, "", adapter.ExtractMaterial(ctx, page))
	})
}

func TestBaseAdapter_ExtractAndVerify(t *testing.T) {
	ctx := context.Background()
	fetcher := newSiteFetcher(fixtureSite())
	fetcher.pages["https://shop.test/product/no-price"] = productPage("Mystery Tee", "Sold out", "100% Cotton")
	adapter := NewGenericAdapter(testSpec(), testRegion, testOptions())
	page := newPage(t, fetcher)

	t.Run("qualifying product", func(t *testing.T) {
		product, err := adapter.ExtractAndVerify(ctx, page, "https://shop.test/product/classic-tee", types.GenderMen)
		require.NoError(t, err)
		require.NotNil(t, product)

		assert.Equal(t, utils.ProductID("teststore", "https://shop.test/product/classic-tee"), product.ID)
		assert.Equal(t, "Classic Tee", product.Name)
		assert.Equal(t, "Test Store", product.Brand)
		assert.True(t, product.Price.Equal(decimal.RequireFromString("12.99")))
		assert.Equal(t, "GBP", product.Currency)
		assert.Equal(t, "£", product.CurrencySymbol)
		assert.Equal(t, "https://shop.test/img/main.jpg", product.ImageURL)
		assert.Equal(t, types.GenderMen, product.Gender)
		assert.Equal(t, "t-shirts", product.Category)
		assert.Equal(t, "Shell: 100% Cotton", product.Material)
		assert.Equal(t, "White", product.Color)
		assert.Equal(t, []string{"S", "M"}, product.Sizes)
		assert.Equal(t, "teststore", product.Source)
		assert.Equal(t, "UK", product.Region)
		assert.False(t, product.ScrapedAt.IsZero())
	})

	t.Run("blend is rejected and remembered", func(t *testing.T) {
		productURL := "https://shop.test/product/stretch-tee"
		product, err := adapter.ExtractAndVerify(ctx, page, productURL, types.GenderMen)
		require.NoError(t, err)
		assert.Nil(t, product)
		assert.Equal(t, 1, fetcher.Hits(productURL))

		product, err = adapter.ExtractAndVerify(ctx, page, productURL, types.GenderMen)
		require.NoError(t, err)
		assert.Nil(t, product)
		assert.Equal(t, 1, fetcher.Hits(productURL))
	})

	t.Run("missing price discards", func(t *testing.T) {
		product, err := adapter.ExtractAndVerify(ctx, page, "https://shop.test/product/no-price", types.GenderMen)
		require.NoError(t, err)
		assert.Nil(t, product)
	})

	t.Run("navigation failure", func(t *testing.T) {
		product, err := adapter.ExtractAndVerify(ctx, page, "https://shop.test/product/gone", types.GenderMen)
		assert.Nil(t, product)
		require.Error(t, err)
		assert.True(t, scrapeerrors.IsType(err, scrapeerrors.ErrorTypeNavigation))
		assert.Equal(t, 2, fetcher.Hits("https://shop.test/product/gone"))
	})
}

func TestGenericAdapter_ScrapeCategory(t *testing.T) {
	ctx := context.Background()
	fetcher := newSiteFetcher(fixtureSite())
	var reported []error
	opts := testOptions()
	opts.OnError = func(err error) { reported = append(reported, err) }
	adapter := NewGenericAdapter(testSpec(), testRegion, opts)
	page := newPage(t, fetcher)

	products, err := adapter.ScrapeCategory(ctx, page, types.GenderMen)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "Classic Tee", products[0].Name)
	assert.Equal(t, "Oxford Shirt", products[1].Name)
	assert.Equal(t, "shirts", products[1].Category)
	assert.True(t, products[1].Price.Equal(decimal.RequireFromString("39.99")))
	for _, product := range products {
		assert.True(t, utils.ContainsFold(product.Material, "cotton"))
	}
	assert.Empty(t, reported)
}

func TestGenericAdapter_ScrapeCategory_ReportsProductFailures(t *testing.T) {
	ctx := context.Background()
	site := fixtureSite()
	delete(site, "https://shop.test/product/oxford-shirt")
	var reported []error
	opts := testOptions()
	opts.OnError = func(err error) { reported = append(reported, err) }
	adapter := NewGenericAdapter(testSpec(), testRegion, opts)

	products, err := adapter.ScrapeCategory(ctx, newPage(t, newSiteFetcher(site)), types.GenderMen)
	require.NoError(t, err)
	assert.Len(t, products, 1)
	require.Len(t, reported, 1)
	assert.True(t, scrapeerrors.IsType(reported[0], scrapeerrors.ErrorTypeNavigation))
}

func TestGenericAdapter_ScrapeCategory_ListingFailure(t *testing.T) {
	adapter := NewGenericAdapter(testSpec(), testRegion, testOptions())

	products, err := adapter.ScrapeCategory(context.Background(), newPage(t, newSiteFetcher(map[string]string{})), types.GenderMen)
	assert.Nil(t, products)
	assert.True(t, scrapeerrors.IsType(err, scrapeerrors.ErrorTypeNavigation))
}

func TestHMAdapter_DiscoverLinks(t *testing.T) {
	ctx := context.Background()
	spec := types.RetailerSpec{Key: "hm", Name: "H&M", BaseURLs: map[string]string{"UK": "https://www2.hm.com/en_gb"}}
	adapter := NewHMAdapter(spec, testRegion, testOptions())

	page, err := utils.NewDocumentPageFromHTML("https://www2.hm.com/en_gb/men/products/view-all.html", `
<article data-testid="productTile"><a href="/en_gb/productpage.1234001.html">Tee</a></article>
<article data-testid="productTile"><a href="/en_gb/productpage.1234002.html?colour=2">Shirt</a></article>
<article data-testid="productTile"><a href="/en_gb/member/info">Members</a></article>
<div class="product-item"><a href="/en_gb/productpage.1234001.html">Tee</a></div>`)
	require.NoError(t, err)

	links, err := adapter.DiscoverLinks(ctx, page, "https://www2.hm.com/en_gb/men/products/view-all.html")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www2.hm.com/en_gb/productpage.1234001.html",
		"https://www2.hm.com/en_gb/productpage.1234002.html?colour=2",
	}, links)
}

func TestHMAdapter_ExtractMaterial(t *testing.T) {
	spec := types.RetailerSpec{Key: "hm", Name: "H&M", MaterialSelector: ".product-details-list"}
	adapter := NewHMAdapter(spec, testRegion, testOptions())

	page, err := utils.NewDocumentPageFromHTML("https://www2.hm.com/en_gb/productpage.1.html",
		`<dl class="product-details-list">
<dt>Composition</dt>
<dd>Cotton 100%</dd>
</dl>`)
	require.NoError(t, err)
	assert.Equal(t, "Composition Cotton 100%", adapter.ExtractMaterial(context.Background(), page))

	page, err = utils.NewDocumentPageFromHTML("https://www2.hm.com/en_gb/productpage.2.html",
		`<h1>Tee</h1><script>var pdp = {"composition": "cotton 100%"}</script>`)
	require.NoError(t, err)
	assert.Contains(t, adapter.ExtractMaterial(context.Background(), page), "cotton 100%")
}

func TestHMAdapter_LabelledComposition(t *testing.T) {
	adapter := NewHMAdapter(types.RetailerSpec{Key: "hm", Name: "H&M"}, testRegion, testOptions())

	page, err := utils.NewDocumentPageFromHTML("https://www2.hm.com/en_gb/productpage.3.html", `<h1>Tee</h1>
<div class="pdp">
<div class="info">
<h2>Description</h2>
<p>A soft tee. See material details below.</p>
</div>
<div class="info">
<h3>Composition</h3>
<p>Cotton 100%</p>
</div>
</div>`)
	require.NoError(t, err)

	assert.Equal(t, "Composition Cotton 100%", adapter.ExtractMaterial(context.Background(), page))
}

func TestHMAdapter_AbandonsCategoryWithoutListing(t *testing.T) {
	spec := types.RetailerSpec{
		Key:         "hm",
		Name:        "H&M",
		BaseURLs:    map[string]string{"UK": "https://www2.hm.com/en_gb"},
		SearchPaths: map[types.Gender]string{types.GenderMen: "/men/products/view-all.html"},
	}
	productURL := "https://www2.hm.com/en_gb/productpage.1234001.html"
	fetcher := newSiteFetcher(map[string]string{
		"https://www2.hm.com/en_gb/men/products/view-all.html": `<html><body>
<p>Something went wrong</p><a href="/en_gb/productpage.1234001.html">Recently viewed</a>
</body></html>`,
		productURL: productPage("Tee", "£9.99", "100% Cotton"),
	})
	adapter := NewHMAdapter(spec, testRegion, testOptions())

	products, err := adapter.ScrapeCategory(context.Background(), newPage(t, fetcher), types.GenderMen)

	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, 0, fetcher.Hits(productURL))
}

const asosListing = `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"ItemList","itemListElement":[
 {"@type":"ListItem","item":{"@type":"Product","name":"ASOS DESIGN oversized t-shirt","url":"https://www.asos.com/asos-design/tee/prd/1001","image":["https://images.asos-media.com/1001.jpg"],"offers":{"@type":"Offer","price":12,"priceCurrency":"GBP"}}},
 {"@type":"ListItem","item":{"@type":"Product","name":"ASOS DESIGN shirt","url":"/asos-design/shirt/prd/1002","image":"/1002.jpg","offers":[{"price":"28.00"}]}}
]}</script>
<script type="application/ld+json">not json</script>
</head><body>
<article data-auto-id="productTile"><a href="/asos-design/other/prd/9999">Ignored when structured data exists</a></article>
</body></html>`

func TestCollectProducts_NumericPrices(t *testing.T) {
	var data interface{}
	require.NoError(t, json.Unmarshal([]byte(`[
 {"@type":"Product","name":"Cashmere-feel coat","url":"/prd/1","offers":{"price":1250000}},
 {"@type":"Product","name":"Tee","url":"/prd/2","offers":{"price":12.5}}
]`), &data))

	listings := collectProducts(data)
	require.Len(t, listings, 2)
	assert.Equal(t, "1250000", listings[0].Price)
	assert.Equal(t, "12.5", listings[1].Price)

	price, ok := utils.ParsePrice(listings[0].Price)
	require.True(t, ok)
	assert.Equal(t, "1250000", price.String())
}

func TestASOSAdapter(t *testing.T) {
	ctx := context.Background()
	spec := types.RetailerSpec{Key: "asos", Name: "ASOS", BaseURLs: map[string]string{"UK": "https://www.asos.com"}}
	fetcher := newSiteFetcher(map[string]string{
		"https://www.asos.com/men/t-shirts-vests/cat/?cid=7616&refine=attribute_10992:100%25+Cotton": asosListing,
		"https://www.asos.com/asos-design/tee/prd/1001": `<h1>Page title</h1>
<div class="product-description">Main: 100% Cotton.</div>`,
		"https://www.asos.com/asos-design/shirt/prd/1002": `<h1>ASOS DESIGN shirt</h1>
<div class="product-description">Main: 60% Cotton, 40% Polyester.</div>`,
	})
	adapter := NewASOSAdapter(spec, testRegion, testOptions())

	assert.Equal(t, "https://www.asos.com/search/?q=100%25+cotton+kids", adapter.BuildCategoryURL("https://www.asos.com", types.GenderKids))

	products, err := adapter.ScrapeCategory(ctx, newPage(t, fetcher), types.GenderMen)
	require.NoError(t, err)
	require.Len(t, products, 1)

	product := products[0]
	assert.Equal(t, "ASOS DESIGN oversized t-shirt", product.Name)
	assert.True(t, product.Price.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, "https://images.asos-media.com/1001.jpg", product.ImageURL)
	assert.Equal(t, "t-shirts", product.Category)
	assert.Equal(t, 0, fetcher.Hits("https://www.asos.com/asos-design/other/prd/9999"))
	assert.Equal(t, 1, fetcher.Hits("https://www.asos.com/asos-design/shirt/prd/1002"))
}

func TestASOSAdapter_DOMFallback(t *testing.T) {
	ctx := context.Background()
	spec := types.RetailerSpec{Key: "asos", Name: "ASOS", BaseURLs: map[string]string{"UK": "https://www.asos.com"}}
	adapter := NewASOSAdapter(spec, testRegion, testOptions())

	page, err := utils.NewDocumentPageFromHTML("https://www.asos.com/women/tops/cat/", `
<article data-auto-id="productTile"><a href="/brand/top/prd/2001">Top</a></article>
<article data-auto-id="productTile"><a href="/women/new-in/cat/?cid=1">Not a product</a></article>`)
	require.NoError(t, err)

	links, err := adapter.DiscoverLinks(ctx, page, "https://www.asos.com/women/tops/cat/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.asos.com/brand/top/prd/2001"}, links)
}

func TestNew(t *testing.T) {
	opts := testOptions()

	assert.IsType(t, &HMAdapter{}, New(types.RetailerSpec{Key: "hm"}, testRegion, opts))
	assert.IsType(t, &ASOSAdapter{}, New(types.RetailerSpec{Key: "asos"}, testRegion, opts))
	assert.IsType(t, &GenericAdapter{}, New(types.RetailerSpec{Key: "zara"}, testRegion, opts))
	assert.True(t, IsSpecialised("hm"))
	assert.False(t, IsSpecialised("zara"))
}
