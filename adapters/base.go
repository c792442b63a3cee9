package adapters

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"cotton-extractor/internal/types"
	scrapeerrors "cotton-extractor/pkg/errors"
	"cotton-extractor/services/cache"
	"cotton-extractor/utils"
	"github.com/shopspring/decimal"
)

// scrollStep is the distance scrolled per lazy-load step, about one viewport
const scrollStep = 1080

// maxMatchedElements bounds how many matches of one selector are read
const maxMatchedElements = 5

// Disclosure is a control that reveals hidden composition text when clicked.
// The first element matching Selector whose text contains Label is used.
type Disclosure struct {
	Selector string
	Label    string
}

// Selectors groups the ordered cascades a retailer's pages are searched with
type Selectors struct {
	ListingReady       []string
	Links              []string
	LinkFilter         func(link string) bool
	Material           []string
	// LabelledMaterial finds composition blocks by their heading text
	LabelledMaterial   []Disclosure
	DisclosureMaterial []string
	Disclosures        []Disclosure
	MaterialPatterns   []*regexp.Regexp
	Name               []string
	Price              []string
	Image              []string
	Color              []string
	Sizes              []string
	MaxProducts        int
	// RequireListing abandons a category whose ListingReady tiles never render
	RequireListing     bool
}

// Listing carries product fields already known from a listing page
type Listing struct {
	Name     string
	Price    string
	ImageURL string
}

// Options carries the collaborators every adapter is built with
type Options struct {
	Config     *types.Config
	Logger     types.Logger
	Rejections *cache.Rejections
	// OnError receives non-fatal failures such as product pages that could not be loaded
	OnError func(err error)
}

// BaseAdapter provides the shared heuristic cascades retailer adapters build on.
// Concrete adapters embed it and pass themselves to RunCategory so their
// overrides take part in the category loop.
type BaseAdapter struct {
	spec       types.RetailerSpec
	region     types.Region
	selectors  Selectors
	config     *types.Config
	logger     types.Logger
	rejections *cache.Rejections
	onError    func(err error)
}

// NewBaseAdapter creates a base adapter for one retailer in one region
func NewBaseAdapter(spec types.RetailerSpec, region types.Region, selectors Selectors, opts Options) *BaseAdapter {
	config := opts.Config
	if config == nil {
		config = types.DefaultConfig()
	}

	if spec.MaterialSelector != "" {
		selectors.Material = append([]string{spec.MaterialSelector}, selectors.Material...)
	}
	if len(selectors.DisclosureMaterial) == 0 {
		selectors.DisclosureMaterial = firstN(selectors.Material, 10)
	}

	return &BaseAdapter{
		spec:       spec,
		region:     region,
		selectors:  selectors,
		config:     config,
		logger:     opts.Logger,
		rejections: opts.Rejections,
		onError:    opts.OnError,
	}
}

// Key returns the retailer identifier
func (b *BaseAdapter) Key() string {
	return b.spec.Key
}

// Name returns the retailer display name
func (b *BaseAdapter) Name() string {
	return b.spec.Name
}

// ResolveBaseURL returns the retailer's base URL for the region
func (b *BaseAdapter) ResolveBaseURL(region string) (string, error) {
	baseURL, ok := b.spec.BaseURLs[strings.ToUpper(region)]
	if !ok || baseURL == "" {
		return "", scrapeerrors.NewConfiguration(b.spec.Key, "no base URL for region "+region, scrapeerrors.ErrRegionUnsupported)
	}
	return baseURL, nil
}

// BuildCategoryURL joins the gender's search path onto the base URL, falling
// back to a site search for cotton products when no path is configured
func (b *BaseAdapter) BuildCategoryURL(baseURL string, gender types.Gender) string {
	path, ok := b.spec.SearchPaths[gender]
	if !ok || path == "" {
		return fmt.Sprintf("%s/search?q=100%%25+cotton+%s", baseURL, gender)
	}

	categoryURL := baseURL + path
	if b.spec.SupportsMaterialFilter && b.spec.MaterialFilter != "" {
		separator := "?"
		if strings.Contains(categoryURL, "?") {
			separator = "&"
		}
		categoryURL += separator + b.spec.MaterialFilter
	}
	return categoryURL
}

// DiscoverLinks collects product URLs from the loaded listing page
func (b *BaseAdapter) DiscoverLinks(ctx context.Context, page types.Page, baseURL string) ([]string, error) {
	return b.CollectLinks(ctx, page, baseURL, b.selectors.Links, b.selectors.LinkFilter)
}

// CollectLinks applies every selector in order and accumulates the resolved
// hrefs, first seen first kept, up to config.MaxLinks
func (b *BaseAdapter) CollectLinks(ctx context.Context, page types.Page, baseURL string, selectors []string, filter func(string) bool) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	var links []string
	for _, selector := range selectors {
		elements, err := page.Query(ctx, selector)
		if err != nil {
			b.logger.Debugf("Link selector %s failed: %v", selector, err)
			continue
		}

		for _, el := range elements {
			href, ok, err := page.Attribute(ctx, el, "href")
			if err != nil || !ok {
				continue
			}

			link, ok := ResolveProductLink(base, href)
			if !ok {
				continue
			}
			if filter != nil && !filter(link) {
				continue
			}
			links = append(links, link)
		}

		links = b.RemoveDuplicateURLs(links)
		if len(links) >= b.config.MaxLinks {
			break
		}
	}

	links = b.RemoveDuplicateURLs(links)
	if len(links) > b.config.MaxLinks {
		links = links[:b.config.MaxLinks]
	}
	return links, nil
}

var nonProductPathParts = []string{"cart", "wishlist", "account", "login", "basket"}

// ResolveProductLink turns an href into an absolute product URL. It rejects
// non-navigational hrefs, bare fragments and known non-product paths, and
// strips any fragment.
func ResolveProductLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""

	path := strings.ToLower(resolved.Path)
	for _, part := range nonProductPathParts {
		if strings.Contains(path, part) {
			return "", false
		}
	}

	return resolved.String(), true
}

// RemoveDuplicateURLs removes duplicate URLs from the slice, keeping first occurrences
func (b *BaseAdapter) RemoveDuplicateURLs(urls []string) []string {
	seen := make(map[string]bool)
	var uniqueURLs []string

	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			uniqueURLs = append(uniqueURLs, u)
		}
	}

	return uniqueURLs
}

// ExtractMaterial returns the composition text of the loaded product page,
// trying selectors, then disclosure controls, then a full-page pattern search
func (b *BaseAdapter) ExtractMaterial(ctx context.Context, page types.Page) string {
	if material := b.findMaterial(ctx, page, b.selectors.Material); material != "" {
		return material
	}
	if material := b.labelledMaterial(ctx, page); material != "" {
		return material
	}

	if material := b.discloseMaterial(ctx, page); material != "" {
		return material
	}

	return b.searchMaterial(ctx, page)
}

// findMaterial returns the first matched element text mentioning cotton
func (b *BaseAdapter) findMaterial(ctx context.Context, page types.Page, selectors []string) string {
	for _, selector := range selectors {
		elements, err := page.Query(ctx, selector)
		if err != nil {
			continue
		}

		for _, el := range firstN(elements, maxMatchedElements) {
			text, err := page.Text(ctx, el)
			if err != nil {
				continue
			}
			text = utils.CleanText(text)
			if utils.ContainsFold(text, "cotton") {
				b.logger.Debugf("Material found via %s", selector)
				return text
			}
		}
	}
	return ""
}

// labelledMaterial returns the smallest block that carries one of the labels and
// mentions cotton, so a heading's own section wins over its page wrappers
func (b *BaseAdapter) labelledMaterial(ctx context.Context, page types.Page) string {
	for _, labelled := range b.selectors.LabelledMaterial {
		elements, err := page.Query(ctx, labelled.Selector)
		if err != nil {
			continue
		}

		best := ""
		for _, el := range elements {
			text, err := page.Text(ctx, el)
			if err != nil {
				continue
			}
			text = utils.CleanText(text)
			if !utils.ContainsFold(text, labelled.Label) || !utils.ContainsFold(text, "cotton") {
				continue
			}
			if best == "" || len(text) < len(best) {
				best = text
			}
		}
		if best != "" {
			b.logger.Debugf("Material found under %q", labelled.Label)
			return best
		}
	}
	return ""
}

// discloseMaterial clicks the first disclosure control found and searches again
func (b *BaseAdapter) discloseMaterial(ctx context.Context, page types.Page) string {
	for _, disclosure := range b.selectors.Disclosures {
		control := b.findLabelled(ctx, page, disclosure)
		if control == nil {
			continue
		}

		if err := page.Click(ctx, control); err != nil {
			b.logger.Debugf("Disclosure click on %s failed: %v", disclosure.Selector, err)
			continue
		}
		if err := utils.Sleep(ctx, b.config.DisclosureDelay); err != nil {
			return ""
		}
		return b.findMaterial(ctx, page, b.selectors.DisclosureMaterial)
	}
	return ""
}

func (b *BaseAdapter) findLabelled(ctx context.Context, page types.Page, disclosure Disclosure) types.Element {
	elements, err := page.Query(ctx, disclosure.Selector)
	if err != nil {
		return nil
	}
	for _, el := range elements {
		text, err := page.Text(ctx, el)
		if err == nil && utils.ContainsFold(text, disclosure.Label) {
			return el
		}
	}
	return nil
}

// searchMaterial scans the full page markup for composition patterns
func (b *BaseAdapter) searchMaterial(ctx context.Context, page types.Page) string {
	content, err := page.Content(ctx)
	if err != nil {
		b.logger.Debugf("Could not read page content: %v", err)
		return ""
	}
	content = strings.ToLower(content)

	for _, pattern := range b.selectors.MaterialPatterns {
		match := pattern.FindStringSubmatch(content)
		if match == nil {
			continue
		}
		text := match[0]
		if len(match) > 1 {
			text = match[len(match)-1]
		}
		if text = utils.CleanText(text); text != "" {
			return text
		}
	}
	return ""
}

// FirstText returns the first non-empty element text across the selectors
func (b *BaseAdapter) FirstText(ctx context.Context, page types.Page, selectors []string) string {
	for _, selector := range selectors {
		elements, err := page.Query(ctx, selector)
		if err != nil {
			continue
		}
		for _, el := range firstN(elements, maxMatchedElements) {
			text, err := page.Text(ctx, el)
			if err == nil {
				if text = utils.CleanText(text); text != "" {
					return text
				}
			}
		}
	}
	return ""
}

// FirstAttribute returns the first non-empty value of any of attrs across the selectors
func (b *BaseAdapter) FirstAttribute(ctx context.Context, page types.Page, selectors []string, attrs ...string) string {
	for _, selector := range selectors {
		elements, err := page.Query(ctx, selector)
		if err != nil {
			continue
		}
		for _, el := range firstN(elements, maxMatchedElements) {
			for _, attr := range attrs {
				value, ok, err := page.Attribute(ctx, el, attr)
				if err == nil && ok && strings.TrimSpace(value) != "" {
					return strings.TrimSpace(value)
				}
			}
		}
	}
	return ""
}

// FirstPrice returns the first parseable price across the selectors
func (b *BaseAdapter) FirstPrice(ctx context.Context, page types.Page, selectors []string) (decimal.Decimal, bool) {
	for _, selector := range selectors {
		elements, err := page.Query(ctx, selector)
		if err != nil {
			continue
		}
		for _, el := range firstN(elements, maxMatchedElements) {
			text, err := page.Text(ctx, el)
			if err != nil {
				continue
			}
			if price, ok := utils.ParsePrice(text); ok {
				return price, true
			}
		}
	}
	return decimal.Zero, false
}

// Sizes returns the labels of the first selector that yields any, skipping
// "select a size" placeholders
func (b *BaseAdapter) Sizes(ctx context.Context, page types.Page, selectors []string) []string {
	for _, selector := range selectors {
		elements, err := page.Query(ctx, selector)
		if err != nil {
			continue
		}

		var sizes []string
		seen := make(map[string]bool)
		for _, el := range elements {
			text, err := page.Text(ctx, el)
			if err != nil {
				continue
			}
			text = utils.CleanText(text)
			if text == "" || utils.ContainsFold(text, "select") || seen[text] {
				continue
			}
			seen[text] = true
			sizes = append(sizes, text)
		}
		if len(sizes) > 0 {
			return sizes
		}
	}
	return []string{}
}

// ExtractAndVerify loads the product page and builds the product when it passes the cotton gate
func (b *BaseAdapter) ExtractAndVerify(ctx context.Context, page types.Page, productURL string, gender types.Gender) (*types.Product, error) {
	return b.VerifyProduct(ctx, page, productURL, gender, b.ExtractMaterial, Listing{})
}

// VerifyProduct is the shared product pipeline: load, extract material, gate
// on cotton, resolve the mandatory name and price, then the optional fields.
// A nil product with a nil error means the product was discarded.
func (b *BaseAdapter) VerifyProduct(ctx context.Context, page types.Page, productURL string, gender types.Gender,
	extractMaterial func(context.Context, types.Page) string, listing Listing) (*types.Product, error) {
	productID := utils.ProductID(b.spec.Key, productURL)
	if b.rejections.Seen(productID) {
		b.logger.Debugf("Skipping previously rejected product %s", productURL)
		return nil, nil
	}

	if err := utils.NavigateWithRetry(ctx, page, productURL, b.config, b.logger); err != nil {
		return nil, scrapeerrors.NewNavigation(b.spec.Key, productURL, err)
	}
	page.WaitFor(ctx, "h1", b.config.WaitTimeout)

	material := extractMaterial(ctx, page)
	if !utils.IsCotton(material) {
		b.logger.Debugf("Rejected %s (material %q)", productURL, material)
		if err := b.rejections.Remember(productID); err != nil {
			b.logger.Debugf("Could not cache rejection: %v", err)
		}
		return nil, nil
	}

	name := utils.CleanText(listing.Name)
	if name == "" {
		name = b.FirstText(ctx, page, b.selectors.Name)
	}
	if name == "" {
		b.logger.Debug(scrapeerrors.NewMalformed(b.spec.Key, productURL, "name"))
		return nil, nil
	}

	price, ok := utils.ParsePrice(listing.Price)
	if !ok {
		price, ok = b.FirstPrice(ctx, page, b.selectors.Price)
	}
	if !ok {
		b.logger.Debug(scrapeerrors.NewMalformed(b.spec.Key, productURL, "price"))
		return nil, nil
	}

	imageURL := listing.ImageURL
	if imageURL == "" {
		imageURL = b.FirstAttribute(ctx, page, b.selectors.Image, "src", "data-src", "content")
	}

	product := b.NewProduct(ProductFields{
		Name:     name,
		Price:    price,
		URL:      productURL,
		ImageURL: absoluteURL(productURL, imageURL),
		Gender:   gender,
		Material: material,
		Color:    b.FirstText(ctx, page, b.selectors.Color),
		Sizes:    b.Sizes(ctx, page, b.selectors.Sizes),
	})
	return &product, nil
}

// ProductFields are the extracted values a product is built from
type ProductFields struct {
	Name     string
	Price    decimal.Decimal
	URL      string
	ImageURL string
	Gender   types.Gender
	Material string
	Color    string
	Sizes    []string
}

// NewProduct builds the canonical product record for this retailer and region
func (b *BaseAdapter) NewProduct(fields ProductFields) types.Product {
	gender := fields.Gender
	if normalized, ok := utils.NormalizeGender(string(gender)); ok {
		gender = normalized
	}

	sizes := fields.Sizes
	if sizes == nil {
		sizes = []string{}
	}

	name := utils.CleanText(fields.Name)
	return types.Product{
		ID:             utils.ProductID(b.spec.Key, fields.URL),
		Name:           name,
		Brand:          b.spec.Name,
		Price:          fields.Price,
		Currency:       b.region.Currency,
		CurrencySymbol: b.region.CurrencySymbol,
		URL:            fields.URL,
		ImageURL:       fields.ImageURL,
		Gender:         gender,
		Category:       utils.CategorizeProduct(name, fields.URL),
		Material:       utils.CleanText(fields.Material),
		Color:          utils.CleanText(fields.Color),
		Sizes:          sizes,
		Source:         b.spec.Key,
		Region:         b.region.Code,
		ScrapedAt:      time.Now(),
	}
}

// RunCategory drives discovery and verification for one gender through
// adapter, so that adapter overrides of the individual steps are honoured
func (b *BaseAdapter) RunCategory(ctx context.Context, page types.Page, gender types.Gender, adapter types.RetailerAdapter) ([]types.Product, error) {
	baseURL, err := adapter.ResolveBaseURL(b.region.Code)
	if err != nil {
		return nil, err
	}

	categoryURL := adapter.BuildCategoryURL(baseURL, gender)
	b.logger.Infof("[%s] Loading %s listing: %s", b.spec.Key, gender, categoryURL)

	if err := utils.NavigateWithRetry(ctx, page, categoryURL, b.config, b.logger); err != nil {
		return nil, scrapeerrors.NewNavigation(b.spec.Key, categoryURL, err)
	}
	if !b.loadListing(ctx, page) && b.selectors.RequireListing {
		b.logger.Warnf("[%s] Could not find product listings on %s", b.spec.Key, categoryURL)
		return []types.Product{}, nil
	}

	links, err := adapter.DiscoverLinks(ctx, page, categoryURL)
	if err != nil {
		return nil, scrapeerrors.NewExtraction(b.spec.Key, "link discovery failed on "+categoryURL, err)
	}

	limit := b.config.MaxProducts
	if b.selectors.MaxProducts > 0 && b.selectors.MaxProducts < limit {
		limit = b.selectors.MaxProducts
	}
	b.logger.Infof("[%s] Found %d product links, checking up to %d", b.spec.Key, len(links), limit)

	products := []types.Product{}
	for i, link := range firstN(links, limit) {
		if err := ctx.Err(); err != nil {
			return products, err
		}

		b.logger.Debugf("[%s] Checking product %d/%d: %s", b.spec.Key, i+1, min(len(links), limit), link)
		product, err := adapter.ExtractAndVerify(ctx, page, link, gender)
		if err != nil {
			b.logger.Warnf("[%s] %v", b.spec.Key, err)
			b.report(err)
		} else if product != nil {
			products = append(products, *product)
		}

		if err := utils.Pause(ctx, b.config); err != nil {
			return products, err
		}
	}

	b.logger.Infof("[%s] Found %d 100%% cotton %s products", b.spec.Key, len(products), gender)
	return products, nil
}

// loadListing waits for the listing to render and scrolls to trigger lazy
// loading. It reports whether a ListingReady selector matched; with none
// configured the listing counts as ready.
func (b *BaseAdapter) loadListing(ctx context.Context, page types.Page) bool {
	ready := len(b.selectors.ListingReady) == 0
	for _, selector := range b.selectors.ListingReady {
		if page.WaitFor(ctx, selector, b.config.WaitTimeout) {
			ready = true
			break
		}
	}
	if !ready && b.selectors.RequireListing {
		return false
	}
	if utils.Sleep(ctx, b.config.SettleDelay) != nil {
		return ready
	}

	for i := 0; i < b.config.ScrollCount; i++ {
		if err := page.ScrollBy(ctx, scrollStep); err != nil {
			b.logger.Debugf("Scroll failed: %v", err)
			return ready
		}
		if utils.Sleep(ctx, b.config.SettleDelay/3) != nil {
			return ready
		}
	}
	return ready
}

func (b *BaseAdapter) report(err error) {
	if b.onError != nil {
		b.onError(err)
	}
}

// absoluteURL resolves ref against pageURL; unresolvable references yield ""
func absoluteURL(pageURL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func firstN[T any](items []T, n int) []T {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}
