package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cotton-extractor/internal/types"
	"github.com/PuerkitoBio/goquery"
)

// Fetcher retrieves raw page bodies. HTTPClient satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// DocumentBrowser serves static pages parsed with goquery. Scripts are not
// executed, so clicks and scrolls have no effect.
type DocumentBrowser struct {
	fetcher Fetcher
	logger  types.Logger
}

// NewDocumentBrowser creates a browser backed by plain HTTP fetches
func NewDocumentBrowser(fetcher Fetcher, logger types.Logger) *DocumentBrowser {
	// Pages are loaded through NavigateWithRetry, which owns the retry ceiling
	if client, ok := fetcher.(*HTTPClient); ok {
		fetcher = client.WithoutRetries()
	}
	return &DocumentBrowser{fetcher: fetcher, logger: logger}
}

// NewPage returns an empty document page
func (b *DocumentBrowser) NewPage(ctx context.Context) (types.Page, error) {
	return &DocumentPage{fetcher: b.fetcher, logger: b.logger}, nil
}

// Close releases the fetcher when it owns resources
func (b *DocumentBrowser) Close() error {
	if closer, ok := b.fetcher.(interface{ Close() }); ok {
		closer.Close()
	}
	return nil
}

// DocumentPage is a types.Page over a parsed goquery document
type DocumentPage struct {
	fetcher Fetcher
	logger  types.Logger
	doc     *goquery.Document
	url     string
}

// NewDocumentPageFromHTML wraps already fetched markup
func NewDocumentPageFromHTML(pageURL, html string) (*DocumentPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return &DocumentPage{doc: doc, url: pageURL}, nil
}

func (p *DocumentPage) Navigate(ctx context.Context, url string) error {
	if p.fetcher == nil {
		return fmt.Errorf("no fetcher configured for %s", url)
	}

	body, err := p.fetcher.Get(ctx, url)
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to parse page: %w", err)
	}

	p.doc = doc
	p.url = url
	return nil
}

func (p *DocumentPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	return p.doc != nil && p.doc.Find(selector).Length() > 0
}

func (p *DocumentPage) Query(ctx context.Context, selector string) ([]types.Element, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}

	var elements []types.Element
	p.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		elements = append(elements, s)
	})
	return elements, nil
}

func (p *DocumentPage) Text(ctx context.Context, el types.Element) (string, error) {
	s, ok := el.(*goquery.Selection)
	if !ok {
		return "", fmt.Errorf("unexpected element type %T", el)
	}
	return s.Text(), nil
}

func (p *DocumentPage) Attribute(ctx context.Context, el types.Element, name string) (string, bool, error) {
	s, ok := el.(*goquery.Selection)
	if !ok {
		return "", false, fmt.Errorf("unexpected element type %T", el)
	}
	value, exists := s.Attr(name)
	return value, exists, nil
}

func (p *DocumentPage) Click(ctx context.Context, el types.Element) error {
	return nil
}

func (p *DocumentPage) ScrollBy(ctx context.Context, pixels int) error {
	return nil
}

func (p *DocumentPage) Content(ctx context.Context) (string, error) {
	if p.doc == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return p.doc.Html()
}

func (p *DocumentPage) URL() string {
	return p.url
}

func (p *DocumentPage) Close() error {
	p.doc = nil
	return nil
}
