package utils

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"cotton-extractor/internal/types"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// BrowserClient provides headless Chrome pages through chromedp
type BrowserClient struct {
	config        *types.Config
	logger        types.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowserClient starts a headless Chrome instance
func NewBrowserClient(ctx context.Context, config *types.Config, logger types.Logger) (*BrowserClient, error) {
	// Suppress chromedp debug logging
	log.SetOutput(io.Discard)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(config.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Running an empty task list launches the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debug("Headless browser started")
	return &BrowserClient{
		config:        config,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewPage opens a new tab
func (b *BrowserClient) NewPage(ctx context.Context) (types.Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &ChromePage{ctx: tabCtx, cancel: cancel, config: b.config, logger: b.logger}, nil
}

// Close shuts the browser down
func (b *BrowserClient) Close() error {
	b.browserCancel()
	b.allocCancel()
	return nil
}

// ChromePage is a types.Page backed by one Chrome tab
type ChromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *types.Config
	logger types.Logger
	url    string
}

// run executes actions in the tab, bounded by the caller's context and the
// configured timeout
func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.config.Timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	p.url = url
	return nil
}

func (p *ChromePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	return p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)) == nil
}

func (p *ChromePage) Query(ctx context.Context, selector string) ([]types.Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, p.config.Timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}

	elements := make([]types.Element, 0, len(nodes))
	for _, node := range nodes {
		elements = append(elements, node)
	}
	return elements, nil
}

func (p *ChromePage) Text(ctx context.Context, el types.Element) (string, error) {
	node, ok := el.(*cdp.Node)
	if !ok {
		return "", fmt.Errorf("unexpected element type %T", el)
	}

	var text string
	if err := p.run(ctx, p.config.Timeout, chromedp.TextContent([]cdp.NodeID{node.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return text, nil
}

func (p *ChromePage) Attribute(ctx context.Context, el types.Element, name string) (string, bool, error) {
	node, ok := el.(*cdp.Node)
	if !ok {
		return "", false, fmt.Errorf("unexpected element type %T", el)
	}
	value, exists := node.Attribute(name)
	return value, exists, nil
}

func (p *ChromePage) Click(ctx context.Context, el types.Element) error {
	node, ok := el.(*cdp.Node)
	if !ok {
		return fmt.Errorf("unexpected element type %T", el)
	}
	if err := p.run(ctx, p.config.Timeout, chromedp.MouseClickNode(node)); err != nil {
		return fmt.Errorf("failed to click: %w", err)
	}
	return nil
}

func (p *ChromePage) ScrollBy(ctx context.Context, pixels int) error {
	var offset float64
	script := fmt.Sprintf("window.scrollBy(0, %d); window.scrollY", pixels)
	if err := p.run(ctx, p.config.Timeout, chromedp.Evaluate(script, &offset)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (p *ChromePage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.config.Timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	p.logger.Debugf("Retrieved page content from %s (%d bytes)", p.url, len(html))
	return html, nil
}

func (p *ChromePage) URL() string {
	return p.url
}

func (p *ChromePage) Close() error {
	p.cancel()
	return nil
}
