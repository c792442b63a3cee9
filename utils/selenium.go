package utils

import (
	"context"
	"fmt"
	"time"

	"cotton-extractor/internal/types"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
)

// SeleniumBrowser opens pages as sessions on a remote WebDriver endpoint
type SeleniumBrowser struct {
	config *types.Config
	logger types.Logger
	caps   selenium.Capabilities
}

// NewSeleniumBrowser prepares Chrome capabilities for the configured WebDriver URL
func NewSeleniumBrowser(config *types.Config, logger types.Logger) *SeleniumBrowser {
	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{
		Args: []string{
			"--headless=new",
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
			"--disable-gpu",
			"--window-size=1920,1080",
			fmt.Sprintf("--user-agent=%s", config.UserAgent),
		},
		ExcludeSwitches: []string{"enable-automation"},
	})

	return &SeleniumBrowser{config: config, logger: logger, caps: caps}
}

// NewPage starts a new WebDriver session
func (b *SeleniumBrowser) NewPage(ctx context.Context) (types.Page, error) {
	driver, err := selenium.NewRemote(b.caps, b.config.SeleniumURL)
	if err != nil {
		return nil, fmt.Errorf("error creating WebDriver: %w", err)
	}
	if err := driver.SetPageLoadTimeout(b.config.Timeout); err != nil {
		b.logger.Warnf("Failed to set page load timeout: %v", err)
	}
	return &SeleniumPage{driver: driver, logger: b.logger}, nil
}

// Close is a no-op; sessions are released by their pages
func (b *SeleniumBrowser) Close() error {
	return nil
}

// SeleniumPage is a types.Page backed by one WebDriver session
type SeleniumPage struct {
	driver selenium.WebDriver
	logger types.Logger
	url    string
}

func (p *SeleniumPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.driver.Get(url); err != nil {
		return fmt.Errorf("navigation error: %w", err)
	}
	p.url = url
	return nil
}

func (p *SeleniumPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	err := p.driver.WaitWithTimeout(func(wd selenium.WebDriver) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		elements, err := wd.FindElements(selenium.ByCSSSelector, selector)
		if err != nil {
			return false, nil
		}
		return len(elements) > 0, nil
	}, timeout)
	return err == nil
}

func (p *SeleniumPage) Query(ctx context.Context, selector string) ([]types.Element, error) {
	found, err := p.driver.FindElements(selenium.ByCSSSelector, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}

	elements := make([]types.Element, 0, len(found))
	for _, el := range found {
		elements = append(elements, el)
	}
	return elements, nil
}

func (p *SeleniumPage) Text(ctx context.Context, el types.Element) (string, error) {
	webElement, ok := el.(selenium.WebElement)
	if !ok {
		return "", fmt.Errorf("unexpected element type %T", el)
	}
	return webElement.Text()
}

func (p *SeleniumPage) Attribute(ctx context.Context, el types.Element, name string) (string, bool, error) {
	webElement, ok := el.(selenium.WebElement)
	if !ok {
		return "", false, fmt.Errorf("unexpected element type %T", el)
	}
	value, err := webElement.GetAttribute(name)
	if err != nil {
		// WebDriver reports a missing attribute as an error
		return "", false, nil
	}
	return value, true, nil
}

func (p *SeleniumPage) Click(ctx context.Context, el types.Element) error {
	webElement, ok := el.(selenium.WebElement)
	if !ok {
		return fmt.Errorf("unexpected element type %T", el)
	}
	return webElement.Click()
}

func (p *SeleniumPage) ScrollBy(ctx context.Context, pixels int) error {
	_, err := p.driver.ExecuteScript("window.scrollBy(0, arguments[0]);", []interface{}{pixels})
	return err
}

func (p *SeleniumPage) Content(ctx context.Context) (string, error) {
	html, err := p.driver.PageSource()
	if err != nil {
		return "", fmt.Errorf("page source error: %w", err)
	}
	return html, nil
}

func (p *SeleniumPage) URL() string {
	return p.url
}

func (p *SeleniumPage) Close() error {
	return p.driver.Quit()
}
