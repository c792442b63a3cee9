package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"cotton-extractor/internal/types"
	scrapeerrors "cotton-extractor/pkg/errors"
	"github.com/spf13/viper"
)

//go:embed retailers.yaml
var defaultCatalog []byte

type regionEntry struct {
	Currency       string   `mapstructure:"currency"`
	CurrencySymbol string   `mapstructure:"currency_symbol"`
	Retailers      []string `mapstructure:"retailers"`
}

type retailerEntry struct {
	Name                   string            `mapstructure:"name"`
	BaseURLs               map[string]string `mapstructure:"base_urls"`
	SearchPaths            map[string]string `mapstructure:"search_paths"`
	MaterialFilter         string            `mapstructure:"material_filter"`
	SupportsMaterialFilter bool              `mapstructure:"supports_material_filter"`
	MaterialSelector       string            `mapstructure:"material_selector"`
}

type catalogFile struct {
	Regions   map[string]regionEntry   `mapstructure:"regions"`
	Retailers map[string]retailerEntry `mapstructure:"retailers"`
}

// Catalog is the read-only region and retailer table
type Catalog struct {
	regions   map[string]types.Region
	retailers map[string]types.RetailerSpec
}

// LoadCatalog reads the catalog from path, or the built-in table when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in table
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in retailer catalog is invalid: %v", err))
	}
	return catalog
}

// ParseCatalog decodes a YAML catalog document
func ParseCatalog(data []byte) (*Catalog, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("error parsing catalog: %w", err)
	}

	var raw catalogFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unable to decode catalog: %w", err)
	}

	catalog := &Catalog{
		regions:   make(map[string]types.Region),
		retailers: make(map[string]types.RetailerSpec),
	}

	// viper lower-cases keys; region codes are upper-case everywhere else
	for key, entry := range raw.Retailers {
		spec := types.RetailerSpec{
			Key:                    key,
			Name:                   entry.Name,
			BaseURLs:               make(map[string]string),
			SearchPaths:            make(map[types.Gender]string),
			MaterialFilter:         entry.MaterialFilter,
			SupportsMaterialFilter: entry.SupportsMaterialFilter,
			MaterialSelector:       entry.MaterialSelector,
		}
		if spec.Name == "" {
			spec.Name = key
		}
		for region, baseURL := range entry.BaseURLs {
			spec.BaseURLs[strings.ToUpper(region)] = strings.TrimRight(baseURL, "/")
		}
		for gender, path := range entry.SearchPaths {
			spec.SearchPaths[types.Gender(strings.ToLower(gender))] = path
		}
		catalog.retailers[key] = spec
	}

	for code, entry := range raw.Regions {
		code = strings.ToUpper(code)
		for _, key := range entry.Retailers {
			if _, ok := catalog.retailers[key]; !ok {
				return nil, fmt.Errorf("region %s lists unknown retailer %q", code, key)
			}
		}
		catalog.regions[code] = types.Region{
			Code:           code,
			Currency:       entry.Currency,
			CurrencySymbol: entry.CurrencySymbol,
			Retailers:      entry.Retailers,
		}
	}

	if len(catalog.regions) == 0 {
		return nil, fmt.Errorf("catalog defines no regions")
	}
	return catalog, nil
}

// RegionCodes returns the configured region codes in sorted order
func (c *Catalog) RegionCodes() []string {
	codes := make([]string, 0, len(c.regions))
	for code := range c.regions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Region returns the region with the given code
func (c *Catalog) Region(code string) (types.Region, error) {
	region, ok := c.regions[strings.ToUpper(code)]
	if !ok {
		return types.Region{}, fmt.Errorf("%w: %s", scrapeerrors.ErrUnknownRegion, code)
	}
	return region, nil
}

// Retailer returns the retailer with the given key
func (c *Catalog) Retailer(key string) (types.RetailerSpec, error) {
	spec, ok := c.retailers[strings.ToLower(key)]
	if !ok {
		return types.RetailerSpec{}, fmt.Errorf("%w: %s", scrapeerrors.ErrUnknownRetailer, key)
	}
	return spec, nil
}

// Keys returns every retailer key in sorted order
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.retailers))
	for key := range c.retailers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// AvailableIn reports whether the retailer has a base URL for the region
func (c *Catalog) AvailableIn(key, region string) bool {
	spec, ok := c.retailers[strings.ToLower(key)]
	if !ok {
		return false
	}
	_, ok = spec.BaseURLs[strings.ToUpper(region)]
	return ok
}

// BaseURL returns the retailer's base URL for the region
func (c *Catalog) BaseURL(key, region string) (string, error) {
	spec, err := c.Retailer(key)
	if err != nil {
		return "", err
	}
	baseURL, ok := spec.BaseURLs[strings.ToUpper(region)]
	if !ok || baseURL == "" {
		return "", fmt.Errorf("%w: %s in %s", scrapeerrors.ErrRegionUnsupported, key, region)
	}
	return baseURL, nil
}

// RetailersFor returns the region's member retailers that have a base URL there,
// in the order the region lists them
func (c *Catalog) RetailersFor(code string) ([]types.RetailerSpec, error) {
	region, err := c.Region(code)
	if err != nil {
		return nil, err
	}

	var specs []types.RetailerSpec
	for _, key := range region.Retailers {
		if c.AvailableIn(key, region.Code) {
			specs = append(specs, c.retailers[key])
		}
	}
	return specs, nil
}
