package utils

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	priceNoisePattern   = regexp.MustCompile(`[£$€\s]`)
	decimalCommaPattern = regexp.MustCompile(`,\d{2}$`)
	priceNumberPattern  = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ParsePrice extracts the first number from a price label such as "£29.99",
// "€ 19,99" or "From £25". A trailing comma followed by two digits is read as
// a decimal separator, any other comma as a thousands separator.
// The bool result is false when the label holds no digits.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	cleaned := priceNoisePattern.ReplaceAllString(raw, "")
	if decimalCommaPattern.MatchString(cleaned) {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	match := priceNumberPattern.FindString(cleaned)
	if match == "" {
		return decimal.Zero, false
	}

	price, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}
