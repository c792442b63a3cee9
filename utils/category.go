package utils

import "strings"

// CategoryOther is returned when no taxonomy keyword matches
const CategoryOther = "other"

type categoryKeywords struct {
	category string
	keywords []string
}

var categoryTable = []categoryKeywords{
	{"t-shirts", []string{"t-shirt", "tee", "tshirt"}},
	{"shirts", []string{"shirt", "blouse", "button-up"}},
	{"jeans", []string{"jeans", "denim"}},
	{"trousers", []string{"trousers", "pants", "chinos", "slacks"}},
	{"dresses", []string{"dress"}},
	{"skirts", []string{"skirt"}},
	{"shorts", []string{"shorts"}},
	{"sweaters", []string{"sweater", "jumper", "pullover", "knit"}},
	{"hoodies", []string{"hoodie", "sweatshirt"}},
	{"jackets", []string{"jacket", "coat", "blazer"}},
	{"underwear", []string{"underwear", "briefs", "boxers", "panties", "bra"}},
	{"socks", []string{"socks", "sock"}},
	{"activewear", []string{"joggers", "leggings", "sports", "gym", "athletic"}},
}

// CategorizeProduct returns the first taxonomy category whose keyword appears
// in the product name or URL, or CategoryOther
func CategorizeProduct(name, productURL string) string {
	text := strings.ToLower(name + " " + productURL)
	for _, entry := range categoryTable {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				return entry.category
			}
		}
	}
	return CategoryOther
}
