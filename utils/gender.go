package utils

import (
	"strings"

	"cotton-extractor/internal/types"
)

type genderSynonyms struct {
	gender   types.Gender
	synonyms []string
}

// Women is evaluated first: "women" and "female" contain the men synonyms
// "men" and "male" as substrings.
var genderTable = []genderSynonyms{
	{types.GenderWomen, []string{"women", "female", "womens", "ladies", "her"}},
	{types.GenderMen, []string{"men", "male", "mens", "him"}},
	{types.GenderKids, []string{"kids", "children", "boys", "girls", "baby", "toddler", "infant"}},
}

// NormalizeGender maps a free-text audience label to a canonical gender.
// The bool result is false when no synonym matches.
func NormalizeGender(label string) (types.Gender, bool) {
	text := strings.ToLower(strings.TrimSpace(label))
	if text == "" {
		return "", false
	}

	for _, entry := range genderTable {
		for _, synonym := range entry.synonyms {
			if strings.Contains(text, synonym) {
				return entry.gender, true
			}
		}
	}
	return "", false
}
