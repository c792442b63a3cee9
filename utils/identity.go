package utils

import "github.com/google/uuid"

// ProductID derives the deduplication key for a product from its retailer and URL
func ProductID(source, productURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+":"+productURL)).String()
}
