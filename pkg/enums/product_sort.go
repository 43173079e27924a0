package enums

import (
	"fmt"
	"strings"
)

// ProductSort selects the ordering of the catalog listing.
type ProductSort string

const (
	ProductSortPriceAsc  ProductSort = "price_asc"
	ProductSortPriceDesc ProductSort = "price_desc"
	ProductSortNameAsc   ProductSort = "name_asc"
	ProductSortNameDesc  ProductSort = "name_desc"
)

// DefaultProductSort is used when no ordering is requested.
const DefaultProductSort = ProductSortPriceAsc

var validProductSorts = []ProductSort{
	ProductSortPriceAsc,
	ProductSortPriceDesc,
	ProductSortNameAsc,
	ProductSortNameDesc,
}

// String implements fmt.Stringer.
func (s ProductSort) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProductSort.
func (s ProductSort) IsValid() bool {
	for _, candidate := range validProductSorts {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProductSort converts raw input into a ProductSort, defaulting blanks.
func ParseProductSort(value string) (ProductSort, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return DefaultProductSort, nil
	}
	for _, candidate := range validProductSorts {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product sort %q", value)
}
