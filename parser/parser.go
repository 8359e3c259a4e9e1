package parser

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aluiziolira/idealista-price-trends/models"
)

// ValidateLocation ensures a configured location has a name and an id.
func ValidateLocation(loc models.Location) error {
	if strings.TrimSpace(loc.Name) == "" {
		return fmt.Errorf("location missing name")
	}
	if strings.TrimSpace(loc.ID) == "" {
		return fmt.Errorf("location %s missing id", loc.Name)
	}
	if strings.ContainsFunc(loc.ID, unicode.IsSpace) {
		return fmt.Errorf("location %s id %q contains whitespace", loc.Name, loc.ID)
	}
	return nil
}

// PricePerArea returns price/size for listings that carry both fields and a
// strictly positive size.
func PricePerArea(l models.Listing) (float64, bool) {
	if l.Price == nil || l.Size == nil {
		return 0, false
	}
	if *l.Size <= 0 {
		return 0, false
	}
	return *l.Price / *l.Size, true
}

// NormalizeText trims the value and collapses internal whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
