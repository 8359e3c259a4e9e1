package pipeline

import (
	"github.com/aluiziolira/idealista-price-trends/models"
	"github.com/aluiziolira/idealista-price-trends/parser"
)

// Aggregate returns the mean price per square meter over every listing that
// has both a price and a strictly positive size, and how many were used.
// The average is 0 when no listing qualifies.
func Aggregate(listings []models.Listing) (avg float64, count int) {
	var total float64
	for _, l := range listings {
		ppa, ok := parser.PricePerArea(l)
		if !ok {
			continue
		}
		total += ppa
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return total / float64(count), count
}
