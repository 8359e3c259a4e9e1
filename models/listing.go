// Package models defines data structures for the price trend job.
package models

import "time"

// TimestampLayout is the format of SummaryRow timestamps in every sink.
const TimestampLayout = "2006-01-02 15:04:05"

// Credentials is the API key/secret pair. The zero value means absent.
type Credentials struct {
	Key    string
	Secret string
}

// Empty reports whether no usable credentials were loaded.
func (c Credentials) Empty() bool {
	return c.Key == "" && c.Secret == ""
}

// Listing is one element of a search response. Price and Size are nil when the
// API omitted them.
type Listing struct {
	PropertyCode string   `json:"propertyCode,omitempty"`
	Address      string   `json:"address,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Size         *float64 `json:"size,omitempty"`
}

// Location maps a human readable name to an idealista location identifier.
type Location struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}

// SummaryRow is the unit of persistence: one aggregated row per location and run.
type SummaryRow struct {
	Location       string    `csv:"location" json:"location"`
	Timestamp      time.Time `csv:"timestamp" json:"-"`
	AvgPricePerSqm float64   `csv:"avg_price_per_sqm" json:"avg_price_per_sqm"`
	NumFlats       int       `csv:"num_flats" json:"num_flats"`
}

// RunResult holds the overall result of a run. RequestCount, PageCount and
// ErrorsByType are filled from the API client once the run ends.
type RunResult struct {
	Rows             []*SummaryRow
	StartTime        time.Time
	EndTime          time.Time
	ListingCount     int
	RequestCount     int
	PageCount        int
	PartialLocations []string
	PersistFailures  []string
	ErrorsByType     map[string]int
}
