// Package pipeline turns fetched listings into persisted price trend rows.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aluiziolira/idealista-price-trends/models"
)

// Fetcher returns every listing for a location. On failure it may return the
// listings gathered before the error.
type Fetcher interface {
	Listings(ctx context.Context, token, locationID string) ([]models.Listing, error)
}

// Persister defines the interface for summary row output.
type Persister interface {
	Append(row *models.SummaryRow) error
	Close() error
	Validate() error
}

// SummaryObserver receives every row before it is persisted.
type SummaryObserver interface {
	ObserveSummary(row *models.SummaryRow)
}

// Pipeline runs fetch, aggregate and persist for each location in order.
type Pipeline struct {
	fetcher   Fetcher
	persister Persister
	observer  SummaryObserver

	// Out receives the per-location summary lines. Defaults to stdout.
	Out io.Writer
}

// New builds a pipeline. observer may be nil.
func New(fetcher Fetcher, persister Persister, observer SummaryObserver) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		persister: persister,
		observer:  observer,
		Out:       os.Stdout,
	}
}

// Run processes locations sequentially, stamping every row with timestamp.
// A fetch failure keeps the partial listings; a persist failure is recorded
// and the loop moves on. Only context cancellation stops the run early.
func (p *Pipeline) Run(ctx context.Context, token string, locations []models.Location, timestamp time.Time) (*models.RunResult, error) {
	result := &models.RunResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	defer func() {
		result.EndTime = time.Now()
	}()

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		listings, err := p.fetcher.Listings(ctx, token, loc.ID)
		if err != nil {
			if ctx.Err() != nil {
				return result, err
			}
			slog.Warn("fetch incomplete, using partial listings",
				slog.String("location", loc.Name),
				slog.Int("listings", len(listings)),
				slog.Any("error", err),
			)
			result.PartialLocations = append(result.PartialLocations, loc.Name)
			result.ErrorsByType["fetch"]++
		}
		result.ListingCount += len(listings)

		avg, count := Aggregate(listings)
		fmt.Fprintf(p.Out, "Total number of flats in %s: %d\n", loc.Name, count)
		fmt.Fprintf(p.Out, "Average price per square meter in %s: %.2f €/m²\n", loc.Name, avg)

		row := &models.SummaryRow{
			Location:       loc.Name,
			Timestamp:      timestamp,
			AvgPricePerSqm: avg,
			NumFlats:       count,
		}
		if p.observer != nil {
			p.observer.ObserveSummary(row)
		}

		if err := p.persister.Append(row); err != nil {
			slog.Error("persist summary row",
				slog.String("location", loc.Name),
				slog.Any("error", err),
			)
			result.PersistFailures = append(result.PersistFailures, loc.Name)
			result.ErrorsByType["persist"]++
			continue
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}
