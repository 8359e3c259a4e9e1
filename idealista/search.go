package idealista

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/idealista-price-trends/models"
)

type searchResponse struct {
	ElementList []models.Listing `json:"elementList"`
	TotalPages  *int             `json:"totalPages"`
	ActualPage  int              `json:"actualPage"`
	Total       int              `json:"total"`
}

// Listings pages through the search endpoint for locationID, starting at
// page 1. It stops on an empty elementList or once page >= totalPages. On a
// transport or decode failure the listings gathered so far are returned
// together with the error.
func (c *Client) Listings(ctx context.Context, token, locationID string) ([]models.Listing, error) {
	seen, err := c.newDedupe()
	if err != nil {
		return nil, err
	}

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	hdr.Set("Content-Type", "application/json")

	var all []models.Listing
	for page := 1; ; page++ {
		resp, err := c.post(ctx, phaseSearch, c.searchURL(locationID, page), nil, hdr)
		if err != nil {
			slog.Error("search request failed",
				slog.String("location_id", locationID),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			return all, err
		}

		var data searchResponse
		if err := json.Unmarshal(resp.body, &data); err != nil {
			slog.Error("error decoding search response",
				slog.String("location_id", locationID),
				slog.Int("page", page),
				slog.Int("status", resp.status),
				slog.Any("error", err),
			)
			decodeErr := fmt.Errorf("%w: page %d (HTTP status code: %d): %v", ErrListingsDecode, page, resp.status, err)
			c.recordError(decodeErr)
			return all, decodeErr
		}

		totalPages := 1
		if data.TotalPages != nil {
			totalPages = *data.TotalPages
		}
		if len(data.ElementList) == 0 {
			break
		}

		atomic.AddInt64(&c.pageCount, 1)
		c.Metrics.AddListings(len(data.ElementList))
		all = c.appendListings(all, data.ElementList, seen)
		fmt.Fprintf(c.Progress, "Fetched page %d of %d, total listings so far: %d\n", page, totalPages, len(all))

		if page >= totalPages {
			break
		}
	}
	return all, nil
}

func (c *Client) searchURL(locationID string, page int) string {
	q := url.Values{}
	q.Set("country", c.cfg.Country)
	q.Set("operation", c.cfg.Operation)
	q.Set("propertyType", c.cfg.PropertyType)
	q.Set("locationId", locationID)
	q.Set("maxItems", strconv.Itoa(c.cfg.MaxItems))
	q.Set("numPage", strconv.Itoa(page))
	return c.cfg.SearchURL + "?" + q.Encode()
}

// newDedupe returns nil when de-duplication is disabled.
func (c *Client) newDedupe() (*lru.Cache[string, struct{}], error) {
	if c.cfg.DedupeMaxSize <= 0 {
		return nil, nil
	}
	cache, err := lru.New[string, struct{}](c.cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return cache, nil
}

func (c *Client) appendListings(all, page []models.Listing, seen *lru.Cache[string, struct{}]) []models.Listing {
	if seen == nil {
		return append(all, page...)
	}
	for _, l := range page {
		if l.PropertyCode != "" {
			if found, _ := seen.ContainsOrAdd(l.PropertyCode, struct{}{}); found {
				c.Metrics.IncDuplicate()
				continue
			}
		}
		all = append(all, l)
	}
	return all
}
