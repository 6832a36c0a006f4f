// Package scraper holds the snapshot collectors. Each one pages through a
// search result source and returns unprocessed listings.
package scraper

import (
	"context"

	"laptop-price-tracker/models"
)

// Collector captures one snapshot of raw listings.
type Collector interface {
	Collect(ctx context.Context) ([]*models.RawListing, error)
}
