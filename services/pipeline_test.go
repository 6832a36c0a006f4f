package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laptop-price-tracker/models"
	"laptop-price-tracker/storage"
)

type stubCollector struct {
	listings []*models.RawListing
	err      error
}

func (s stubCollector) Collect(context.Context) ([]*models.RawListing, error) {
	return s.listings, s.err
}

func rawListing(asin, price, rating string, at time.Time) *models.RawListing {
	return &models.RawListing{
		ASIN:      asin,
		Title:     "Laptop " + asin,
		RawPrice:  price,
		Rating:    rating,
		Reviews:   "100",
		Specs:     `{"ram": "16 GB"}`,
		Source:    "test",
		ScrapedAt: at,
	}
}

func TestPipelineRunAcrossTwoSnapshots(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	csvPath := filepath.Join(t.TempDir(), "raw.csv")

	day1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	p := NewPipeline(stubCollector{listings: []*models.RawListing{
		rawListing("b0a", "$1,000.00", "4.0 out of 5 stars", day1),
		rawListing("B0B", "$500.00", "4.8", day1),
	}}, store, csvPath, newTestLogger())

	first, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.RawListings)
	assert.Equal(t, 2, first.Merge.Written)
	assert.Equal(t, 0, first.Insights.BuyNowProducts)
	assert.FileExists(t, csvPath)

	day2 := day1.AddDate(0, 0, 7)
	p.collector = stubCollector{listings: []*models.RawListing{
		rawListing("B0A", "$900.00", "3.5", day2),
		rawListing("", "$10.00", "4", day2),
	}}

	second, err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, second.CleanDropped, 1)
	assert.Equal(t, "missing ASIN", second.CleanDropped[0].Reason)
	assert.Equal(t, 3, second.Merge.Written)
	assert.Equal(t, 1, second.Insights.BuyNowProducts)

	rows, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	latest := rows[1]
	assert.Equal(t, "B0A", latest.ProductKey)
	assert.Equal(t, models.Date("2024-01-08"), latest.CaptureDate)
	assert.InDelta(t, -10.0, *latest.PriceChangePercent, 1e-9)
	assert.True(t, latest.BuyNow)
	assert.Equal(t, "16 GB", latest.MemorySize)
}

func TestPipelineMergeFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	csvPath := filepath.Join(t.TempDir(), "raw.csv")
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	w, err := storage.NewCSVWriter(csvPath)
	require.NoError(t, err)
	require.NoError(t, w.WriteRaw([]*models.RawListing{rawListing("B0C", "799", "4.1", at)}))
	require.NoError(t, w.Close())

	store := storage.NewMemoryStore()
	result, err := NewPipeline(nil, store, "", newTestLogger()).MergeFile(ctx, csvPath)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Merge.Written)

	rows, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.Date("2024-02-01"), rows[0].CaptureDate)
	assert.Equal(t, 799.0, *rows[0].Price)
}

func TestPipelineKeepsUnpricedListing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	result, err := NewPipeline(stubCollector{listings: []*models.RawListing{
		rawListing("B0E", "", "4.2", at),
		rawListing("B0F", "$650.00", "4.0", at),
	}}, store, "", newTestLogger()).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Merge.Dropped)
	assert.Equal(t, 2, result.Merge.Written)

	rows, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B0E", rows[0].ProductKey)
	assert.Nil(t, rows[0].Price)
	assert.False(t, rows[0].BuyNow)
}

func TestPipelineStampsMissingCaptureDate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := NewPipeline(stubCollector{listings: []*models.RawListing{
		rawListing("B0D", "100", "4", time.Time{}),
	}}, store, "", newTestLogger())
	p.now = func() time.Time { return time.Date(2024, 5, 5, 23, 0, 0, 0, time.UTC) }

	_, err := p.Run(ctx)
	require.NoError(t, err)

	rows, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.Date("2024-05-05"), rows[0].CaptureDate)
}

func TestPipelineErrors(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, err := NewPipeline(nil, store, "", newTestLogger()).Run(ctx)
	assert.ErrorIs(t, err, ErrNoCollector)

	boom := errors.New("quota exceeded")
	_, err = NewPipeline(stubCollector{err: boom}, store, "", newTestLogger()).Run(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = NewPipeline(stubCollector{}, store, "", newTestLogger()).Run(ctx)
	assert.Error(t, err)

	result, err := NewPipeline(stubCollector{listings: []*models.RawListing{
		rawListing("", "100", "4", time.Now()),
	}}, store, "", newTestLogger()).Run(ctx)
	require.Error(t, err)
	assert.Len(t, result.CleanDropped, 1)

	rows, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
