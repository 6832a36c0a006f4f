package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"laptop-price-tracker/models"
)

func TestBuildUpsert(t *testing.T) {
	batch := []models.Observation{
		observation("A1", "2024-01-01", 1000),
		observation("A1", "2024-01-08", 900),
	}

	query, args := buildUpsert(batch)

	width := len(historyColumns)
	assert.Len(t, args, 2*width)
	assert.Contains(t, query, "INSERT INTO observations (product_key, capture_date, title")
	assert.Contains(t, query, "ON CONFLICT (product_key, capture_date) DO UPDATE SET")
	assert.Contains(t, query, "price_stability = EXCLUDED.price_stability")
	assert.NotContains(t, query, "product_key = EXCLUDED.product_key")
	assert.Contains(t, query, "$1,")
	assert.True(t, strings.Contains(query, "$40)"), "last placeholder is $%d", 2*width)

	assert.Equal(t, "A1", args[0])
	assert.Equal(t, "2024-01-08", args[width+1])
}

func TestRowValuesMatchColumns(t *testing.T) {
	assert.Len(t, rowValues(observation("A1", "2024-01-01", 1)), len(historyColumns))
}
