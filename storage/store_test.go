package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laptop-price-tracker/models"
	"laptop-price-tracker/utils"
)

func observation(key string, date models.Date, price float64) models.Observation {
	return models.Observation{
		ProductKey:          key,
		CaptureDate:         date,
		Price:               models.Float(price),
		Rating:              models.Float(4.4),
		ReviewCount:         models.Int(120),
		Details:             models.Details{Title: "Laptop " + key, OperatingSystem: "Windows 11 Home"},
		PreviousPrice:       models.Float(price),
		PreviousCaptureDate: date,
		PriceDifference:     models.Float(0),
		PriceChangePercent:  models.Float(0),
		StabilityLabel:      models.LabelStable,
	}
}

// backends returns every store the contract tests run against.
func backends(t *testing.T) map[string]func(t *testing.T) HistoryStore {
	stores := map[string]func(t *testing.T) HistoryStore{
		"memory": func(t *testing.T) HistoryStore { return NewMemoryStore() },
		"sqlite": func(t *testing.T) HistoryStore {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"), utils.Discard())
			require.NoError(t, err)
			return s
		},
	}
	if dsn := os.Getenv("PRICEWATCH_TEST_POSTGRES_DSN"); dsn != "" {
		stores["postgres"] = func(t *testing.T) HistoryStore {
			s, err := NewPostgresStore(dsn, utils.Discard())
			require.NoError(t, err)
			_, err = s.db.Exec("TRUNCATE " + TableName)
			require.NoError(t, err)
			return s
		}
	}
	return stores
}

func TestHistoryStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("empty store reads nothing", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				rows, err := s.ReadAll(ctx)
				require.NoError(t, err)
				assert.Empty(t, rows)
			})

			t.Run("upsert inserts then overwrites", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				require.NoError(t, s.Upsert(ctx, []models.Observation{
					observation("B2", "2024-01-01", 500),
					observation("A1", "2024-01-08", 900),
					observation("A1", "2024-01-01", 1000),
				}))

				updated := observation("A1", "2024-01-08", 850)
				updated.BuyNow = true
				updated.PriceChangePercent = nil
				updated.Title = "Renamed"
				require.NoError(t, s.Upsert(ctx, []models.Observation{updated}))

				rows, err := s.ReadAll(ctx)
				require.NoError(t, err)
				require.Len(t, rows, 3)

				assert.Equal(t, models.Key{ProductKey: "A1", CaptureDate: "2024-01-01"}, rows[0].Key())
				assert.Equal(t, models.Key{ProductKey: "A1", CaptureDate: "2024-01-08"}, rows[1].Key())
				assert.Equal(t, models.Key{ProductKey: "B2", CaptureDate: "2024-01-01"}, rows[2].Key())

				assert.Equal(t, 850.0, *rows[1].Price)
				assert.True(t, rows[1].BuyNow)
				assert.Nil(t, rows[1].PriceChangePercent)
				assert.Equal(t, "Renamed", rows[1].Title)
				assert.Equal(t, "Windows 11 Home", rows[1].OperatingSystem)
				assert.Equal(t, int64(120), *rows[1].ReviewCount)
			})

			t.Run("duplicate keys in one call keep the last", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				require.NoError(t, s.Upsert(ctx, []models.Observation{
					observation("A1", "2024-01-01", 1000),
					observation("A1", "2024-01-01", 950),
				}))

				rows, err := s.ReadAll(ctx)
				require.NoError(t, err)
				require.Len(t, rows, 1)
				assert.Equal(t, 950.0, *rows[0].Price)
			})

			t.Run("failed exclusive leaves history untouched", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				require.NoError(t, s.Upsert(ctx, []models.Observation{observation("A1", "2024-01-01", 1000)}))

				boom := errors.New("boom")
				err := s.Exclusive(ctx, func(tx HistoryStore) error {
					require.NoError(t, tx.Upsert(ctx, []models.Observation{
						observation("A1", "2024-01-01", 1),
						observation("C3", "2024-01-02", 2),
					}))
					return boom
				})
				assert.ErrorIs(t, err, boom)

				rows, err := s.ReadAll(ctx)
				require.NoError(t, err)
				require.Len(t, rows, 1)
				assert.Equal(t, 1000.0, *rows[0].Price)
			})

			t.Run("exclusive commits and sees its own writes", func(t *testing.T) {
				s := open(t)
				defer s.Close()

				err := s.Exclusive(ctx, func(tx HistoryStore) error {
					if err := tx.Upsert(ctx, []models.Observation{observation("A1", "2024-01-01", 1000)}); err != nil {
						return err
					}
					rows, err := tx.ReadAll(ctx)
					if err != nil {
						return err
					}
					assert.Len(t, rows, 1)
					assert.ErrorIs(t, tx.Exclusive(ctx, func(HistoryStore) error { return nil }), ErrNestedExclusive)
					return nil
				})
				require.NoError(t, err)

				rows, err := s.ReadAll(ctx)
				require.NoError(t, err)
				assert.Len(t, rows, 1)
			})
		})
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.ReadAll(context.Background())
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Upsert(context.Background(), nil), ErrStoreClosed)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, []models.Observation{observation("A1", "2024-01-01", 1000)}))

	rows, err := s.ReadAll(ctx)
	require.NoError(t, err)
	*rows[0].Price = 1

	again, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, *again[0].Price)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "oracle"}, utils.Discard())
	assert.Error(t, err)
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(Options{Driver: "memory"}, utils.Discard())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
