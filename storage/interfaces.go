package storage

import (
	"context"
	"errors"
	"sort"

	"laptop-price-tracker/models"
)

// TableName is the history table every backend writes to.
const TableName = "observations"

var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("storage: store closed")
	// ErrNestedExclusive is returned when Exclusive is called inside Exclusive.
	ErrNestedExclusive = errors.New("storage: nested exclusive access")
)

// HistoryStore is the durable table of observations keyed by product key and
// capture date.
type HistoryStore interface {
	// ReadAll returns every stored observation ordered by product key and
	// capture date. A store that was never written returns no rows and no error.
	ReadAll(ctx context.Context) ([]models.Observation, error)
	// Upsert inserts new keys and overwrites every non-key field of existing
	// ones. All rows land or none do.
	Upsert(ctx context.Context, rows []models.Observation) error
	// Exclusive runs fn with sole write access. The store passed to fn is bound
	// to one transaction that commits only if fn returns nil.
	Exclusive(ctx context.Context, fn func(tx HistoryStore) error) error
	Close() error
}

// dedupeLast keeps the last row per key, preserving first-seen order.
func dedupeLast(rows []models.Observation) []models.Observation {
	index := make(map[models.Key]int, len(rows))
	out := make([]models.Observation, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.Key()]; ok {
			out[i] = r
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}

func sortObservations(rows []models.Observation) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ProductKey != rows[j].ProductKey {
			return rows[i].ProductKey < rows[j].ProductKey
		}
		return rows[i].CaptureDate < rows[j].CaptureDate
	})
}
