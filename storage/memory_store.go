package storage

import (
	"context"
	"sync"

	"laptop-price-tracker/models"
)

// MemoryStore keeps history in process memory. It backs dry runs and tests.
type MemoryStore struct {
	writeMu sync.Mutex

	mu     sync.RWMutex
	rows   map[models.Key]models.Observation
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[models.Key]models.Observation)}
}

func (m *MemoryStore) ReadAll(_ context.Context) ([]models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	return snapshotRows(m.rows), nil
}

func (m *MemoryStore) Upsert(ctx context.Context, rows []models.Observation) error {
	return m.Exclusive(ctx, func(tx HistoryStore) error {
		return tx.Upsert(ctx, rows)
	})
}

// Exclusive stages writes on a private copy and swaps it in when fn succeeds.
func (m *MemoryStore) Exclusive(_ context.Context, fn func(tx HistoryStore) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStoreClosed
	}
	staged := make(map[models.Key]models.Observation, len(m.rows))
	for k, v := range m.rows {
		staged[k] = v.Clone()
	}
	m.mu.RUnlock()

	if err := fn(&memoryTx{rows: staged}); err != nil {
		return err
	}

	m.mu.Lock()
	m.rows = staged
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memoryTx struct {
	rows map[models.Key]models.Observation
}

func (t *memoryTx) ReadAll(_ context.Context) ([]models.Observation, error) {
	return snapshotRows(t.rows), nil
}

func (t *memoryTx) Upsert(_ context.Context, rows []models.Observation) error {
	for _, r := range rows {
		t.rows[r.Key()] = r.Clone()
	}
	return nil
}

func (t *memoryTx) Exclusive(context.Context, func(HistoryStore) error) error {
	return ErrNestedExclusive
}

func (t *memoryTx) Close() error { return nil }

func snapshotRows(src map[models.Key]models.Observation) []models.Observation {
	out := make([]models.Observation, 0, len(src))
	for _, r := range src {
		out = append(out, r.Clone())
	}
	sortObservations(out)
	return out
}
