package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"laptop-price-tracker/models"
	"laptop-price-tracker/storage"
	"laptop-price-tracker/utils"
)

// MergeEngine folds cleaned snapshots into the price history and derives the
// per-row analytics.
type MergeEngine struct {
	logger *utils.Logger
	now    func() time.Time
}

// NewMergeEngine creates a MergeEngine with the given logger.
func NewMergeEngine(logger *utils.Logger) *MergeEngine {
	return &MergeEngine{logger: logger, now: time.Now}
}

// Run merges snapshot into store under the store's exclusive write access.
// Either every enriched row lands or, on error, none do.
func (e *MergeEngine) Run(ctx context.Context, store storage.HistoryStore, snapshot []models.Item) (*models.MergeReport, error) {
	started := e.now()
	report := &models.MergeReport{
		RunID:        uuid.NewString(),
		StartedAt:    started,
		SnapshotRows: len(snapshot),
	}

	e.logger.Info("[merge] Run %s: merging %d snapshot rows", report.RunID, len(snapshot))

	err := store.Exclusive(ctx, func(tx storage.HistoryStore) error {
		existing, err := tx.ReadAll(ctx)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		report.HistoryRows = len(existing)

		rows, dropped := e.Merge(existing, snapshot)
		report.Dropped = dropped
		report.Written = len(rows)
		report.Products = countProducts(rows)

		if err := tx.Upsert(ctx, rows); err != nil {
			return fmt.Errorf("upsert history: %w", err)
		}
		return nil
	})

	report.Accepted = len(snapshot)
	for _, d := range report.Dropped {
		if d.Index >= 0 {
			report.Accepted--
		}
	}
	report.Duration = e.now().Sub(started)

	if err != nil {
		report.Written = 0
		e.logger.Error("[merge] Run %s failed, history left unchanged: %v", report.RunID, err)
		return report, fmt.Errorf("merge: run %s: %w", report.RunID, err)
	}

	e.logger.Info("[merge] Run %s: %d accepted, %d dropped, %d rows written for %d products",
		report.RunID, report.Accepted, len(report.Dropped), report.Written, report.Products)
	return report, nil
}

// Merge combines existing history with a snapshot and returns the complete,
// enriched history ordered by product key and capture date, plus the rows it
// had to exclude. It does no I/O.
//
// Snapshot rows win over history rows for the same product and date, and a
// later snapshot row wins over an earlier one.
func (e *MergeEngine) Merge(existing []models.Observation, snapshot []models.Item) ([]models.Observation, []models.DroppedRow) {
	var dropped []models.DroppedRow
	rows := make([]models.Observation, 0, len(existing)+len(snapshot))
	index := make(map[models.Key]int, len(existing)+len(snapshot))

	put := func(o models.Observation) {
		if i, ok := index[o.Key()]; ok {
			rows[i] = o
			return
		}
		index[o.Key()] = len(rows)
		rows = append(rows, o)
	}

	for i, h := range existing {
		date, err := models.ParseDate(string(h.CaptureDate))
		if err != nil {
			e.logger.Warn("[merge] Skipping history row %d (%s): %v", i, h.ProductKey, err)
			dropped = append(dropped, models.DroppedRow{Index: -1, ProductKey: h.ProductKey, Reason: "history: " + err.Error()})
			continue
		}
		o := h.Clone()
		o.CaptureDate = date
		put(o)
	}

	for i, item := range snapshot {
		o, err := observationFromItem(item)
		if err != nil {
			e.logger.Warn("[merge] Dropping snapshot row %d (%s): %v", i, item.ProductKey, err)
			dropped = append(dropped, models.DroppedRow{Index: i, ProductKey: item.ProductKey, Reason: err.Error()})
			continue
		}
		put(o)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ProductKey != rows[j].ProductKey {
			return rows[i].ProductKey < rows[j].ProductKey
		}
		return rows[i].CaptureDate < rows[j].CaptureDate
	})

	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].ProductKey == rows[start].ProductKey {
			end++
		}
		enrichProduct(rows[start:end])
		start = end
	}

	return rows, dropped
}

// enrichProduct fills the derived fields of one product's chronologically
// ordered observations.
func enrichProduct(group []models.Observation) {
	prices := make([]float64, 0, len(group))

	for i := range group {
		o := &group[i]
		if i == 0 {
			o.PreviousPrice = copyFloat(o.Price)
			o.PreviousCaptureDate = o.CaptureDate
			o.PriceDifference = models.Float(0)
			o.PriceChangePercent = models.Float(0)
		} else {
			prev := &group[i-1]
			o.PreviousPrice = copyFloat(prev.Price)
			o.PreviousCaptureDate = prev.CaptureDate
			o.PriceDifference, o.PriceChangePercent = priceChange(o.Price, o.PreviousPrice)
		}
		o.BuyNow = BuyNow(o.PriceChangePercent, o.Rating)

		if o.Price != nil {
			prices = append(prices, *o.Price)
		}
	}

	stability := PriceStability(prices)
	label := StabilityLabel(stability)
	for i := range group {
		group[i].PriceStability = stability
		group[i].StabilityLabel = label
	}
}

// priceChange returns the absolute and percent change from previous to current.
// The percent is nil when previous is zero; both are nil when either price is unknown.
func priceChange(current, previous *float64) (diff, pct *float64) {
	if current == nil || previous == nil {
		return nil, nil
	}
	d := *current - *previous
	if *previous == 0 {
		return &d, nil
	}
	p := d / *previous * 100
	return &d, &p
}

func observationFromItem(item models.Item) (models.Observation, error) {
	key := strings.TrimSpace(item.ProductKey)
	if key == "" {
		return models.Observation{}, fmt.Errorf("missing product key")
	}
	date, err := models.ParseDate(item.CaptureDate)
	if err != nil {
		return models.Observation{}, fmt.Errorf("bad capture date: %w", err)
	}
	if item.Price != nil && (!validNumber(*item.Price) || *item.Price < 0) {
		return models.Observation{}, fmt.Errorf("invalid price %v", *item.Price)
	}
	if item.Rating != nil && (!validNumber(*item.Rating) || *item.Rating < 0 || *item.Rating > 5) {
		return models.Observation{}, fmt.Errorf("invalid rating %v", *item.Rating)
	}
	if item.ReviewCount != nil && *item.ReviewCount < 0 {
		return models.Observation{}, fmt.Errorf("invalid review count %d", *item.ReviewCount)
	}

	o := models.Observation{
		ProductKey:  key,
		CaptureDate: date,
		Price:       copyFloat(item.Price),
		Rating:      copyFloat(item.Rating),
		Details:     item.Details,
	}
	if item.ReviewCount != nil {
		o.ReviewCount = models.Int(*item.ReviewCount)
	}
	return o, nil
}

func validNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return models.Float(*p)
}

func countProducts(rows []models.Observation) int {
	n := 0
	for i := range rows {
		if i == 0 || rows[i].ProductKey != rows[i-1].ProductKey {
			n++
		}
	}
	return n
}
