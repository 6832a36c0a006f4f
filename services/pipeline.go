package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"laptop-price-tracker/models"
	"laptop-price-tracker/scraper"
	"laptop-price-tracker/storage"
	"laptop-price-tracker/utils"
)

// ErrNoCollector is returned by Run when the pipeline was built without a collector.
var ErrNoCollector = errors.New("pipeline: no collector configured")

// RunResult describes one end-to-end pipeline pass.
type RunResult struct {
	RawListings  int
	Cleaned      int
	CleanDropped []models.DroppedRow
	Merge        *models.MergeReport
	Insights     *models.InsightReport
}

// Pipeline wires collection, cleaning, merging and reporting together.
type Pipeline struct {
	collector  scraper.Collector
	store      storage.HistoryStore
	cleaner    *Cleaner
	engine     *MergeEngine
	insights   *InsightService
	rawCSVPath string
	logger     *utils.Logger
	now        func() time.Time
}

// NewPipeline creates a Pipeline over store. collector may be nil when only
// MergeFile is used; rawCSVPath may be empty to skip the raw snapshot file.
func NewPipeline(collector scraper.Collector, store storage.HistoryStore, rawCSVPath string, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		collector:  collector,
		store:      store,
		cleaner:    NewCleaner(logger),
		engine:     NewMergeEngine(logger),
		insights:   NewInsightService(logger),
		rawCSVPath: rawCSVPath,
		logger:     logger,
		now:        time.Now,
	}
}

// Run collects a fresh snapshot, saves it raw, then cleans and merges it.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	if p.collector == nil {
		return nil, ErrNoCollector
	}

	raw, err := p.collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: collect: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("pipeline: no listings were collected")
	}
	p.logger.Info("[pipeline] Collected %d raw listings", len(raw))

	if p.rawCSVPath != "" {
		if err := p.writeRaw(raw); err != nil {
			p.logger.Error("[pipeline] Raw snapshot not saved: %v", err)
		} else {
			p.logger.Info("[pipeline] Raw listings saved to %s", p.rawCSVPath)
		}
	}

	return p.ingest(ctx, raw)
}

// MergeFile re-ingests a raw snapshot CSV written by an earlier run or exported
// from SerpAPI.
func (p *Pipeline) MergeFile(ctx context.Context, path string) (*RunResult, error) {
	raw, err := storage.ReadRawCSV(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.logger.Info("[pipeline] Loaded %d raw listings from %s", len(raw), path)
	return p.ingest(ctx, raw)
}

func (p *Pipeline) writeRaw(raw []*models.RawListing) error {
	w, err := storage.NewCSVWriter(p.rawCSVPath)
	if err != nil {
		return err
	}
	if err := w.WriteRaw(raw); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (p *Pipeline) ingest(ctx context.Context, raw []*models.RawListing) (*RunResult, error) {
	result := &RunResult{RawListings: len(raw)}

	items, dropped := p.cleaner.Clean(raw)
	result.Cleaned = len(items)
	result.CleanDropped = dropped
	if len(items) == 0 {
		return result, fmt.Errorf("pipeline: all %d listings were dropped during cleaning", len(raw))
	}

	// Listings without a scrape time are captured today.
	today := string(models.DateOf(p.now()))
	for i := range items {
		if items[i].CaptureDate == "" {
			items[i].CaptureDate = today
		}
	}

	report, err := p.engine.Run(ctx, p.store, items)
	result.Merge = report
	if err != nil {
		return result, err
	}

	rows, err := p.store.ReadAll(ctx)
	if err != nil {
		return result, fmt.Errorf("pipeline: read history: %w", err)
	}
	result.Insights = p.insights.Generate(rows)
	return result, nil
}
