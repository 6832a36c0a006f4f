package models

import "time"

// DroppedRow records a snapshot or history row excluded from a merge.
type DroppedRow struct {
	Index      int    `json:"index"`
	ProductKey string `json:"product_key"`
	Reason     string `json:"reason"`
}

// MergeReport summarises one merge run.
type MergeReport struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	SnapshotRows int           `json:"snapshot_rows"`
	HistoryRows  int           `json:"history_rows"`
	Accepted     int           `json:"accepted"`
	Dropped      []DroppedRow  `json:"dropped"`
	Written      int           `json:"written"`
	Products     int           `json:"products"`
	Duration     time.Duration `json:"duration"`
}

// PriceMove is a single product's change on its latest capture date.
type PriceMove struct {
	ProductKey    string  `json:"product_key"`
	Title         string  `json:"title"`
	CaptureDate   Date    `json:"capture_date"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Stability     float64 `json:"price_stability"`
	BuyNow        bool    `json:"buy_now"`
}

// InsightReport holds the computed analytics over the stored history.
type InsightReport struct {
	Products         int         `json:"products"`
	Observations     int         `json:"observations"`
	LatestDate       Date        `json:"latest_date"`
	BuyNowProducts   int         `json:"buy_now_products"`
	StableProducts   int         `json:"stable_products"`
	UnstableProducts int         `json:"unstable_products"`
	AverageLatest    float64     `json:"average_latest_price"`
	TopDrops         []PriceMove `json:"top_drops"`
	MostVolatile     []PriceMove `json:"most_volatile"`
}
