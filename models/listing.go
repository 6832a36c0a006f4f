package models

import "time"

// RawListing holds one unprocessed search result exactly as the collector saw it.
// This is written to CSV before any cleaning or transformation.
type RawListing struct {
	ASIN      string
	Title     string
	Link      string
	Thumbnail string
	RawPrice  string
	Rating    string
	Reviews   string
	Delivery  string
	Specs     string
	Source    string
	ScrapedAt time.Time
}

// Details are the descriptive fields carried from the snapshot into history
// unchanged. None of them take part in analytics.
type Details struct {
	Title           string `json:"title"`
	Link            string `json:"link"`
	Thumbnail       string `json:"thumbnail"`
	Delivery        string `json:"delivery"`
	DisplaySize     string `json:"display_size"`
	MemorySize      string `json:"memory_size"`
	StorageSize     string `json:"storage_size"`
	OperatingSystem string `json:"operating_system"`
}

// Item is a cleaned snapshot row: typed numerics, filled categoricals.
// CaptureDate is kept as supplied; the merge engine coerces it.
type Item struct {
	ProductKey  string
	CaptureDate string
	Price       *float64
	Rating      *float64
	ReviewCount *int64
	Details
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }
