package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"laptop-price-tracker/models"
)

// headerAliases maps accepted column names onto RawListing fields. Besides our
// own header it understands the column names of SerpAPI result exports.
var headerAliases = map[string]string{
	"asin":            "asin",
	"title":           "title",
	"link":            "link",
	"link_clean":      "link",
	"thumbnail":       "thumbnail",
	"raw_price":       "price",
	"extracted_price": "price",
	"price":           "price",
	"rating":          "rating",
	"reviews":         "reviews",
	"delivery":        "delivery",
	"specs":           "specs",
	"source":          "source",
	"scraped_at":      "scraped_at",
	"scrape_date":     "scraped_at",
}

// ReadRawCSV loads a raw snapshot file written by CSVWriter or exported from
// SerpAPI. Unknown columns are ignored; rows with an unreadable timestamp keep
// a zero ScrapedAt and are left for the cleaner to judge.
func ReadRawCSV(path string) ([]*models.RawListing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := headerAliases[name]; ok {
			if _, taken := cols[field]; !taken {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["asin"]; !ok {
		return nil, fmt.Errorf("csv: %q has no asin column", path)
	}

	var listings []*models.RawListing
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}

		get := func(field string) string {
			if i, ok := cols[field]; ok && i < len(rec) {
				return rec[i]
			}
			return ""
		}

		listings = append(listings, &models.RawListing{
			ASIN:      get("asin"),
			Title:     get("title"),
			Link:      get("link"),
			Thumbnail: get("thumbnail"),
			RawPrice:  get("price"),
			Rating:    get("rating"),
			Reviews:   get("reviews"),
			Delivery:  get("delivery"),
			Specs:     get("specs"),
			Source:    get("source"),
			ScrapedAt: parseScrapedAt(get("scraped_at")),
		})
	}
	return listings, nil
}

func parseScrapedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if d, err := models.ParseDate(s); err == nil {
		return d.Time()
	}
	return time.Time{}
}
