package models

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Stability labels.
const (
	LabelStable   = "Stable"
	LabelUnstable = "Unstable"
)

// Date is a calendar date in YYYY-MM-DD form. Lexical order is chronological.
type Date string

var dateLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
}

// ParseDate coerces s into a Date, dropping any time-of-day component.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return "", fmt.Errorf("unrecognised date %q", s)
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// Time returns midnight UTC of d. The zero time is returned for an invalid date.
func (d Date) Time() time.Time {
	t, _ := time.Parse(dateLayout, string(d))
	return t
}

func (d Date) String() string { return string(d) }

// Key identifies one observation: a product on a calendar day.
type Key struct {
	ProductKey  string
	CaptureDate Date
}

// Observation is one row of price history together with its derived analytics.
type Observation struct {
	ProductKey  string   `json:"product_key"`
	CaptureDate Date     `json:"capture_date"`
	Price       *float64 `json:"price"`
	Rating      *float64 `json:"rating"`
	ReviewCount *int64   `json:"review_count"`
	Details

	PreviousPrice       *float64 `json:"previous_price"`
	PreviousCaptureDate Date     `json:"previous_capture_date"`
	PriceDifference     *float64 `json:"price_difference"`
	PriceChangePercent  *float64 `json:"price_change_percent"`
	BuyNow              bool     `json:"buy_now"`
	PriceStability      float64  `json:"price_stability"`
	StabilityLabel      string   `json:"stability_label"`
}

// Key returns the uniqueness key of o.
func (o *Observation) Key() Key {
	return Key{ProductKey: o.ProductKey, CaptureDate: o.CaptureDate}
}

// Clone returns a copy of o that shares no pointers with it.
func (o Observation) Clone() Observation {
	c := o
	c.Price = cloneFloat(o.Price)
	c.Rating = cloneFloat(o.Rating)
	c.PreviousPrice = cloneFloat(o.PreviousPrice)
	c.PriceDifference = cloneFloat(o.PriceDifference)
	c.PriceChangePercent = cloneFloat(o.PriceChangePercent)
	if o.ReviewCount != nil {
		c.ReviewCount = Int(*o.ReviewCount)
	}
	return c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return Float(*p)
}
