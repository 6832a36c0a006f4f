package services

import (
	"math"

	"github.com/montanaflynn/stats"

	"laptop-price-tracker/models"
)

// Decision policy. These are fixed, not derived from data.
const (
	// BuyNowDropPercent is the change (in percent) a price must fall below.
	BuyNowDropPercent = -5.0
	// BuyNowMinRating is the rating a product must exceed to be recommended.
	BuyNowMinRating = 3.2
	// StableThreshold is the price standard deviation, in price units, below
	// which a product counts as stable.
	StableThreshold = 5.0
)

// PriceStability returns the sample standard deviation of prices.
// Fewer than two prices, or a constant series, yield 0.
func PriceStability(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	constant := true
	for _, p := range prices[1:] {
		if p != prices[0] {
			constant = false
			break
		}
	}
	if constant {
		return 0
	}

	sd, err := stats.StandardDeviationSample(prices)
	if err != nil || math.IsNaN(sd) || math.IsInf(sd, 0) {
		return 0
	}
	return sd
}

// StabilityLabel classifies a price standard deviation.
func StabilityLabel(stability float64) string {
	if stability < StableThreshold {
		return models.LabelStable
	}
	return models.LabelUnstable
}

// BuyNow reports whether a price change and rating justify a purchase.
// An unknown change or rating never does.
func BuyNow(changePercent, rating *float64) bool {
	if changePercent == nil || rating == nil {
		return false
	}
	return *changePercent < BuyNowDropPercent && *rating > BuyNowMinRating
}
