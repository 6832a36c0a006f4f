package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"laptop-price-tracker/models"
)

func TestPriceStability(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single point", []float64{999.99}, 0},
		{"constant", []float64{749.99, 749.99, 749.99, 749.99}, 0},
		{"two points", []float64{1000, 900}, math.Sqrt(5000)},
		{"sample not population", []float64{2, 4, 4, 4, 5, 5, 7, 9}, math.Sqrt(32.0 / 7.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PriceStability(tt.prices), 1e-9)
		})
	}
}

func TestStabilityLabel(t *testing.T) {
	assert.Equal(t, models.LabelStable, StabilityLabel(0))
	assert.Equal(t, models.LabelStable, StabilityLabel(4.999))
	assert.Equal(t, models.LabelUnstable, StabilityLabel(5))
	assert.Equal(t, models.LabelUnstable, StabilityLabel(70.7))
}

func TestBuyNow(t *testing.T) {
	tests := []struct {
		name   string
		pct    *float64
		rating *float64
		want   bool
	}{
		{"sharp drop good rating", models.Float(-10), models.Float(3.5), true},
		{"exactly -5 is not enough", models.Float(-5), models.Float(4.8), false},
		{"rating at threshold", models.Float(-20), models.Float(3.2), false},
		{"price rise", models.Float(12), models.Float(4.9), false},
		{"unknown change", nil, models.Float(4.9), false},
		{"unknown rating", models.Float(-30), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuyNow(tt.pct, tt.rating))
		})
	}
}
