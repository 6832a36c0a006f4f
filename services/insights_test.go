package services

import (
	"math"
	"testing"

	"laptop-price-tracker/models"
)

func sampleHistory(t *testing.T) []models.Observation {
	t.Helper()
	rows, dropped := newEngine().Merge(nil, []models.Item{
		item("A", "2024-01-01", 1000, 4.5),
		item("A", "2024-01-08", 900, 4.5),
		item("B", "2024-01-01", 500, 2.0),
		item("B", "2024-01-08", 450, 2.0),
		item("C", "2024-01-01", 300, 4.0),
		item("C", "2024-01-08", 300, 4.0),
		item("D", "2024-01-08", 200, 4.0),
	})
	if len(dropped) != 0 {
		t.Fatalf("unexpected drops: %+v", dropped)
	}
	return rows
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleHistory(t))
	if r.Products != 4 {
		t.Errorf("Products: got %d, want 4", r.Products)
	}
	if r.Observations != 7 {
		t.Errorf("Observations: got %d, want 7", r.Observations)
	}
	if r.LatestDate != "2024-01-08" {
		t.Errorf("LatestDate: got %q", r.LatestDate)
	}
	if r.BuyNowProducts != 1 {
		t.Errorf("BuyNowProducts: got %d, want 1 (B's rating is too low)", r.BuyNowProducts)
	}
	if r.StableProducts != 2 || r.UnstableProducts != 2 {
		t.Errorf("Stable/Unstable: got %d/%d, want 2/2", r.StableProducts, r.UnstableProducts)
	}
}

func TestInsightAverageLatest(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleHistory(t))
	want := 462.50 // (900 + 450 + 300 + 200) / 4
	if r.AverageLatest != want {
		t.Errorf("AverageLatest: got %.2f, want %.2f", r.AverageLatest, want)
	}
}

func TestInsightTopDrops(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleHistory(t))
	if len(r.TopDrops) != 2 {
		t.Fatalf("TopDrops len: got %d, want 2", len(r.TopDrops))
	}
	if r.TopDrops[0].ProductKey != "A" || r.TopDrops[1].ProductKey != "B" {
		t.Errorf("TopDrops: got %q, %q", r.TopDrops[0].ProductKey, r.TopDrops[1].ProductKey)
	}
	if math.Abs(r.TopDrops[0].ChangePercent+10) > 1e-9 {
		t.Errorf("TopDrops[0].ChangePercent: got %.2f, want -10", r.TopDrops[0].ChangePercent)
	}
}

func TestInsightMostVolatile(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleHistory(t))
	if len(r.MostVolatile) != 2 {
		t.Fatalf("MostVolatile len: got %d, want 2", len(r.MostVolatile))
	}
	if r.MostVolatile[0].ProductKey != "A" {
		t.Errorf("MostVolatile[0]: got %q, want A", r.MostVolatile[0].ProductKey)
	}
}

func TestLatestByProduct(t *testing.T) {
	latest := LatestByProduct(sampleHistory(t))
	if len(latest) != 4 {
		t.Fatalf("len: got %d, want 4", len(latest))
	}
	if latest[0].ProductKey != "A" || latest[0].CaptureDate != "2024-01-08" {
		t.Errorf("latest[0]: got %s %s", latest[0].ProductKey, latest[0].CaptureDate)
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(nil)
	if r.Products != 0 || r.Observations != 0 {
		t.Errorf("expected an empty report for empty input, got %+v", r)
	}
}
