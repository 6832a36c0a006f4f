package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"laptop-price-tracker/models"
)

const (
	historySheet = "History"
	signalSheet  = "Buy Now"
)

var exportHeader = []any{
	"product_key", "capture_date", "title", "price", "rating", "review_count",
	"previous_price", "previous_capture_date", "price_difference", "price_change_percent",
	"buy_now", "price_stability", "stability_label",
	"display_size", "memory_size", "storage_size", "operating_system", "delivery", "link", "thumbnail",
}

// ExportXLSX writes the full history to a workbook: one sheet with every
// observation and one with the rows currently flagged buy-now.
func ExportXLSX(path string, rows []models.Observation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("xlsx: create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(signalSheet); err != nil {
		return fmt.Errorf("xlsx: add sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx: style: %w", err)
	}

	var signals []models.Observation
	for _, o := range rows {
		if o.BuyNow {
			signals = append(signals, o)
		}
	}

	for sheet, data := range map[string][]models.Observation{historySheet: rows, signalSheet: signals} {
		if err := writeSheet(f, sheet, data, bold); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: save %q: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows []models.Observation, headerStyle int) error {
	header := exportHeader
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx: %s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("xlsx: %s header style: %w", sheet, err)
	}

	for i, o := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx: %s row %d: %w", sheet, i+2, err)
		}
		values := []any{
			o.ProductKey, string(o.CaptureDate), o.Title, cellFloat(o.Price), cellFloat(o.Rating), cellInt(o.ReviewCount),
			cellFloat(o.PreviousPrice), string(o.PreviousCaptureDate), cellFloat(o.PriceDifference), cellFloat(o.PriceChangePercent),
			o.BuyNow, o.PriceStability, o.StabilityLabel,
			o.DisplaySize, o.MemorySize, o.StorageSize, o.OperatingSystem, o.Delivery, o.Link, o.Thumbnail,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("xlsx: %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func cellFloat(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

func cellInt(p *int64) any {
	if p == nil {
		return ""
	}
	return *p
}
