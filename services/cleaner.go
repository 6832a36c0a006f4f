package services

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"laptop-price-tracker/models"
	"laptop-price-tracker/utils"
)

// NotAvailable fills categorical fields the listing did not provide.
const NotAvailable = "Info not available"

const deliveryWidth = 13

var (
	// priceRegexp captures numeric price values
	priceRegexp = regexp.MustCompile(`\d+(?:\.\d+)?`)
	// ratingRegexp captures the leading number of a rating such as "4.5 out of 5 stars"
	ratingRegexp = regexp.MustCompile(`\d+(?:\.\d+)?`)
	// countRegexp captures an integer count, optionally with thousands separators
	countRegexp = regexp.MustCompile(`\d[\d,]*`)

	placeholderValues = map[string]struct{}{
		"-": {}, "none": {}, "": {}, "nan": {}, "null": {}, "n/a": {},
	}

	pyLiteral = strings.NewReplacer("'", `"`, "None", "null", "True", "true", "False", "false")
)

// Cleaner transforms RawListings into typed snapshot Items.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean converts raw listings into Items. Listings without an ASIN are dropped
// and repeated ASINs keep their first occurrence. Missing review counts are
// imputed with the snapshot mean; price and rating are never imputed.
func (c *Cleaner) Clean(raw []*models.RawListing) ([]models.Item, []models.DroppedRow) {
	seen := make(map[string]struct{})
	items := make([]models.Item, 0, len(raw))
	var dropped []models.DroppedRow

	for i, r := range raw {
		asin := strings.ToUpper(strings.TrimSpace(r.ASIN))
		if asin == "" {
			c.logger.Warn("[cleaner] Dropping listing %d with empty ASIN: %s", i, r.Title)
			dropped = append(dropped, models.DroppedRow{Index: i, Reason: "missing ASIN"})
			continue
		}
		if _, dup := seen[asin]; dup {
			c.logger.Debug("[cleaner] Duplicate ASIN skipped: %s", asin)
			dropped = append(dropped, models.DroppedRow{Index: i, ProductKey: asin, Reason: "duplicate ASIN"})
			continue
		}
		seen[asin] = struct{}{}

		specs := c.parseSpecs(r.Specs)
		item := models.Item{
			ProductKey:  asin,
			Price:       c.parsePrice(r.RawPrice),
			Rating:      c.parseRating(r.Rating),
			ReviewCount: parseCount(r.Reviews),
			Details: models.Details{
				Title:           orNotAvailable(normaliseText(r.Title)),
				Link:            orNotAvailable(strings.TrimSpace(r.Link)),
				Thumbnail:       orNotAvailable(strings.TrimSpace(r.Thumbnail)),
				Delivery:        cleanDelivery(r.Delivery),
				DisplaySize:     specValue(specs, "display_size"),
				MemorySize:      specValue(specs, "ram"),
				StorageSize:     specValue(specs, "disk_size"),
				OperatingSystem: specValue(specs, "operating_system"),
			},
		}
		if !r.ScrapedAt.IsZero() {
			item.CaptureDate = string(models.DateOf(r.ScrapedAt))
		}

		items = append(items, item)
	}

	imputeReviewCounts(items)

	c.logger.Info("[cleaner] Cleaned %d → %d items (dropped %d)",
		len(raw), len(items), len(raw)-len(items))
	return items, dropped
}

// parsePrice extracts the first numeric value, ignoring currency symbols and
// thousands separators. Unparseable input yields nil.
func (c *Cleaner) parsePrice(raw string) *float64 {
	match := priceRegexp.FindString(strings.ReplaceAll(raw, ",", ""))
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		c.logger.Debug("[cleaner] Unparseable price %q: %v", raw, err)
		return nil
	}
	return &v
}

// parseRating extracts a 0.0–5.0 numeric rating from a raw string.
func (c *Cleaner) parseRating(raw string) *float64 {
	match := ratingRegexp.FindString(raw)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// parseSpecs reads the specification blob, either JSON or a Python-style dict
// literal. Anything unreadable yields an empty map.
func (c *Cleaner) parseSpecs(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		if err := json.Unmarshal([]byte(pyLiteral.Replace(raw)), &decoded); err != nil {
			c.logger.Debug("[cleaner] Unreadable specs %q: %v", raw, err)
			return nil
		}
	}

	specs := make(map[string]string, len(decoded))
	for k, v := range decoded {
		if v == nil {
			continue
		}
		specs[strings.ToLower(k)] = normaliseText(fmt.Sprint(v))
	}
	return specs
}

func specValue(specs map[string]string, key string) string {
	return orNotAvailable(specs[key])
}

func parseCount(raw string) *int64 {
	match := countRegexp.FindString(raw)
	if match == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(match, ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// imputeReviewCounts fills missing counts with the rounded mean of the known ones.
func imputeReviewCounts(items []models.Item) {
	var sum float64
	var known int
	for _, it := range items {
		if it.ReviewCount != nil {
			sum += float64(*it.ReviewCount)
			known++
		}
	}
	if known == 0 {
		return
	}
	mean := int64(math.Round(sum / float64(known)))
	for i := range items {
		if items[i].ReviewCount == nil {
			items[i].ReviewCount = models.Int(mean)
		}
	}
}

// cleanDelivery keeps the head of the first delivery line.
func cleanDelivery(raw string) string {
	line := strings.TrimSpace(strings.SplitN(raw, "\n", 2)[0])
	line = strings.TrimSpace(strings.SplitN(line, "|", 2)[0])
	if isPlaceholder(line) {
		return NotAvailable
	}
	if r := []rune(line); len(r) > deliveryWidth {
		line = strings.TrimSpace(string(r[:deliveryWidth]))
	}
	return line
}

func orNotAvailable(s string) string {
	if isPlaceholder(s) {
		return NotAvailable
	}
	return s
}

func isPlaceholder(s string) bool {
	_, ok := placeholderValues[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
