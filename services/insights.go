package services

import (
	"fmt"
	"sort"
	"strings"

	"laptop-price-tracker/models"
	"laptop-price-tracker/utils"
)

const topN = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate summarises the stored history using each product's latest observation.
func (s *InsightService) Generate(rows []models.Observation) *models.InsightReport {
	report := &models.InsightReport{}
	if len(rows) == 0 {
		return report
	}
	report.Observations = len(rows)

	latest := LatestByProduct(rows)
	report.Products = len(latest)

	var total float64
	var priced int
	var moves []models.PriceMove

	for _, o := range latest {
		if o.CaptureDate > report.LatestDate {
			report.LatestDate = o.CaptureDate
		}
		if o.BuyNow {
			report.BuyNowProducts++
		}
		if o.StabilityLabel == models.LabelUnstable {
			report.UnstableProducts++
		} else {
			report.StableProducts++
		}
		if o.Price == nil {
			continue
		}
		total += *o.Price
		priced++

		move := models.PriceMove{
			ProductKey:  o.ProductKey,
			Title:       o.Title,
			CaptureDate: o.CaptureDate,
			Price:       *o.Price,
			Stability:   o.PriceStability,
			BuyNow:      o.BuyNow,
		}
		if o.PriceChangePercent != nil {
			move.ChangePercent = *o.PriceChangePercent
		}
		moves = append(moves, move)
	}

	if priced > 0 {
		report.AverageLatest = round2(total / float64(priced))
	}

	// Biggest drops first
	sort.SliceStable(moves, func(i, j int) bool { return moves[i].ChangePercent < moves[j].ChangePercent })
	for _, m := range moves {
		if m.ChangePercent >= 0 || len(report.TopDrops) == topN {
			break
		}
		report.TopDrops = append(report.TopDrops, m)
	}

	sort.SliceStable(moves, func(i, j int) bool { return moves[i].Stability > moves[j].Stability })
	for _, m := range moves {
		if m.Stability == 0 || len(report.MostVolatile) == topN {
			break
		}
		report.MostVolatile = append(report.MostVolatile, m)
	}

	s.logger.Debug("[insights] %d products across %d observations", report.Products, report.Observations)
	return report
}

// LatestByProduct returns each product's most recent observation, ordered by product key.
func LatestByProduct(rows []models.Observation) []models.Observation {
	index := make(map[string]int)
	var latest []models.Observation
	for _, o := range rows {
		i, ok := index[o.ProductKey]
		if !ok {
			index[o.ProductKey] = len(latest)
			latest = append(latest, o)
			continue
		}
		if o.CaptureDate > latest[i].CaptureDate {
			latest[i] = o
		}
	}
	sort.Slice(latest, func(i, j int) bool { return latest[i].ProductKey < latest[j].ProductKey })
	return latest
}

func (s *InsightService) Print(r *models.InsightReport) {
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  💻 LAPTOP PRICE INSIGHTS\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Products tracked     : \033[1m%d\033[0m\n", r.Products)
	fmt.Printf("  Observations stored  : \033[1m%d\033[0m\n", r.Observations)
	fmt.Printf("  Latest capture date  : \033[1m%s\033[0m\n", orDash(string(r.LatestDate)))
	fmt.Printf("  Average latest price : \033[1;32m$%.2f\033[0m\n", r.AverageLatest)
	fmt.Printf("  Buy-now signals      : \033[1;32m%d\033[0m\n", r.BuyNowProducts)
	fmt.Printf("  Stable / Unstable    : %d / %d\n", r.StableProducts, r.UnstableProducts)
	fmt.Println()

	fmt.Printf("\033[1;33m  Biggest Price Drops\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.TopDrops) == 0 {
		fmt.Printf("  No price drops on record\n")
	}
	for i, m := range r.TopDrops {
		flag := ""
		if m.BuyNow {
			flag = " \033[1;32mBUY\033[0m"
		}
		fmt.Printf("  \033[1m%d.\033[0m %-38s $%9.2f \033[1;31m%6.1f%%\033[0m%s\n",
			i+1, truncate(m.Title, 36), m.Price, m.ChangePercent, flag)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Most Volatile Prices\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.MostVolatile) == 0 {
		fmt.Printf("  Every tracked price is flat\n")
	}
	for i, m := range r.MostVolatile {
		fmt.Printf("  \033[1m%d.\033[0m %-38s σ %8.2f\n", i+1, truncate(m.Title, 36), m.Stability)
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if r := []rune(s); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
