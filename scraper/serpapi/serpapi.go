package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"laptop-price-tracker/models"
	"laptop-price-tracker/utils"
)

const (
	source = "serpapi"
	engine = "amazon"
)

// Options configures a Collector.
type Options struct {
	BaseURL        string
	APIKey         string
	Query          string
	MaxPages       int
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
}

// Collector pages through SerpAPI's Amazon search results.
type Collector struct {
	opts   Options
	client *resty.Client
	logger *utils.Logger
	pool   *utils.WorkerPool
	seen   *utils.KeySet
	retry  *utils.RetryConfig
	now    func() time.Time
}

type searchResponse struct {
	Error          string          `json:"error"`
	OrganicResults []organicResult `json:"organic_results"`
}

type organicResult struct {
	ASIN           string          `json:"asin"`
	Title          string          `json:"title"`
	Link           string          `json:"link"`
	LinkClean      string          `json:"link_clean"`
	Thumbnail      string          `json:"thumbnail"`
	Price          string          `json:"price"`
	ExtractedPrice *float64        `json:"extracted_price"`
	Rating         *float64        `json:"rating"`
	Reviews        *int64          `json:"reviews"`
	Delivery       []string        `json:"delivery"`
	Specs          json.RawMessage `json:"specs"`
}

// New creates a ready-to-use SerpAPI Collector.
func New(opts Options, logger *utils.Logger) *Collector {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Accept", "application/json")

	return &Collector{
		opts:   opts,
		client: client,
		logger: logger,
		pool:   utils.NewWorkerPool(opts.MaxConcurrency, opts.RateLimitMs),
		seen:   utils.NewKeySet(),
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		now: time.Now,
	}
}

// Collect fetches pages in windows of MaxConcurrency until a page comes back
// empty, a page fails, or MaxPages is reached. Listings gathered before a
// failure are kept.
func (c *Collector) Collect(ctx context.Context) ([]*models.RawListing, error) {
	if c.opts.APIKey == "" {
		return nil, fmt.Errorf("serpapi: missing API key")
	}

	window := c.opts.MaxConcurrency
	if window < 1 {
		window = 1
	}
	c.logger.Info("[serpapi] Starting collection for %q (max %d pages, %d at a time)",
		c.opts.Query, c.opts.MaxPages, window)

	var listings []*models.RawListing
	var lastErr error

collect:
	for start := 1; start <= c.opts.MaxPages; start += window {
		end := min(start+window-1, c.opts.MaxPages)
		pages := make([][]*models.RawListing, end-start+1)
		errs := make([]error, end-start+1)

		for p := start; p <= end; p++ {
			p := p // per-iteration copy; go 1.21 loop vars are shared across iterations
			c.pool.Submit(func() {
				pages[p-start], errs[p-start] = c.fetchPage(ctx, p)
			})
		}
		c.pool.Wait()

		for i, page := range pages {
			pageNum := start + i
			if errs[i] != nil {
				c.logger.Error("[serpapi] Page %d failed: %v", pageNum, errs[i])
				lastErr = errs[i]
				break collect
			}
			if len(page) == 0 {
				c.logger.Info("[serpapi] Page %d returned no results, stopping", pageNum)
				break collect
			}
			for _, l := range page {
				if l.ASIN != "" && !c.seen.Add(l.ASIN) {
					c.logger.Debug("[serpapi] Skipping duplicate ASIN %s", l.ASIN)
					continue
				}
				listings = append(listings, l)
			}
			c.logger.Info("[serpapi] Page %d processed, %d listings so far", pageNum, len(listings))
		}
	}

	if len(listings) == 0 && lastErr != nil {
		return nil, fmt.Errorf("serpapi: no listings collected: %w", lastErr)
	}
	c.logger.Info("[serpapi] Collection complete, %d raw listings (%d unique ASINs)", len(listings), c.seen.Size())
	return listings, nil
}

func (c *Collector) fetchPage(ctx context.Context, page int) ([]*models.RawListing, error) {
	var listings []*models.RawListing

	err := c.retry.Do(ctx, fmt.Sprintf("serpapi-page-%d", page), func(ctx context.Context) error {
		var body searchResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"api_key": c.opts.APIKey,
				"engine":  engine,
				"k":       c.opts.Query,
				"page":    strconv.Itoa(page),
			}).
			SetResult(&body).
			Get(c.opts.BaseURL)
		if err != nil {
			return fmt.Errorf("request: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("unexpected status %d", resp.StatusCode())
		}
		if body.Error != "" && len(body.OrganicResults) == 0 {
			// SerpAPI reports an exhausted result set as an error string.
			if strings.Contains(strings.ToLower(body.Error), "hasn't returned any results") {
				listings = nil
				return nil
			}
			return fmt.Errorf("api error: %s", body.Error)
		}

		scrapedAt := c.now()
		listings = make([]*models.RawListing, 0, len(body.OrganicResults))
		for _, r := range body.OrganicResults {
			listings = append(listings, r.toRawListing(scrapedAt))
		}
		return nil
	})

	return listings, err
}

func (r organicResult) toRawListing(scrapedAt time.Time) *models.RawListing {
	l := &models.RawListing{
		ASIN:      strings.TrimSpace(r.ASIN),
		Title:     r.Title,
		Link:      r.LinkClean,
		Thumbnail: r.Thumbnail,
		RawPrice:  r.Price,
		Delivery:  strings.Join(r.Delivery, "\n"),
		Source:    source,
		ScrapedAt: scrapedAt,
	}
	if l.Link == "" {
		l.Link = r.Link
	}
	if r.ExtractedPrice != nil {
		l.RawPrice = strconv.FormatFloat(*r.ExtractedPrice, 'f', -1, 64)
	}
	if r.Rating != nil {
		l.Rating = strconv.FormatFloat(*r.Rating, 'f', -1, 64)
	}
	if r.Reviews != nil {
		l.Reviews = strconv.FormatInt(*r.Reviews, 10)
	}
	if specs := strings.TrimSpace(string(r.Specs)); specs != "" && specs != "null" {
		l.Specs = specs
	}
	return l
}
