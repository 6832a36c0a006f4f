package browser

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"laptop-price-tracker/models"
	"laptop-price-tracker/utils"
)

const (
	searchBase = "https://www.amazon.com/s"
	source     = "browser"
)

// Options configures a Collector.
type Options struct {
	ChromeBin   string
	Query       string
	MaxPages    int
	RateLimitMs int
	MaxRetries  int
}

// Collector drives a headless Chrome through Amazon search result pages.
type Collector struct {
	opts   Options
	logger *utils.Logger
	seen   *utils.KeySet
	retry  *utils.RetryConfig
	now    func() time.Time
}

type cardData struct {
	ASIN      string `json:"asin"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Thumbnail string `json:"thumbnail"`
	Price     string `json:"price"`
	Rating    string `json:"rating"`
	Reviews   string `json:"reviews"`
	Delivery  string `json:"delivery"`
}

// New creates a ready-to-use browser Collector.
func New(opts Options, logger *utils.Logger) *Collector {
	return &Collector{
		opts:   opts,
		logger: logger,
		seen:   utils.NewKeySet(),
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		now: time.Now,
	}
}

// Collect walks result pages in order until one comes back empty or fails.
func (c *Collector) Collect(ctx context.Context) ([]*models.RawListing, error) {
	chromeBin := c.opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	c.logger.Info("[browser] Starting collection for %q (max %d pages), binary: %s",
		c.opts.Query, c.opts.MaxPages, orDefault(chromeBin))

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	var listings []*models.RawListing
	var lastErr error

	for page := 1; page <= c.opts.MaxPages; page++ {
		pageURL := searchURL(c.opts.Query, page)
		c.logger.Info("[browser] Loading page %d: %s", page, pageURL)

		cards, err := c.scrapePage(browserCtx, pageURL, page)
		if err != nil {
			c.logger.Error("[browser] Page %d failed: %v", page, err)
			lastErr = err
			break
		}
		if len(cards) == 0 {
			c.logger.Info("[browser] Page %d returned no results, stopping", page)
			break
		}

		scrapedAt := c.now()
		for _, card := range cards {
			if card.ASIN != "" && !c.seen.Add(card.ASIN) {
				continue
			}
			listings = append(listings, card.toRawListing(scrapedAt))
		}
		c.logger.Info("[browser] Page %d done, %d listings so far", page, len(listings))

		select {
		case <-ctx.Done():
			return listings, ctx.Err()
		case <-time.After(time.Duration(c.opts.RateLimitMs) * time.Millisecond):
		}
	}

	if len(listings) == 0 && lastErr != nil {
		return nil, fmt.Errorf("browser: no listings collected: %w", lastErr)
	}
	c.logger.Info("[browser] Collection complete, %d raw listings (%d unique ASINs)", len(listings), c.seen.Size())
	return listings, nil
}

func (c *Collector) scrapePage(browserCtx context.Context, pageURL string, pageNum int) ([]cardData, error) {
	var cards []cardData

	err := c.retry.Do(browserCtx, fmt.Sprintf("browser-page-%d", pageNum), func(ctx context.Context) error {
		tabCtx, cancel := chromedp.NewContext(ctx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 90*time.Second)
		defer cancelTimeout()

		cards = nil
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(4*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(extractCardsJS, &cards),
		)
		if err != nil {
			return fmt.Errorf("chromedp page scrape: %w", err)
		}
		return nil
	})

	c.logger.Debug("[browser] Page %d: found %d cards", pageNum, len(cards))
	return cards, err
}

// extractCardsJS reads each organic search result card on the page.
const extractCardsJS = `
(function() {
	var results = [];
	var cards = document.querySelectorAll('div[data-component-type="s-search-result"]');
	for (var i = 0; i < cards.length; i++) {
		var card = cards[i];
		var text = function(sel) {
			var el = card.querySelector(sel);
			return el ? el.innerText.trim() : '';
		};
		var titleEl = card.querySelector('h2 a') || card.querySelector('a.a-link-normal.s-no-outline');
		var img = card.querySelector('img.s-image');
		var ratingEl = card.querySelector('[aria-label*="out of 5 stars"]');
		var reviewsEl = card.querySelector('a[href*="customerReviews"] span') ||
		                card.querySelector('span.s-underline-text');

		results.push({
			asin:      card.getAttribute('data-asin') || '',
			title:     text('h2'),
			link:      titleEl ? titleEl.href : '',
			thumbnail: img ? img.src : '',
			price:     text('span.a-price > span.a-offscreen'),
			rating:    ratingEl ? (ratingEl.getAttribute('aria-label') || '') : '',
			reviews:   reviewsEl ? reviewsEl.innerText.trim() : '',
			delivery:  text('div[data-cy="delivery-recipe"]')
		});
	}
	return results;
})()
`

func (d cardData) toRawListing(scrapedAt time.Time) *models.RawListing {
	return &models.RawListing{
		ASIN:      strings.TrimSpace(d.ASIN),
		Title:     d.Title,
		Link:      stripQuery(d.Link),
		Thumbnail: d.Thumbnail,
		RawPrice:  d.Price,
		Rating:    d.Rating,
		Reviews:   d.Reviews,
		Delivery:  d.Delivery,
		Source:    source,
		ScrapedAt: scrapedAt,
	}
}

func searchURL(query string, page int) string {
	v := url.Values{}
	v.Set("k", query)
	v.Set("page", strconv.Itoa(page))
	return searchBase + "?" + v.Encode()
}

// stripQuery drops tracking parameters from a product link.
func stripQuery(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// findChromeBinary looks for a Chromium-based browser on the host.
// It checks the CHROME_BIN env var first, then falls back to well-known paths.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	candidates := []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}

	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path
		}
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func orDefault(bin string) string {
	if bin == "" {
		return "(chromedp default)"
	}
	return bin
}
