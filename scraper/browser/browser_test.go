package browser

import (
	"testing"
	"time"
)

func TestSearchURL(t *testing.T) {
	got := searchURL("gaming laptop", 3)
	want := "https://www.amazon.com/s?k=gaming+laptop&page=3"
	if got != want {
		t.Errorf("searchURL = %q, want %q", got, want)
	}
}

func TestStripQuery(t *testing.T) {
	cases := map[string]string{
		"https://www.amazon.com/dp/B0ABC?ref=sr_1&th=1": "https://www.amazon.com/dp/B0ABC",
		"https://www.amazon.com/dp/B0ABC#reviews":       "https://www.amazon.com/dp/B0ABC",
		"/relative/path?x=1":                            "/relative/path?x=1",
		"":                                              "",
	}
	for in, want := range cases {
		if got := stripQuery(in); got != want {
			t.Errorf("stripQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCardToRawListing(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	l := cardData{
		ASIN:    " B0TEST ",
		Title:   "Laptop",
		Link:    "https://www.amazon.com/dp/B0TEST?psc=1",
		Price:   "$1,099.00",
		Rating:  "4.4 out of 5 stars",
		Reviews: "1,204",
	}.toRawListing(at)

	if l.ASIN != "B0TEST" {
		t.Errorf("ASIN = %q", l.ASIN)
	}
	if l.Link != "https://www.amazon.com/dp/B0TEST" {
		t.Errorf("Link = %q", l.Link)
	}
	if l.Source != source || !l.ScrapedAt.Equal(at) {
		t.Errorf("unexpected source/time: %q %v", l.Source, l.ScrapedAt)
	}
	if l.RawPrice != "$1,099.00" || l.Reviews != "1,204" {
		t.Errorf("raw fields not carried: %+v", l)
	}
}
