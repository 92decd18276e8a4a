package universe

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/dmaas/ivcrush/pkg/httputil"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// TickerSource yields the set of tickers a scan cycle should consider.
type TickerSource interface {
	Tickers(ctx context.Context) ([]string, error)
}

// StaticSource serves a fixed ticker list, normally from configuration.
type StaticSource struct {
	tickers []string
}

// NewStaticSource copies and normalizes the given ticker list.
func NewStaticSource(tickers []string) *StaticSource {
	out := make([]string, 0, len(tickers))
	seen := make(map[string]bool)
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return &StaticSource{tickers: out}
}

func (s *StaticSource) Tickers(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.tickers))
	copy(out, s.tickers)
	return out, nil
}

// CachedSource memoizes another source so scan cycles do not re-scrape.
// Refresh replaces the cached list; a scheduled job calls it daily.
type CachedSource struct {
	mu      sync.RWMutex
	source  TickerSource
	tickers []string
}

// NewCachedSource wraps source with a cache that fills on first use.
func NewCachedSource(source TickerSource) *CachedSource {
	return &CachedSource{source: source}
}

func (c *CachedSource) Tickers(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	cached := c.tickers
	c.mu.RUnlock()

	if cached == nil {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		c.mu.RLock()
		cached = c.tickers
		c.mu.RUnlock()
	}

	out := make([]string, len(cached))
	copy(out, cached)
	return out, nil
}

// Refresh re-resolves the underlying source. On failure the previous cache
// is kept.
func (c *CachedSource) Refresh(ctx context.Context) error {
	tickers, err := c.source.Tickers(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tickers = tickers
	c.mu.Unlock()
	return nil
}

const sp500URL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"

var tickerRe = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// SP500Source scrapes the S&P 500 constituent list from Wikipedia. Used when
// no ticker list is configured.
type SP500Source struct {
	httpClient *httputil.Client
	url        string
	logger     *logger.Logger
}

// NewSP500Source creates a scraping source backed by the given HTTP client.
func NewSP500Source(httpClient *httputil.Client, log *logger.Logger) *SP500Source {
	return &SP500Source{
		httpClient: httpClient,
		url:        sp500URL,
		logger:     log,
	}
}

// Tickers fetches and parses the constituents table.
func (s *SP500Source) Tickers(ctx context.Context) ([]string, error) {
	body, err := s.httpClient.GetDocument(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch constituents page: %w", err)
	}

	tickers, err := parseConstituents(body)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("count", len(tickers)).Debug("Fetched index constituents")
	return tickers, nil
}

// parseConstituents pulls tickers out of the first column of the
// constituents table. Dots in Wikipedia symbols (BRK.B) become dashes to
// match the broker's option symbology.
func parseConstituents(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse constituents page: %w", err)
	}

	table := doc.Find("table#constituents")
	if table.Length() == 0 {
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("constituents table not found")
	}

	seen := make(map[string]bool)
	tickers := make([]string, 0, 500)

	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return
		}
		symbol := strings.ToUpper(strings.TrimSpace(cell.Text()))
		if !tickerRe.MatchString(symbol) {
			return
		}
		symbol = strings.ReplaceAll(symbol, ".", "-")
		if seen[symbol] {
			return
		}
		seen[symbol] = true
		tickers = append(tickers, symbol)
	})

	if len(tickers) == 0 {
		return nil, fmt.Errorf("constituents table had no symbols")
	}

	sort.Strings(tickers)
	return tickers, nil
}
