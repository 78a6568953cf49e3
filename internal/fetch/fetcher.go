// Package fetch retrieves search results from the external source and
// guards the non-reentrant fetch resource behind an exclusive gate.
package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"watchbot/internal/model"
)

// Fetcher retrieves the current results for a saved search query.
type Fetcher interface {
	Fetch(ctx context.Context, query string) ([]model.Item, error)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedFetcher implements Fetcher against a source that exposes search
// results as a web feed: the query descriptor is the results-feed URL.
type FeedFetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// NewFeedFetcher creates a FeedFetcher with the given HTTP client.
func NewFeedFetcher(client HTTPClient, timeout time.Duration) *FeedFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedFetcher{
		client:  client,
		timeout: timeout,
	}
}

// Fetch downloads and parses the results feed for query.
// Network and server-side failures are classified transient; client
// errors and unparseable responses are permanent.
func (f *FeedFetcher) Fetch(ctx context.Context, query string) ([]model.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", "SearchWatchBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, Transient(fmt.Errorf("http get: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Transient(fmt.Errorf("unexpected status %d", resp.StatusCode))
	default:
		return nil, Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, Transient(fmt.Errorf("read body: %w", err))
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, Permanent(fmt.Errorf("parse feed: %w", err))
	}

	items := make([]model.Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		items = append(items, model.Item{
			ID:      itemID(it),
			Title:   it.Title,
			URL:     it.Link,
			Summary: summarize(it.Description),
		})
	}
	return items, nil
}

// itemID returns the identifier for a feed item, kept as an opaque string.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func itemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func summarize(desc string) string {
	const limit = 300
	if len(desc) <= limit {
		return desc
	}
	// Back up to a rune boundary so the cut never leaves invalid UTF-8.
	n := limit
	for n > 0 && !utf8.RuneStart(desc[n]) {
		n--
	}
	return desc[:n] + "..."
}
