package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/verist/newscast/pkg/domain"
)

// FeedFetcher retrieves RSS/Atom sources
type FeedFetcher struct {
	client    *http.Client
	userAgent string
}

// NewFeedFetcher creates a fetcher for feed-kind sources
func NewFeedFetcher(timeout time.Duration, userAgent string) *FeedFetcher {
	return &FeedFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
	}
}

// Fetch retrieves and parses the source's feed into raw items
func (f *FeedFetcher) Fetch(ctx context.Context, src domain.Source) ([]domain.RawItem, error) {
	body, err := f.fetch(ctx, src.Endpoint, src.Headers)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	parser := gofeed.NewParser()
	feed, err := parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		raw := domain.RawItem{
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
		}

		// feeds with full content carry it separately from the description
		if item.Content != "" {
			raw.Description = item.Content
		}

		// set GUID
		if item.GUID != "" {
			raw.GUID = item.GUID
		} else {
			raw.GUID = item.Link
		}

		// set author
		if item.Author != nil {
			raw.Author = item.Author.Name
		}

		// set image
		if item.Image != nil {
			raw.ImageURL = item.Image.URL
		}

		// set published time
		if item.PublishedParsed != nil {
			raw.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			raw.Published = *item.UpdatedParsed
		}

		items = append(items, raw)
	}

	return items, nil
}

// fetch retrieves content from a URL
func (f *FeedFetcher) fetch(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	// add browser-like headers
	addBrowserHeaders(req)

	// source-specific headers win over defaults
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
