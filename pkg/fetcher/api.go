package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/verist/newscast/pkg/domain"
)

// APIFetcher retrieves api-kind sources: JSON endpoints returning either an
// array of items or an object with an "items" array (GitHub-search style)
type APIFetcher struct {
	client    *resty.Client
	userAgent string
}

// NewAPIFetcher creates a fetcher for api-kind sources
func NewAPIFetcher(timeout time.Duration, userAgent string) *APIFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0). // retries are handled by the registry
		SetHeader("Accept", "application/json")

	return &APIFetcher{client: client, userAgent: userAgent}
}

// apiItem accepts the common field aliases used by the JSON APIs we pull from
type apiItem struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	HTMLURL     string `json:"html_url"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
	Body        string `json:"body"`
	Author      string `json:"author"`
	ID          string `json:"id"`
	Published   string `json:"published"`
	PublishedAt string `json:"published_at"`
	CreatedAt   string `json:"created_at"`
	ImageURL    string `json:"image_url"`
}

// apiEnvelope covers object responses wrapping the item list
type apiEnvelope struct {
	Items    []apiItem `json:"items"`
	Articles []apiItem `json:"articles"`
	Results  []apiItem `json:"results"`
}

// Fetch retrieves the endpoint and maps the JSON payload into raw items
func (f *APIFetcher) Fetch(ctx context.Context, src domain.Source) ([]domain.RawItem, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", f.userAgent).
		SetHeaders(src.Headers).
		Get(src.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch API: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	raw, err := decodeItems(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("decode API response from %s: %w", src.ID, err)
	}

	items := make([]domain.RawItem, 0, len(raw))
	for _, it := range raw {
		items = append(items, domain.RawItem{
			Title:       firstNonEmpty(it.Title, it.Name),
			Link:        firstNonEmpty(it.URL, it.HTMLURL, it.Link),
			Description: firstNonEmpty(it.Description, it.Summary, it.Body),
			Author:      it.Author,
			GUID:        firstNonEmpty(it.ID, it.URL, it.HTMLURL, it.Link),
			ImageURL:    it.ImageURL,
			Published:   parseAPITime(firstNonEmpty(it.Published, it.PublishedAt, it.CreatedAt)),
		})
	}
	return items, nil
}

// decodeItems handles both bare-array and enveloped responses
func decodeItems(data []byte) ([]apiItem, error) {
	var list []apiItem
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("response is neither an item array nor an envelope: %w", err)
	}
	switch {
	case len(env.Items) > 0:
		return env.Items, nil
	case len(env.Articles) > 0:
		return env.Articles, nil
	case len(env.Results) > 0:
		return env.Results, nil
	}
	return []apiItem{}, nil
}

// apiTimeLayouts are tried in order; malformed timestamps are left zero and
// the normalizer falls back to fetch time
var apiTimeLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseAPITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range apiTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
