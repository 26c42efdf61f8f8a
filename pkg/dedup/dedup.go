package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/verist/newscast/pkg/domain"
)

// HistoryStore is the durable fingerprint cache shared across runs. Entries
// older than the retention window are evicted by age, never by size.
type HistoryStore interface {
	SeenSince(ctx context.Context, fingerprints []string, since time.Time) (map[string]bool, error)
	Add(ctx context.Context, fingerprints []string, seenAt time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Deduper collapses duplicate articles within a batch and against the
// cross-run fingerprint history
type Deduper struct {
	history   HistoryStore
	retention time.Duration
	now       func() time.Time
}

// New creates a deduper over the given history store
func New(history HistoryStore, retention time.Duration) *Deduper {
	return &Deduper{history: history, retention: retention, now: time.Now}
}

// Dedupe assigns fingerprints and collapses duplicates. Within the batch the
// first occurrence wins after a stable reorder by source authority descending,
// so the higher-authority source's version of a duplicated story survives.
// Articles whose fingerprint appears in the history within the retention
// window are dropped. Dedupe does not write to the history - call Remember
// with the admitted set - so running it twice over its own output with the
// same history is a no-op.
func (d *Deduper) Dedupe(ctx context.Context, articles []domain.Article, authority map[string]float64) ([]domain.Article, error) {
	if len(articles) == 0 {
		return []domain.Article{}, nil
	}

	// stable sort keeps fetch order within equal authority
	ordered := make([]domain.Article, len(articles))
	copy(ordered, articles)
	sort.SliceStable(ordered, func(i, j int) bool {
		return authority[ordered[i].SourceID] > authority[ordered[j].SourceID]
	})

	fingerprints := make([]string, 0, len(ordered))
	for i := range ordered {
		if ordered[i].Fingerprint == "" {
			ordered[i].Fingerprint = Fingerprint(&ordered[i])
		}
		fingerprints = append(fingerprints, ordered[i].Fingerprint)
	}

	since := d.now().Add(-d.retention)
	seen, err := d.history.SeenSince(ctx, fingerprints, since)
	if err != nil {
		return nil, fmt.Errorf("check fingerprint history: %w", err)
	}

	result := make([]domain.Article, 0, len(ordered))
	inBatch := make(map[string]bool, len(ordered))
	for _, a := range ordered {
		if inBatch[a.Fingerprint] || seen[a.Fingerprint] {
			continue
		}
		inBatch[a.Fingerprint] = true
		result = append(result, a)
	}

	return result, nil
}

// Remember records the fingerprints admitted in this run and evicts history
// entries older than the retention window
func (d *Deduper) Remember(ctx context.Context, articles []domain.Article) error {
	if len(articles) > 0 {
		fingerprints := make([]string, 0, len(articles))
		for i := range articles {
			fingerprints = append(fingerprints, articles[i].Fingerprint)
		}
		if err := d.history.Add(ctx, fingerprints, d.now().UTC()); err != nil {
			return fmt.Errorf("record fingerprints: %w", err)
		}
	}

	if _, err := d.history.DeleteOlderThan(ctx, d.now().Add(-d.retention)); err != nil {
		return fmt.Errorf("evict aged fingerprints: %w", err)
	}
	return nil
}
