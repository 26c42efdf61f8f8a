package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/repeater/v2"

	"github.com/verist/newscast/pkg/domain"
)

// Fetcher retrieves raw items for a single source. Implementations are pure
// over their inputs and safe for concurrent use across different sources.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source) ([]domain.RawItem, error)
}

// Registry selects a fetcher by source kind and enforces per-source politeness.
// Fetches against the same source are serialized and spaced by the source's
// politeness interval; different sources may fetch concurrently.
type Registry struct {
	fetchers map[domain.SourceKind]Fetcher
	gate     *politenessGate
}

// NewRegistry creates a registry for the given kind-specific fetchers
func NewRegistry(feed, api Fetcher) *Registry {
	return &Registry{
		fetchers: map[domain.SourceKind]Fetcher{
			domain.SourceFeed: feed,
			domain.SourceAPI:  api,
		},
		gate: newPolitenessGate(),
	}
}

// Fetch retrieves raw items for the source with one bounded retry on failure.
// Transport errors are returned to the caller, never raised as fatal - the
// orchestrator counts the source failed and continues the run.
func (r *Registry) Fetch(ctx context.Context, src domain.Source) ([]domain.RawItem, error) {
	f, ok := r.fetchers[src.Kind]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for kind %q", src.Kind)
	}

	release, err := r.gate.acquire(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("politeness wait for %s: %w", src.ID, err)
	}
	defer release()

	var items []domain.RawItem
	// one bounded retry with backoff before the source is marked failed
	retrier := repeater.NewBackoff(2, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))
	err = retrier.Do(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, src.Timeout)
		defer cancel()

		fetched, ferr := f.Fetch(attemptCtx, src)
		if ferr != nil {
			return ferr
		}
		items = fetched
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", src.ID, err)
	}

	if src.MaxItemsPerRun > 0 && len(items) > src.MaxItemsPerRun {
		items = items[:src.MaxItemsPerRun]
	}
	return items, nil
}

// politenessGate tracks the last fetch time per source and holds a per-source
// lock so adapters for the same source never run concurrently within a run
type politenessGate struct {
	mu    sync.Mutex
	last  map[string]time.Time
	locks map[string]*sync.Mutex
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newPolitenessGate() *politenessGate {
	return &politenessGate{
		last:  make(map[string]time.Time),
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// acquire blocks until the source's politeness interval elapsed, then holds the
// per-source lock. The returned release func records the fetch time.
func (g *politenessGate) acquire(ctx context.Context, src domain.Source) (release func(), err error) {
	g.mu.Lock()
	lock, ok := g.locks[src.ID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[src.ID] = lock
	}
	g.mu.Unlock()

	lock.Lock()

	g.mu.Lock()
	last := g.last[src.ID]
	g.mu.Unlock()

	if wait := src.Politeness - g.now().Sub(last); wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			lock.Unlock()
			return nil, err
		}
	}

	return func() {
		g.mu.Lock()
		g.last[src.ID] = g.now()
		g.mu.Unlock()
		lock.Unlock()
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
