package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/verist/newscast/pkg/domain"
	"github.com/verist/newscast/pkg/scoring"
)

// SourceProvider supplies the registered sources for a run. Reading the
// sources at run start lets configuration reloads take effect between runs.
type SourceProvider interface {
	DomainSources() []domain.Source
}

// Fetcher retrieves raw items from a single source
type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source) ([]domain.RawItem, error)
}

// Normalizer converts raw items to articles, nil means the item is dropped
type Normalizer interface {
	Normalize(raw domain.RawItem, src domain.Source) *domain.Article
}

// Deduper collapses duplicates within a batch and against history
type Deduper interface {
	Dedupe(ctx context.Context, articles []domain.Article, authority map[string]float64) ([]domain.Article, error)
	Remember(ctx context.Context, articles []domain.Article) error
}

// RelevanceFilter gates articles on domain relevance
type RelevanceFilter interface {
	IsRelevant(a *domain.Article, src domain.Source) bool
}

// Scorer assigns the importance score to an article
type Scorer interface {
	Score(a *domain.Article, src domain.Source) float64
}

// Personalizer tailors the admitted batch to one user
type Personalizer interface {
	Personalize(articles []domain.Article, profile *domain.UserProfile, authority map[string]float64) []domain.PersonalizedArticle
}

// ProfileStore provides user profiles for personalization
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Summarizer is the external summarization collaborator, optional
type Summarizer interface {
	Summarize(ctx context.Context, article *domain.Article) (*domain.SummaryResult, error)
}

// Extractor pulls full article text to enrich summarizer input, optional
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Config holds the orchestrator dependencies and run tuning
type Config struct {
	Sources       SourceProvider
	Fetcher       Fetcher
	Normalizer    Normalizer
	Deduper       Deduper
	Relevance     RelevanceFilter
	Scorer        Scorer
	Personalizer  Personalizer
	Profiles      ProfileStore
	Summarizer    Summarizer // optional, nil disables summarization
	Extractor     Extractor  // optional, nil disables full-text extraction
	MaxConcurrent int
	RunTimeout    time.Duration
}

// Result is the output of one pipeline run: the ordered per-user article
// lists plus the run summary with failure counts
type Result struct {
	PerUser map[string][]domain.PersonalizedArticle `json:"per_user"`
	Summary domain.RunSummary                       `json:"summary"`
}

// Orchestrator drives one full pipeline run: fetch all sources in parallel,
// normalize, dedupe, filter, score, then personalize per user. Failures of a
// single source or user never abort the run for the others, the dedup history
// being unavailable does.
type Orchestrator struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	lastResult *Result
	running    atomic.Bool
}

// NewOrchestrator creates an orchestrator, applying defaults for unset tuning
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	return &Orchestrator{cfg: cfg, now: time.Now}
}

// Run executes one pipeline run. The returned error is non-nil only for
// run-fatal failures, partial per-source and per-user failures are reported
// in the result summary.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	started := o.now()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	sources := o.cfg.Sources.DomainSources()
	authority := make(map[string]float64, len(sources))
	srcByID := make(map[string]domain.Source, len(sources))
	for _, src := range sources {
		authority[src.ID] = src.AuthorityWeight
		srcByID[src.ID] = src
	}

	summary := domain.RunSummary{StartedAt: started}

	// fetch all sources in parallel, bounded
	fetched := o.fetchAll(ctx, sources, &summary)

	// normalize
	var articles []domain.Article
	for _, batch := range fetched {
		src := srcByID[batch.sourceID]
		for _, raw := range batch.items {
			a := o.cfg.Normalizer.Normalize(raw, src)
			if a == nil {
				summary.ItemsDropped++
				continue
			}
			articles = append(articles, *a)
		}
	}

	// dedupe against the batch and cross-run history; history being down
	// would admit duplicates, so it fails the run
	unique, err := o.cfg.Deduper.Dedupe(ctx, articles, authority)
	if err != nil {
		return nil, fmt.Errorf("dedupe batch: %w", err)
	}
	summary.Duplicates = len(articles) - len(unique)

	if err := o.cfg.Deduper.Remember(ctx, unique); err != nil {
		return nil, fmt.Errorf("record fingerprints: %w", err)
	}

	// relevance gate and scoring
	admitted := make([]domain.Article, 0, len(unique))
	for i := range unique {
		a := &unique[i]
		src := srcByID[a.SourceID]
		if !o.cfg.Relevance.IsRelevant(a, src) {
			summary.Irrelevant++
			continue
		}
		a.Relevant = true
		a.ImportanceScore = o.cfg.Scorer.Score(a, src)
		admitted = append(admitted, *a)
	}
	summary.ArticlesAdmitted = len(admitted)
	scoring.Rank(admitted, authority)

	// summaries are attached per user after personalization
	summaries := o.summarizeAll(ctx, admitted)

	perUser, err := o.personalizeAll(ctx, admitted, authority, summaries, &summary)
	if err != nil {
		return nil, err
	}

	summary.Duration = o.now().Sub(started)
	result := &Result{PerUser: perUser, Summary: summary}

	o.mu.Lock()
	o.lastResult = result
	o.mu.Unlock()

	lgr.Printf("[INFO] run completed in %v: %d sources ok, %d failed, %d admitted, %d users",
		summary.Duration, summary.SourcesOK, summary.SourcesFailed, summary.ArticlesAdmitted, summary.UsersPersonalized)
	return result, nil
}

// TriggerRun starts a run in the background unless one is already in flight.
// Returns false when a run is active.
func (o *Orchestrator) TriggerRun(ctx context.Context) bool {
	if !o.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer o.running.Store(false)
		if _, err := o.Run(ctx); err != nil {
			lgr.Printf("[ERROR] triggered run failed: %v", err)
		}
	}()
	return true
}

// LastResult returns the result of the most recent completed run
func (o *Orchestrator) LastResult() (*Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastResult == nil {
		return nil, false
	}
	return o.lastResult, true
}

// Running reports whether a triggered run is in flight
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

type sourceBatch struct {
	sourceID string
	items    []domain.RawItem
}

// fetchAll fetches every source in parallel, preserving registry order in the
// returned batches. Failed sources are counted and skipped.
func (o *Orchestrator) fetchAll(ctx context.Context, sources []domain.Source, summary *domain.RunSummary) []sourceBatch {
	batches := make([]sourceBatch, len(sources))
	var failed, fetchedItems int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)

	for i, src := range sources {
		g.Go(func() error {
			items, err := o.cfg.Fetcher.Fetch(gctx, src)
			if err != nil {
				lgr.Printf("[WARN] fetch %s failed: %v", src.ID, err)
				atomic.AddInt64(&failed, 1)
				return nil
			}
			batches[i] = sourceBatch{sourceID: src.ID, items: items}
			atomic.AddInt64(&fetchedItems, int64(len(items)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		lgr.Printf("[ERROR] fetch group error: %v", err)
	}

	summary.SourcesFailed = int(failed)
	summary.SourcesOK = len(sources) - int(failed)
	summary.ItemsFetched = int(fetchedItems)

	// drop batches of failed sources, they have empty source ids
	result := make([]sourceBatch, 0, len(batches))
	for _, b := range batches {
		if b.sourceID != "" {
			result = append(result, b)
		}
	}
	return result
}

// summarizeAll produces summaries for admitted articles, keyed by
// fingerprint. Any failure means "summary unavailable", never a dropped
// article. Returns nil when summarization is disabled.
func (o *Orchestrator) summarizeAll(ctx context.Context, articles []domain.Article) map[string]*domain.SummaryResult {
	if o.cfg.Summarizer == nil || len(articles) == 0 {
		return nil
	}

	summaries := make(map[string]*domain.SummaryResult, len(articles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)

	for i := range articles {
		a := articles[i] // copy so extraction does not mutate the batch
		g.Go(func() error {
			if o.cfg.Extractor != nil {
				if text, err := o.cfg.Extractor.Extract(gctx, a.URL); err == nil {
					a.Body = text
				} else {
					lgr.Printf("[DEBUG] extraction failed for %s: %v", a.URL, err)
				}
			}

			result, err := o.cfg.Summarizer.Summarize(gctx, &a)
			if err != nil {
				lgr.Printf("[WARN] summary unavailable for %s: %v", a.URL, err)
				return nil
			}

			mu.Lock()
			summaries[a.Fingerprint] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		lgr.Printf("[ERROR] summarize group error: %v", err)
	}

	return summaries
}

// personalizeAll runs the personalization engine for every known user.
// A profile load failure skips that user only.
func (o *Orchestrator) personalizeAll(ctx context.Context, articles []domain.Article, authority map[string]float64,
	summaries map[string]*domain.SummaryResult, summary *domain.RunSummary) (map[string][]domain.PersonalizedArticle, error) {

	userIDs, err := o.cfg.Profiles.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	perUser := make(map[string][]domain.PersonalizedArticle, len(userIDs))
	var mu sync.Mutex
	var skipped int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)

	for _, userID := range userIDs {
		g.Go(func() error {
			profile, err := o.cfg.Profiles.GetProfile(gctx, userID)
			if err != nil {
				lgr.Printf("[WARN] skipping user %s: %v", userID, err)
				atomic.AddInt64(&skipped, 1)
				return nil
			}

			personalized := o.cfg.Personalizer.Personalize(articles, profile, authority)
			for i := range personalized {
				if s, ok := summaries[personalized[i].Fingerprint]; ok {
					personalized[i].Summary = s.Text
					personalized[i].SummaryKeywords = s.Keywords
				}
			}

			mu.Lock()
			perUser[userID] = personalized
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		lgr.Printf("[ERROR] personalize group error: %v", err)
	}

	summary.UsersSkipped = int(skipped)
	summary.UsersPersonalized = len(userIDs) - int(skipped)
	return perUser, nil
}
