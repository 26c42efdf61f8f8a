package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verist/newscast/pkg/dedup"
	"github.com/verist/newscast/pkg/domain"
	"github.com/verist/newscast/pkg/normalize"
	"github.com/verist/newscast/pkg/personalize"
	"github.com/verist/newscast/pkg/relevance"
	"github.com/verist/newscast/pkg/scoring"
)

type stubSources struct{ sources []domain.Source }

func (s *stubSources) DomainSources() []domain.Source { return s.sources }

type stubFetcher struct {
	items map[string][]domain.RawItem
	fails map[string]bool
	calls int32
}

func (f *stubFetcher) Fetch(_ context.Context, src domain.Source) ([]domain.RawItem, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fails[src.ID] {
		return nil, fmt.Errorf("connection refused")
	}
	return f.items[src.ID], nil
}

type memHistory struct {
	entries map[string]time.Time
	err     error
}

func (m *memHistory) SeenSince(_ context.Context, fingerprints []string, since time.Time) (map[string]bool, error) {
	if m.err != nil {
		return nil, m.err
	}
	seen := make(map[string]bool)
	for _, fp := range fingerprints {
		if ts, ok := m.entries[fp]; ok && !ts.Before(since) {
			seen[fp] = true
		}
	}
	return seen, nil
}

func (m *memHistory) Add(_ context.Context, fingerprints []string, seenAt time.Time) error {
	if m.err != nil {
		return m.err
	}
	for _, fp := range fingerprints {
		m.entries[fp] = seenAt
	}
	return nil
}

func (m *memHistory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for fp, ts := range m.entries {
		if ts.Before(cutoff) {
			delete(m.entries, fp)
			n++
		}
	}
	return n, nil
}

type memProfiles struct {
	profiles map[string]*domain.UserProfile
	getErr   map[string]error
	listErr  error
}

func (m *memProfiles) GetProfile(_ context.Context, userID string) (*domain.UserProfile, error) {
	if err := m.getErr[userID]; err != nil {
		return nil, err
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s not found", userID)
	}
	return p, nil
}

func (m *memProfiles) SaveProfile(_ context.Context, profile *domain.UserProfile) error {
	m.profiles[profile.UserID] = profile
	return nil
}

func (m *memProfiles) ListUserIDs(_ context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		ids = append(ids, id)
	}
	return ids, nil
}

type stubSummarizer struct {
	err   error
	calls int32
}

func (s *stubSummarizer) Summarize(_ context.Context, article *domain.Article) (*domain.SummaryResult, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SummaryResult{Text: "summary of " + article.Title, Keywords: []string{"ai"}}, nil
}

func rawItem(title, link string, published time.Time) domain.RawItem {
	return domain.RawItem{
		Title:       title,
		Description: title + " details",
		Link:        link,
		GUID:        link,
		Published:   published,
	}
}

func testOrchestrator(t *testing.T, fetcher *stubFetcher, sources []domain.Source, profiles *memProfiles) *Orchestrator {
	t.Helper()
	history := &memHistory{entries: make(map[string]time.Time)}
	filter := relevance.NewFilter()
	engine := personalize.NewEngine(profiles)

	return NewOrchestrator(Config{
		Sources:      &stubSources{sources: sources},
		Fetcher:      fetcher,
		Normalizer:   normalize.New(),
		Deduper:      dedup.New(history, 7*24*time.Hour),
		Relevance:    filter,
		Scorer:       scoring.NewScorer(scoring.DefaultWeights, 48*time.Hour, filter),
		Personalizer: engine,
		Profiles:     profiles,
		RunTimeout:   time.Minute,
	})
}

func TestOrchestrator_Run(t *testing.T) {
	now := time.Now().UTC()
	sources := []domain.Source{
		{ID: "high", Kind: domain.SourceFeed, AuthorityWeight: 0.9, MaxItemsPerRun: 10},
		{ID: "low", Kind: domain.SourceFeed, AuthorityWeight: 0.5, MaxItemsPerRun: 10},
	}
	fetcher := &stubFetcher{items: map[string][]domain.RawItem{
		"high": {
			rawItem("OpenAI releases new model", "https://example.com/story", now.Add(-time.Hour)),
			rawItem("Anthropic research update", "https://example.com/research", now.Add(-2*time.Hour)),
		},
		"low": {
			// same story as the high-authority source
			rawItem("OpenAI releases new model", "https://example.com/story", now.Add(-time.Hour)),
			rawItem("Local sports results", "https://example.com/sports", now.Add(-time.Hour)),
		},
	}}
	profiles := &memProfiles{profiles: map[string]*domain.UserProfile{
		"alice": {UserID: "alice", MaxDailyItems: 10},
	}}

	o := testOrchestrator(t, fetcher, sources, profiles)
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Summary.SourcesOK)
	assert.Equal(t, 0, result.Summary.SourcesFailed)
	assert.Equal(t, 4, result.Summary.ItemsFetched)
	assert.Equal(t, 1, result.Summary.Duplicates)
	assert.Equal(t, 1, result.Summary.Irrelevant) // sports story has no domain keywords
	assert.Equal(t, 2, result.Summary.ArticlesAdmitted)
	assert.Equal(t, 1, result.Summary.UsersPersonalized)

	list := result.PerUser["alice"]
	require.Len(t, list, 2)
	// duplicate resolved to the higher-authority source
	for _, pa := range list {
		assert.Equal(t, "high", pa.SourceID)
	}

	last, ok := o.LastResult()
	require.True(t, ok)
	assert.Equal(t, result, last)
}

func TestOrchestrator_Run_SourceFailureTolerated(t *testing.T) {
	now := time.Now().UTC()
	sources := []domain.Source{
		{ID: "ok", Kind: domain.SourceFeed, AuthorityWeight: 0.8, MaxItemsPerRun: 10},
		{ID: "down", Kind: domain.SourceFeed, AuthorityWeight: 0.8, MaxItemsPerRun: 10},
	}
	fetcher := &stubFetcher{
		items: map[string][]domain.RawItem{"ok": {rawItem("GPT benchmark results", "https://example.com/bench", now)}},
		fails: map[string]bool{"down": true},
	}
	profiles := &memProfiles{profiles: map[string]*domain.UserProfile{"u": {UserID: "u", MaxDailyItems: 5}}}

	o := testOrchestrator(t, fetcher, sources, profiles)
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Summary.SourcesOK)
	assert.Equal(t, 1, result.Summary.SourcesFailed)
	require.Len(t, result.PerUser["u"], 1)
}

func TestOrchestrator_Run_HistoryDownFailsRun(t *testing.T) {
	now := time.Now().UTC()
	sources := []domain.Source{{ID: "s", Kind: domain.SourceFeed, AuthorityWeight: 0.8, MaxItemsPerRun: 10}}
	fetcher := &stubFetcher{items: map[string][]domain.RawItem{
		"s": {rawItem("LLM article", "https://example.com/a", now)},
	}}
	profiles := &memProfiles{profiles: map[string]*domain.UserProfile{}}

	o := testOrchestrator(t, fetcher, sources, profiles)
	o.cfg.Deduper = dedup.New(&memHistory{err: errors.New("cache down")}, time.Hour)

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedupe batch")
}

func TestOrchestrator_Run_UserFailureSkipsUser(t *testing.T) {
	now := time.Now().UTC()
	sources := []domain.Source{{ID: "s", Kind: domain.SourceFeed, AuthorityWeight: 0.8, MaxItemsPerRun: 10}}
	fetcher := &stubFetcher{items: map[string][]domain.RawItem{
		"s": {rawItem("Neural network news", "https://example.com/a", now)},
	}}
	profiles := &memProfiles{
		profiles: map[string]*domain.UserProfile{
			"ok":     {UserID: "ok", MaxDailyItems: 5},
			"broken": {UserID: "broken", MaxDailyItems: 5},
		},
		getErr: map[string]error{"broken": errors.New("store unavailable")},
	}

	o := testOrchestrator(t, fetcher, sources, profiles)
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Summary.UsersPersonalized)
	assert.Equal(t, 1, result.Summary.UsersSkipped)
	assert.Contains(t, result.PerUser, "ok")
	assert.NotContains(t, result.PerUser, "broken")
}

func TestOrchestrator_Run_SummariesAttached(t *testing.T) {
	now := time.Now().UTC()
	sources := []domain.Source{{ID: "s", Kind: domain.SourceFeed, AuthorityWeight: 0.8, MaxItemsPerRun: 10}}
	fetcher := &stubFetcher{items: map[string][]domain.RawItem{
		"s": {rawItem("Claude model update", "https://example.com/a", now)},
	}}
	profiles := &memProfiles{profiles: map[string]*domain.UserProfile{"u": {UserID: "u", MaxDailyItems: 5}}}

	o := testOrchestrator(t, fetcher, sources, profiles)
	summarizer := &stubSummarizer{}
	o.cfg.Summarizer = summarizer

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	list := result.PerUser["u"]
	require.Len(t, list, 1)
	assert.Equal(t, "summary of Claude model update", list[0].Summary)
	assert.Equal(t, []string{"ai"}, list[0].SummaryKeywords)
	assert.Equal(t, int32(1), atomic.LoadInt32(&summarizer.calls))
}

func TestOrchestrator_Run_SummarizerFailureKeepsArticle(t *testing.T) {
	now := time.Now().UTC()
	sources := []domain.Source{{ID: "s", Kind: domain.SourceFeed, AuthorityWeight: 0.8, MaxItemsPerRun: 10}}
	fetcher := &stubFetcher{items: map[string][]domain.RawItem{
		"s": {rawItem("Claude model update", "https://example.com/a", now)},
	}}
	profiles := &memProfiles{profiles: map[string]*domain.UserProfile{"u": {UserID: "u", MaxDailyItems: 5}}}

	o := testOrchestrator(t, fetcher, sources, profiles)
	o.cfg.Summarizer = &stubSummarizer{err: errors.New("llm down")}

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	list := result.PerUser["u"]
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Summary)
}

func TestOrchestrator_Run_SecondRunFiltersSeen(t *testing.T) {
	now := time.Now().UTC()
	sources := []domain.Source{{ID: "s", Kind: domain.SourceFeed, AuthorityWeight: 0.8, MaxItemsPerRun: 10}}
	fetcher := &stubFetcher{items: map[string][]domain.RawItem{
		"s": {rawItem("Transformer paper", "https://example.com/a", now)},
	}}
	profiles := &memProfiles{profiles: map[string]*domain.UserProfile{"u": {UserID: "u", MaxDailyItems: 5}}}

	o := testOrchestrator(t, fetcher, sources, profiles)

	first, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, first.PerUser["u"], 1)

	second, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Summary.Duplicates)
	assert.Empty(t, second.PerUser["u"])
}

func TestOrchestrator_TriggerRun(t *testing.T) {
	sources := []domain.Source{{ID: "s", Kind: domain.SourceFeed, AuthorityWeight: 0.8, MaxItemsPerRun: 10}}
	fetcher := &stubFetcher{items: map[string][]domain.RawItem{}}
	profiles := &memProfiles{profiles: map[string]*domain.UserProfile{}}

	o := testOrchestrator(t, fetcher, sources, profiles)

	require.True(t, o.TriggerRun(context.Background()))
	assert.Eventually(t, func() bool { return !o.Running() }, 5*time.Second, 10*time.Millisecond)

	_, ok := o.LastResult()
	assert.True(t, ok)
}
