package scoring

import (
	"sort"
	"time"

	"github.com/verist/newscast/pkg/domain"
	"github.com/verist/newscast/pkg/normalize"
)

// Weights are the fixed importance weights, must sum to 1
type Weights struct {
	Authority float64
	Recency   float64
	Density   float64
}

// DefaultWeights balance source authority, freshness and keyword density
var DefaultWeights = Weights{Authority: 0.4, Recency: 0.35, Density: 0.25}

// KeywordMatcher counts domain keyword hits in a text
type KeywordMatcher interface {
	MatchCount(text string) int
}

// Scorer computes the deterministic importance score:
// w1*authority + w2*recency + w3*keyword_density, always in [0,1]
type Scorer struct {
	weights  Weights
	lookback time.Duration
	matcher  KeywordMatcher
	now      func() time.Time
}

// NewScorer creates a scorer. Lookback caps the recency decay: articles older
// than it score zero recency.
func NewScorer(weights Weights, lookback time.Duration, matcher KeywordMatcher) *Scorer {
	return &Scorer{weights: weights, lookback: lookback, matcher: matcher, now: time.Now}
}

// Score computes the article's importance from its source and content
func (s *Scorer) Score(a *domain.Article, src domain.Source) float64 {
	authority := clamp01(src.AuthorityWeight)

	// linear decay to zero at the lookback horizon
	age := s.now().Sub(a.Published)
	recency := 1 - float64(age)/float64(s.lookback)
	recency = clamp01(recency)

	density := s.keywordDensity(a)

	return clamp01(s.weights.Authority*authority + s.weights.Recency*recency + s.weights.Density*density)
}

// keywordDensity is matched domain keywords over total tokens, clipped to [0,1]
func (s *Scorer) keywordDensity(a *domain.Article) float64 {
	text := a.Title + " " + a.Body
	tokens := normalize.Tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	return clamp01(float64(s.matcher.MatchCount(text)) / float64(len(tokens)))
}

// Rank orders articles by importance descending; ties break by
// more-recent-first, then by source authority descending. The order is
// deterministic for a given batch.
func Rank(articles []domain.Article, authority map[string]float64) {
	sort.SliceStable(articles, func(i, j int) bool {
		if articles[i].ImportanceScore != articles[j].ImportanceScore {
			return articles[i].ImportanceScore > articles[j].ImportanceScore
		}
		if !articles[i].Published.Equal(articles[j].Published) {
			return articles[i].Published.After(articles[j].Published)
		}
		return authority[articles[i].SourceID] > authority[articles[j].SourceID]
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
