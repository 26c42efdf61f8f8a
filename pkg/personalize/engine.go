package personalize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/verist/newscast/pkg/domain"
)

// tuning constants for per-user scoring and engagement learning
const (
	includeBoost  = 0.05 // per matched include keyword
	priorityBoost = 0.10 // per matched priority keyword
	tagBoost      = 0.05 // per matched enabled interest tag, scaled by affinity
	learningRate  = 0.1
	affinityDecay = 0.98
	affinityCap   = 5.0
)

// ProfileStore is the durable user profile storage the engine reads and
// updates. Engagement learning is the only writer of the affinity vector.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	SaveProfile(ctx context.Context, profile *domain.UserProfile) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Engine tailors scored articles to individual users and learns tag affinity
// from engagement signals. Personalize is pure, RecordEngagement serializes
// updates per user so different users may report concurrently.
type Engine struct {
	store ProfileStore
	locks sync.Map // userID -> *sync.Mutex
	now   func() time.Time
}

// NewEngine creates an engine backed by the given profile store
func NewEngine(store ProfileStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Personalize filters and reorders articles for one user. Hard excludes apply
// first, then per-user boosts and source weighting, then the inclusive
// minimum-score threshold and the daily cap. The authority map supplies the
// final tie-break after recency.
func (e *Engine) Personalize(articles []domain.Article, profile *domain.UserProfile, authority map[string]float64) []domain.PersonalizedArticle {
	result := make([]domain.PersonalizedArticle, 0, len(articles))

	for i := range articles {
		a := &articles[i]
		if e.excluded(a, profile) {
			continue
		}

		srcWeight := profile.SourceWeight(a.SourceID)
		if srcWeight == 0 { // user blocked the source
			continue
		}

		content := strings.ToLower(a.Title + " " + a.Body)
		eff := a.ImportanceScore
		eff += e.keywordBoost(a, content, profile)

		tags := InferTags(a.Title, a.Body)
		eff += e.tagAffinityBoost(tags, profile)

		eff *= srcWeight
		eff = clamp01(eff)

		if eff < profile.MinImportance {
			continue
		}

		sort.Strings(tags)
		result = append(result, domain.PersonalizedArticle{Article: *a, EffectiveScore: eff, Tags: tags})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].EffectiveScore != result[j].EffectiveScore {
			return result[i].EffectiveScore > result[j].EffectiveScore
		}
		if !result[i].Published.Equal(result[j].Published) {
			return result[i].Published.After(result[j].Published)
		}
		return authority[result[i].SourceID] > authority[result[j].SourceID]
	})

	if profile.MaxDailyItems > 0 && len(result) > profile.MaxDailyItems {
		result = result[:profile.MaxDailyItems]
	}
	return result
}

// excluded reports whether the article hits any of the user's exclude keywords
func (e *Engine) excluded(a *domain.Article, profile *domain.UserProfile) bool {
	for _, kw := range profile.Filters.Exclude {
		if a.HasKeyword(strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (e *Engine) keywordBoost(a *domain.Article, content string, profile *domain.UserProfile) float64 {
	var boost float64
	for _, kw := range profile.Filters.Include {
		if strings.Contains(content, strings.ToLower(kw)) {
			boost += includeBoost
		}
	}
	for _, kw := range profile.Filters.Priority {
		if strings.Contains(content, strings.ToLower(kw)) {
			boost += priorityBoost
		}
	}
	return boost
}

// tagAffinityBoost rewards articles matching tags the user follows, scaled by
// the learned affinity for each tag
func (e *Engine) tagAffinityBoost(tags []string, profile *domain.UserProfile) float64 {
	var boost float64
	for _, tag := range tags {
		if !profile.InterestTags[tag] {
			continue
		}
		boost += tagBoost * (1 + profile.Affinity[tag])
	}
	return boost
}

// RecordEngagement applies one engagement signal to the user's affinity
// vector and persists the updated profile. Updates for the same user are
// serialized, replaying a signal counts as a new observation.
func (e *Engine) RecordEngagement(ctx context.Context, userID string, article *domain.Article, signal domain.EngagementKind) error {
	if !signal.Valid() {
		return fmt.Errorf("unknown engagement signal %q", signal)
	}

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	profile, err := e.store.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("get profile for %s: %w", userID, err)
	}

	tags := InferTags(article.Title, article.Body)
	profile.Affinity = UpdateAffinity(profile.Affinity, profile.InterestTags, tags, signal)
	profile.UpdatedAt = e.now()

	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("save profile for %s: %w", userID, err)
	}
	lgr.Printf("[DEBUG] recorded %s engagement for user %s, tags %v", signal, userID, tags)
	return nil
}

// UpdateAffinity returns a new affinity vector with the signal applied to the
// followed tags the article carries, then a decay pass over every tag. Values
// stay within [0, affinityCap] so repeated reinforcement cannot grow without
// bound and unreinforced tags drift back toward zero.
func UpdateAffinity(affinity map[string]float64, interests map[string]bool, tags []string, signal domain.EngagementKind) map[string]float64 {
	updated := make(map[string]float64, len(affinity))
	for tag, v := range affinity {
		updated[tag] = v
	}

	for _, tag := range tags {
		if !interests[tag] {
			continue
		}
		updated[tag] += learningRate * signal.Strength()
	}

	for tag, v := range updated {
		v *= affinityDecay
		if v < 0 {
			v = 0
		}
		if v > affinityCap {
			v = affinityCap
		}
		updated[tag] = v
	}
	return updated
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
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
