package domain

import "time"

// EngagementKind is a discrete engagement signal reported by the delivery side
type EngagementKind string

const (
	EngagementViewed  EngagementKind = "viewed"
	EngagementOpened  EngagementKind = "opened"
	EngagementIgnored EngagementKind = "ignored"
)

// Strength maps the signal to a learning weight. Ignored articles pull the
// affinity down, viewed and opened reinforce it.
func (e EngagementKind) Strength() float64 {
	switch e {
	case EngagementViewed:
		return 0.5
	case EngagementOpened:
		return 1.0
	case EngagementIgnored:
		return -0.5
	}
	return 0
}

// Valid reports whether the signal is one of the known kinds
func (e EngagementKind) Valid() bool {
	return e == EngagementViewed || e == EngagementOpened || e == EngagementIgnored
}

// KeywordFilters holds per-user keyword gates. Exclude is a hard drop,
// include and priority boost the effective score.
type KeywordFilters struct {
	Include  []string `json:"include"`
	Exclude  []string `json:"exclude"`
	Priority []string `json:"priority"`
}

// UserProfile holds everything the personalization engine knows about a user.
// Affinity is the only field mutated outside explicit user configuration, and
// only by the engine's engagement learning.
type UserProfile struct {
	UserID        string             `json:"user_id"`
	InterestTags  map[string]bool    `json:"interest_tags"`
	Filters       KeywordFilters     `json:"keyword_filters"`
	SourceWeights map[string]float64 `json:"source_weights"`
	Affinity      map[string]float64 `json:"affinity_vector"`
	MinImportance float64            `json:"min_importance_score"`
	MaxDailyItems int                `json:"max_daily_items"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// SourceWeight returns the user's weight for a source, 1.0 when unset
func (p *UserProfile) SourceWeight(sourceID string) float64 {
	if p.SourceWeights == nil {
		return 1.0
	}
	if w, ok := p.SourceWeights[sourceID]; ok {
		return w
	}
	return 1.0
}
