package domain

import "time"

// Article is the normalized unit flowing through the pipeline. Created by the
// normalizer, enriched by the relevance filter and importance scorer, read-only
// afterward.
type Article struct {
	Fingerprint     string
	Title           string
	Body            string
	URL             string
	SourceID        string
	Author          string
	ImageURL        string
	Published       time.Time
	FetchedAt       time.Time
	Keywords        []string
	ImportanceScore float64 // [0,1]
	Relevant        bool
}

// HasKeyword reports whether the article carries the given keyword.
// Extracted keywords are stored lowercased, callers pass lowercase.
func (a *Article) HasKeyword(kw string) bool {
	for _, k := range a.Keywords {
		if k == kw {
			return true
		}
	}
	return false
}

// SummaryResult is what the external summarizer collaborator returns
type SummaryResult struct {
	Text     string
	Keywords []string
}

// PersonalizedArticle is an article tailored to a single user, carrying the
// per-user effective score and the summary when one is available.
type PersonalizedArticle struct {
	Article
	EffectiveScore  float64
	Summary         string
	SummaryKeywords []string
	Tags            []string
}

// RunSummary reports what happened during a single pipeline run. Partial
// failures are counted here, never silently swallowed.
type RunSummary struct {
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	SourcesOK         int           `json:"sources_ok"`
	SourcesFailed     int           `json:"sources_failed"`
	ItemsFetched      int           `json:"items_fetched"`
	ItemsDropped      int           `json:"items_dropped"`
	Duplicates        int           `json:"duplicates"`
	Irrelevant        int           `json:"irrelevant"`
	ArticlesAdmitted  int           `json:"articles_admitted"`
	UsersPersonalized int           `json:"users_personalized"`
	UsersSkipped      int           `json:"users_skipped"`
}
