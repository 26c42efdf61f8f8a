package domain

import "time"

// SourceKind identifies how a source is fetched
type SourceKind string

const (
	// SourceFeed is an RSS/Atom feed source
	SourceFeed SourceKind = "feed"
	// SourceAPI is a JSON API source
	SourceAPI SourceKind = "api"
)

// Source represents a registered content source. Immutable within a run,
// replaced only by configuration reload between runs.
type Source struct {
	ID              string
	Kind            SourceKind
	Endpoint        string
	AuthorityWeight float64 // [0,1], higher wins on duplicate stories
	MaxItemsPerRun  int
	Politeness      time.Duration // minimum spacing between fetches against this source
	DomainPure      bool          // dedicated AI source, bypasses the relevance gate
	Timeout         time.Duration
	Headers         map[string]string // extra request headers, e.g. auth tokens
}

// RawItem is a source-kind-specific payload before normalization.
// Never persisted, consumed immediately by the normalizer.
type RawItem struct {
	Title       string
	Description string
	Link        string
	GUID        string
	Author      string
	ImageURL    string
	Published   time.Time
}
