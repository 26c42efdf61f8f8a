package normalize

import (
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/verist/newscast/pkg/domain"
)

// Normalizer maps heterogeneous raw items into the single Article shape.
// It is purely functional over its inputs and safe for concurrent use.
type Normalizer struct {
	policy *bluemonday.Policy
	now    func() time.Time
}

// New creates a normalizer
func New() *Normalizer {
	return &Normalizer{
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
	}
}

// Normalize converts a raw item into an article. Returns nil when required
// fields are missing - a dropped item, not an error. Malformed timestamps
// default to fetch time.
func (n *Normalizer) Normalize(raw domain.RawItem, src domain.Source) *domain.Article {
	title := strings.TrimSpace(n.stripHTML(raw.Title))
	if title == "" {
		return nil
	}

	link := strings.TrimSpace(raw.Link)
	if link == "" && strings.TrimSpace(raw.GUID) == "" {
		return nil
	}

	fetchedAt := n.now().UTC()
	published := raw.Published.UTC()
	if raw.Published.IsZero() {
		published = fetchedAt
	}

	body := strings.TrimSpace(n.stripHTML(raw.Description))

	article := &domain.Article{
		Title:     title,
		Body:      body,
		URL:       link,
		SourceID:  src.ID,
		Author:    strings.TrimSpace(raw.Author),
		ImageURL:  strings.TrimSpace(raw.ImageURL),
		Published: published,
		FetchedAt: fetchedAt,
		Keywords:  ExtractKeywords(title + " " + body),
	}
	return article
}

// stripHTML removes markup and resolves entities so keyword extraction and
// fingerprinting see plain text
func (n *Normalizer) stripHTML(s string) string {
	if s == "" {
		return ""
	}
	return html.UnescapeString(n.policy.Sanitize(s))
}

// ExtractKeywords tokenizes text into a cheap keyword set: lowercase,
// stopwords removed, short tokens dropped, first occurrence order preserved.
// This is the heuristic set, not the scoring keyword match.
func ExtractKeywords(text string) []string {
	const maxKeywords = 30

	var keywords []string
	seen := make(map[string]bool)

	for _, tok := range Tokenize(text) {
		if len(tok) < 3 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
		if len(keywords) >= maxKeywords {
			break
		}
	}
	return keywords
}

// Tokenize splits text into lowercase word tokens
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// stopwords is a minimal english stopword list, enough to keep the cheap
// keyword set from filling up with glue words
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "his": true,
	"has": true, "have": true, "had": true, "this": true, "that": true,
	"with": true, "from": true, "they": true, "will": true, "would": true,
	"there": true, "their": true, "what": true, "about": true, "which": true,
	"when": true, "them": true, "then": true, "than": true, "were": true,
	"been": true, "being": true, "into": true, "more": true, "some": true,
	"could": true, "other": true, "after": true, "first": true, "also": true,
	"its": true, "how": true, "now": true, "over": true, "new": true,
	"says": true, "said": true, "here": true, "why": true, "your": true,
}
