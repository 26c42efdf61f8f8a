package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/verist/newscast/pkg/domain"
	"github.com/verist/newscast/pkg/normalize"
)

// Fingerprint derives the deterministic dedup key for an article: normalized
// title plus canonicalized URL, or a title+body content hash when the URL is
// absent. Two articles with equal fingerprints are the same story regardless
// of which source delivered them.
func Fingerprint(a *domain.Article) string {
	title := normalizeTitle(a.Title)

	var identity string
	if canonical := CanonicalURL(a.URL); canonical != "" {
		identity = title + "|" + canonical
	} else {
		identity = title + "|" + normalizeTitle(a.Body)
	}

	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL reduces a URL to its stable identity: lowercase host, https
// scheme, no fragment, no tracking parameters, no trailing slash. Returns ""
// for unparseable or empty input.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// drop tracking parameters, keep the rest sorted for determinism
	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") || lk == "ref" || lk == "source" || lk == "fbclid" || lk == "gclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// normalizeTitle lowercases and collapses a title to its word tokens so
// punctuation and spacing differences between sources don't split fingerprints
func normalizeTitle(title string) string {
	return strings.Join(normalize.Tokenize(title), " ")
}
