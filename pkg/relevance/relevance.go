package relevance

import (
	"strings"

	"github.com/verist/newscast/pkg/domain"
)

// DomainKeywords is the fixed AI-news vocabulary: model names, companies and
// technical terms. An article from a general-purpose source is relevant when
// its text contains at least one of these, case-insensitive.
var DomainKeywords = []string{
	"artificial intelligence",
	"machine learning",
	"deep learning",
	"neural network",
	"large language model",
	"llm",
	"gpt",
	"chatgpt",
	"claude",
	"gemini",
	"llama",
	"transformer",
	"openai",
	"anthropic",
	"deepmind",
	"hugging face",
	"nvidia",
	"computer vision",
	"natural language processing",
	"nlp",
	"reinforcement learning",
	"generative ai",
	"diffusion model",
	"fine-tuning",
	"inference",
	"autonomous driving",
	"robotics",
	"ai chip",
	"ai safety",
	"agi",
}

// Filter is the boolean domain gate. Domain-pure sources bypass it entirely.
type Filter struct {
	keywords []string
}

// NewFilter creates a filter over the built-in vocabulary plus any extra
// configured keywords
func NewFilter(extra ...string) *Filter {
	keywords := make([]string, 0, len(DomainKeywords)+len(extra))
	keywords = append(keywords, DomainKeywords...)
	for _, kw := range extra {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &Filter{keywords: keywords}
}

// IsRelevant reports whether the article belongs in the AI-news domain.
// Sources flagged domain-pure are always relevant; everything else passes
// through a logical OR over the keyword list, no scoring.
func (f *Filter) IsRelevant(a *domain.Article, src domain.Source) bool {
	if src.DomainPure {
		return true
	}

	text := strings.ToLower(a.Title + " " + a.Body)
	for _, kw := range f.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// MatchCount returns how many domain keywords appear in the text, used by the
// importance scorer for keyword density
func (f *Filter) MatchCount(text string) int {
	text = strings.ToLower(text)
	count := 0
	for _, kw := range f.keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}
