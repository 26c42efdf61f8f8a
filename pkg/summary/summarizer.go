package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/verist/newscast/pkg/config"
	"github.com/verist/newscast/pkg/domain"
)

// Summarizer produces article summaries through an OpenAI-compatible API.
// The pipeline treats any error here as "summary unavailable", articles are
// never dropped because summarization failed.
type Summarizer struct {
	client *openai.Client
	config config.SummaryConfig
}

// NewSummarizer creates a summarizer from the given configuration
func NewSummarizer(cfg config.SummaryConfig) *Summarizer {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	return &Summarizer{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

const systemPrompt = `You summarize news articles about artificial intelligence.

Respond with a JSON object:
- summary: 2-4 sentences capturing the key facts and findings (300-500 chars). Write directly about the content itself. NEVER use phrases like "The article discusses" or "The piece covers". Start with the actual subject matter.
- keywords: array of 3-7 lowercase keywords that describe the content.

Example response:
{"summary": "OpenAI releases GPT-5 with a 2M token context window and native tool use. Benchmark results show 30% improvement on reasoning tasks over the previous generation. API pricing stays unchanged for existing tiers.", "keywords": ["openai", "gpt-5", "llm", "benchmarks"]}`

// Summarize produces a summary and derived keywords for one article
func (s *Summarizer) Summarize(ctx context.Context, article *domain.Article) (*domain.SummaryResult, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	prompt := s.buildPrompt(article)

	// retry up to 3 times if we get invalid JSON
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req := openai.ChatCompletionRequest{
			Model:       s.config.Model,
			Temperature: float32(s.config.Temperature),
			MaxTokens:   s.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		}

		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("summarizer request failed: %w", err)
		}

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response from summarizer")
		}

		result, err := parseResponse(resp.Choices[0].Message.Content)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed after 3 attempts: %w", lastErr)
}

func (s *Summarizer) buildPrompt(article *domain.Article) string {
	var sb strings.Builder
	sb.WriteString("Summarize this article:\n\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", article.Title))
	if article.Body != "" {
		// limit body to keep the request bounded
		body := article.Body
		if len(body) > 2000 {
			body = body[:2000] + "..."
		}
		sb.WriteString(fmt.Sprintf("Content: %s\n", body))
	}
	return sb.String()
}

// parseResponse extracts the JSON object from the model output, tolerating
// markdown code fences and surrounding prose
func parseResponse(content string) (*domain.SummaryResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no json object found in response")
	}

	var parsed struct {
		Summary  string   `json:"summary"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse json response: %w", err)
	}

	if parsed.Summary == "" {
		return nil, fmt.Errorf("empty summary in response")
	}

	for i, kw := range parsed.Keywords {
		parsed.Keywords[i] = strings.ToLower(strings.TrimSpace(kw))
	}

	return &domain.SummaryResult{Text: parsed.Summary, Keywords: parsed.Keywords}, nil
}
