package personalize

import "strings"

// tagVocabulary maps interest tags to the phrases that signal them in article
// text. A tag counts as inferred when any of its phrases appears in the
// lowercased title or body.
var tagVocabulary = map[string][]string{
	"ai_models":          {"gpt", "chatgpt", "claude", "llama", "gemini", "language model", "foundation model"},
	"machine_learning":   {"machine learning", "ml model", "algorithm", "training data"},
	"deep_learning":      {"deep learning", "neural network", "transformer"},
	"computer_vision":    {"computer vision", "image recognition", "object detection"},
	"nlp":                {"nlp", "natural language", "text processing", "speech recognition"},
	"robotics":           {"robot", "robotics", "automation", "humanoid"},
	"autonomous_driving": {"autonomous", "self-driving", "driverless", "tesla"},
	"ai_chips":           {"chip", "gpu", "nvidia", "semiconductor", "processor", "tpu"},
	"ai_startups":        {"startup", "founder", "seed round", "venture"},
	"ai_investment":      {"investment", "funding", "valuation", "ipo", "acquisition"},
	"ai_ethics":          {"ethics", "bias", "fairness", "alignment", "safety"},
	"ai_regulation":      {"regulation", "policy", "compliance", "antitrust", "law"},
}

// InferTags returns the interest tags whose vocabulary matches the article
// text. Order is not guaranteed, callers sort when presenting.
func InferTags(title, body string) []string {
	content := strings.ToLower(title + " " + body)
	var tags []string
	for tag, phrases := range tagVocabulary {
		for _, phrase := range phrases {
			if strings.Contains(content, phrase) {
				tags = append(tags, tag)
				break
			}
		}
	}
	return tags
}

// KnownTags lists every tag the engine can infer
func KnownTags() []string {
	tags := make([]string, 0, len(tagVocabulary))
	for tag := range tagVocabulary {
		tags = append(tags, tag)
	}
	return tags
}
