package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verist/newscast/pkg/domain"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:newscast.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline" jsonschema:"description=Pipeline run configuration"`

	Summary SummaryConfig `yaml:"summary" json:"summary" jsonschema:"description=External summarizer configuration"`

	Extraction ExtractionConfig `yaml:"extraction" json:"extraction" jsonschema:"description=Full-text extraction configuration"`

	Sources []SourceConfig `yaml:"sources" json:"sources" jsonschema:"description=Registered content sources"`
}

// PipelineConfig holds run-level tuning for the ingestion pipeline
type PipelineConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=5,description=Maximum sources fetched in parallel"`
	RunTimeout      time.Duration `yaml:"run_timeout" json:"run_timeout" jsonschema:"default=5m,description=Deadline for a whole pipeline run"`
	Retention       time.Duration `yaml:"retention" json:"retention" jsonschema:"default=168h,description=Fingerprint history retention window"`
	RecencyLookback time.Duration `yaml:"recency_lookback" json:"recency_lookback" jsonschema:"default=48h,description=Age at which the recency factor reaches zero"`
	DomainKeywords  []string      `yaml:"domain_keywords" json:"domain_keywords" jsonschema:"description=Extra domain keywords merged with the built-in list"`

	Weights struct {
		Authority float64 `yaml:"authority" json:"authority" jsonschema:"default=0.4,description=Weight of source authority in importance score"`
		Recency   float64 `yaml:"recency" json:"recency" jsonschema:"default=0.35,description=Weight of recency in importance score"`
		Density   float64 `yaml:"density" json:"density" jsonschema:"default=0.25,description=Weight of keyword density in importance score"`
	} `yaml:"weights" json:"weights" jsonschema:"description=Importance score weights, must sum to 1"`
}

// SummaryConfig holds the external summarizer collaborator settings.
// The pipeline treats summarizer failures as "summary unavailable",
// never as a reason to drop an article.
type SummaryConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable article summarization"`
	Endpoint    string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint"`
	APIKey      string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model       string        `yaml:"model" json:"model" jsonschema:"description=Model name (e.g. gpt-4o-mini or llama3)"`
	Temperature float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=500,description=Maximum tokens in response"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
}

// ExtractionConfig holds optional full-text extraction settings used to
// enrich the summarizer input
type ExtractionConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Enable full-text extraction"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per article"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Newscast/1.0,description=User agent for HTTP requests"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Minimum text length to consider valid"`
}

// SourceConfig describes a single registered content source
type SourceConfig struct {
	ID         string        `yaml:"id" json:"id" jsonschema:"required,description=Unique source identifier"`
	Kind       string        `yaml:"kind" json:"kind" jsonschema:"required,enum=feed,enum=api,description=Source kind"`
	Endpoint   string        `yaml:"endpoint" json:"endpoint" jsonschema:"required,description=Feed URL or API endpoint"`
	Authority  float64       `yaml:"authority" json:"authority" jsonschema:"default=0.5,minimum=0,maximum=1,description=Source authority weight"`
	MaxItems   int           `yaml:"max_items" json:"max_items" jsonschema:"default=10,description=Maximum items taken per run"`
	Politeness time.Duration `yaml:"politeness" json:"politeness" jsonschema:"default=30s,description=Minimum spacing between fetches against this source"`
	DomainPure bool          `yaml:"domain_pure" json:"domain_pure" jsonschema:"default=false,description=Dedicated AI source that bypasses the relevance gate"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=15s,description=Per-fetch timeout"`

	Headers map[string]string `yaml:"headers" json:"headers,omitempty" jsonschema:"description=Extra request headers sent on every fetch"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// set defaults for server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// set defaults for database
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:newscast.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	// set defaults for pipeline
	if cfg.Pipeline.MaxConcurrent == 0 {
		cfg.Pipeline.MaxConcurrent = 5
	}
	if cfg.Pipeline.RunTimeout == 0 {
		cfg.Pipeline.RunTimeout = 5 * time.Minute
	}
	if cfg.Pipeline.Retention == 0 {
		cfg.Pipeline.Retention = 7 * 24 * time.Hour
	}
	if cfg.Pipeline.RecencyLookback == 0 {
		cfg.Pipeline.RecencyLookback = 48 * time.Hour
	}
	if cfg.Pipeline.Weights.Authority == 0 && cfg.Pipeline.Weights.Recency == 0 && cfg.Pipeline.Weights.Density == 0 {
		cfg.Pipeline.Weights.Authority = 0.4
		cfg.Pipeline.Weights.Recency = 0.35
		cfg.Pipeline.Weights.Density = 0.25
	}

	// set defaults for summary
	if cfg.Summary.Temperature == 0 {
		cfg.Summary.Temperature = 0.3
	}
	if cfg.Summary.MaxTokens == 0 {
		cfg.Summary.MaxTokens = 500
	}
	if cfg.Summary.Timeout == 0 {
		cfg.Summary.Timeout = 30 * time.Second
	}

	// set defaults for extraction
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}
	if cfg.Extraction.UserAgent == "" {
		cfg.Extraction.UserAgent = "Newscast/1.0"
	}
	if cfg.Extraction.MinTextLength == 0 {
		cfg.Extraction.MinTextLength = 100
	}

	// set defaults for sources
	for i := range cfg.Sources {
		if cfg.Sources[i].Authority == 0 {
			cfg.Sources[i].Authority = 0.5
		}
		if cfg.Sources[i].MaxItems == 0 {
			cfg.Sources[i].MaxItems = 10
		}
		if cfg.Sources[i].Politeness == 0 {
			cfg.Sources[i].Politeness = 30 * time.Second
		}
		if cfg.Sources[i].Timeout == 0 {
			cfg.Sources[i].Timeout = 15 * time.Second
		}
	}

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// validate checks configuration for correctness
func validate(cfg *Config) error {

	// validate sources
	seen := make(map[string]bool, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("source id is required")
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
		if src.Kind != string(domain.SourceFeed) && src.Kind != string(domain.SourceAPI) {
			return fmt.Errorf("source %s: kind must be feed or api", src.ID)
		}
		if src.Endpoint == "" {
			return fmt.Errorf("source %s: endpoint is required", src.ID)
		}
		if src.Authority < 0 || src.Authority > 1 {
			return fmt.Errorf("source %s: authority must be between 0 and 1", src.ID)
		}
	}

	// validate pipeline weights
	w := cfg.Pipeline.Weights
	if sum := w.Authority + w.Recency + w.Density; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("pipeline.weights must sum to 1, got %.3f", sum)
	}

	// validate summary config
	if cfg.Summary.Enabled {
		if cfg.Summary.Endpoint == "" {
			return fmt.Errorf("summary.endpoint is required when summary is enabled")
		}
		if cfg.Summary.Model == "" {
			return fmt.Errorf("summary.model is required when summary is enabled")
		}
		if cfg.Summary.Temperature < 0 || cfg.Summary.Temperature > 2 {
			return fmt.Errorf("summary.temperature must be between 0 and 2")
		}
	}

	// validate extraction config
	if cfg.Extraction.Enabled {
		if cfg.Extraction.Timeout < time.Second {
			return fmt.Errorf("extraction timeout must be at least 1 second")
		}
		if cfg.Extraction.MinTextLength < 0 {
			return fmt.Errorf("extraction min_text_length must be non-negative")
		}
	}

	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// GetSummaryConfig returns the summarizer configuration
func (c *Config) GetSummaryConfig() SummaryConfig {
	return c.Summary
}

// GetExtractionConfig returns full-text extraction configuration
func (c *Config) GetExtractionConfig() ExtractionConfig {
	return c.Extraction
}

// DomainSources converts the configured sources to domain values
func (c *Config) DomainSources() []domain.Source {
	sources := make([]domain.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		sources = append(sources, domain.Source{
			ID:              s.ID,
			Kind:            domain.SourceKind(s.Kind),
			Endpoint:        s.Endpoint,
			AuthorityWeight: s.Authority,
			MaxItemsPerRun:  s.MaxItems,
			Politeness:      s.Politeness,
			DomainPure:      s.DomainPure,
			Timeout:         s.Timeout,
			Headers:         s.Headers,
		})
	}
	return sources
}
