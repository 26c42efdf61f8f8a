package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/verist/newscast/pkg/config"
	"github.com/verist/newscast/pkg/content"
	"github.com/verist/newscast/pkg/dedup"
	"github.com/verist/newscast/pkg/fetcher"
	"github.com/verist/newscast/pkg/normalize"
	"github.com/verist/newscast/pkg/personalize"
	"github.com/verist/newscast/pkg/pipeline"
	"github.com/verist/newscast/pkg/relevance"
	"github.com/verist/newscast/pkg/repository"
	"github.com/verist/newscast/pkg/scoring"
	"github.com/verist/newscast/pkg/summary"
	"github.com/verist/newscast/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"config file path"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address, overrides config"`
	Once   bool   `long:"once" description:"run the pipeline once and exit"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	if opts.NoColor {
		color.NoColor = true
	}

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

func run(ctx context.Context, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	setupLog(opts.Debug, cfg.Summary.APIKey)
	log.Printf("[INFO] starting newscast version %s", revision)

	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			log.Printf("[WARN] database close error: %v", err)
		}
	}()

	orch := makeOrchestrator(cfg, repos)
	engine := personalize.NewEngine(repos.Profile)

	if opts.Once {
		result, err := orch.Run(ctx)
		if err != nil {
			return fmt.Errorf("pipeline run: %w", err)
		}
		log.Printf("[INFO] run finished: %d articles admitted, %d users personalized, %d sources failed",
			result.Summary.ArticlesAdmitted, result.Summary.UsersPersonalized, result.Summary.SourcesFailed)
		return nil
	}

	srv := server.New(cfg, orch, engine, repos.Profile, revision, opts.Debug)
	return srv.Run(ctx)
}

// makeOrchestrator wires the pipeline stages from configuration
func makeOrchestrator(cfg *config.Config, repos *repository.Repositories) *pipeline.Orchestrator {
	filter := relevance.NewFilter(cfg.Pipeline.DomainKeywords...)

	weights := scoring.Weights{
		Authority: cfg.Pipeline.Weights.Authority,
		Recency:   cfg.Pipeline.Weights.Recency,
		Density:   cfg.Pipeline.Weights.Density,
	}

	pcfg := pipeline.Config{
		Sources: cfg,
		Fetcher: fetcher.NewRegistry(
			fetcher.NewFeedFetcher(30*time.Second, "Newscast/1.0"),
			fetcher.NewAPIFetcher(30*time.Second, "Newscast/1.0"),
		),
		Normalizer:    normalize.New(),
		Deduper:       dedup.New(repos.Fingerprint, cfg.Pipeline.Retention),
		Relevance:     filter,
		Scorer:        scoring.NewScorer(weights, cfg.Pipeline.RecencyLookback, filter),
		Personalizer:  personalize.NewEngine(repos.Profile),
		Profiles:      repos.Profile,
		MaxConcurrent: cfg.Pipeline.MaxConcurrent,
		RunTimeout:    cfg.Pipeline.RunTimeout,
	}

	if cfg.Summary.Enabled {
		pcfg.Summarizer = summary.NewSummarizer(cfg.GetSummaryConfig())
	}
	if cfg.Extraction.Enabled {
		pcfg.Extractor = content.NewHTTPExtractor(cfg.GetExtractionConfig())
	}

	return pipeline.NewOrchestrator(pcfg)
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	for _, s := range secs {
		if s != "" {
			logOpts = append(logOpts, lgr.Secret(s))
		}
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
