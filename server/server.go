package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/verist/newscast/pkg/domain"
	"github.com/verist/newscast/pkg/pipeline"
)

// Server represents HTTP server instance
type Server struct {
	config   ConfigProvider
	pipeline Pipeline
	engine   Engagement
	profiles ProfileStore
	version  string
	debug    bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Pipeline exposes run control and the latest run output
type Pipeline interface {
	TriggerRun(ctx context.Context) bool
	LastResult() (*pipeline.Result, bool)
	Running() bool
}

// Engagement records user engagement signals for affinity learning
type Engagement interface {
	RecordEngagement(ctx context.Context, userID string, article *domain.Article, signal domain.EngagementKind) error
}

// ProfileStore provides user profile access for the profile endpoints
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	SaveProfile(ctx context.Context, profile *domain.UserProfile) error
	DeleteProfile(ctx context.Context, userID string) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// ConfigProvider provides server configuration and the source registry
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
	DomainSources() []domain.Source
}

// New initializes a new server instance
func New(cfg ConfigProvider, pl Pipeline, engine Engagement, profiles ProfileStore, version string, debug bool) *Server {
	s := &Server{
		config:   cfg,
		pipeline: pl,
		engine:   engine,
		profiles: profiles,
		version:  version,
		debug:    debug,
		router:   routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("newscast", "verist", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("GET /sources", s.sourcesHandler)
		r.HandleFunc("GET /articles/{user}", s.articlesHandler)
		r.HandleFunc("POST /engagement", s.engagementHandler)
		r.HandleFunc("POST /refresh", s.refreshHandler)
		r.HandleFunc("GET /profiles", s.listProfilesHandler)
		r.HandleFunc("GET /profiles/{user}", s.getProfileHandler)
		r.HandleFunc("PUT /profiles/{user}", s.putProfileHandler)
		r.HandleFunc("DELETE /profiles/{user}", s.deleteProfileHandler)
	})
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// RenderError sends error response as JSON
func RenderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	RenderJSON(w, r, code, map[string]string{"error": errMsg})
}
