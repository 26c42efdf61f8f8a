package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/verist/newscast/pkg/domain"
	"github.com/verist/newscast/pkg/repository"
)

// statusHandler returns server status plus the last run summary when one exists
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
		"running": s.pipeline.Running(),
	}
	if result, ok := s.pipeline.LastResult(); ok {
		status["last_run"] = result.Summary
	}
	RenderJSON(w, r, http.StatusOK, status)
}

// sourcesHandler lists the registered sources
func (s *Server) sourcesHandler(w http.ResponseWriter, r *http.Request) {
	RenderJSON(w, r, http.StatusOK, s.config.DomainSources())
}

// articlesHandler returns the personalized article list for one user from the
// most recent completed run
func (s *Server) articlesHandler(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	result, ok := s.pipeline.LastResult()
	if !ok {
		RenderError(w, r, errors.New("no completed run yet"), http.StatusNotFound)
		return
	}

	articles, ok := result.PerUser[user]
	if !ok {
		RenderError(w, r, fmt.Errorf("no articles for user %s", user), http.StatusNotFound)
		return
	}

	RenderJSON(w, r, http.StatusOK, articles)
}

// engagementRequest reports one engagement event against an article from the
// user's last personalized list
type engagementRequest struct {
	User        string `json:"user"`
	Fingerprint string `json:"fingerprint"`
	Signal      string `json:"signal"`
}

// engagementHandler records an engagement signal and updates the user's
// affinity vector
func (s *Server) engagementHandler(w http.ResponseWriter, r *http.Request) {
	var req engagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RenderError(w, r, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}
	if req.User == "" || req.Fingerprint == "" {
		RenderError(w, r, errors.New("user and fingerprint are required"), http.StatusBadRequest)
		return
	}

	signal := domain.EngagementKind(req.Signal)
	if !signal.Valid() {
		RenderError(w, r, fmt.Errorf("unknown signal %q", req.Signal), http.StatusBadRequest)
		return
	}

	article, found := s.findArticle(req.User, req.Fingerprint)
	if !found {
		RenderError(w, r, fmt.Errorf("article %s not found for user %s", req.Fingerprint, req.User), http.StatusNotFound)
		return
	}

	if err := s.engine.RecordEngagement(r.Context(), req.User, article, signal); err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	RenderJSON(w, r, http.StatusOK, map[string]string{"status": "recorded"})
}

// findArticle locates an article by fingerprint in the user's last
// personalized list
func (s *Server) findArticle(user, fingerprint string) (*domain.Article, bool) {
	result, ok := s.pipeline.LastResult()
	if !ok {
		return nil, false
	}
	for i := range result.PerUser[user] {
		if result.PerUser[user][i].Fingerprint == fingerprint {
			return &result.PerUser[user][i].Article, true
		}
	}
	return nil, false
}

// refreshHandler triggers a pipeline run unless one is already in flight
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if !s.pipeline.TriggerRun(context.WithoutCancel(r.Context())) {
		RenderError(w, r, errors.New("run already in progress"), http.StatusConflict)
		return
	}
	RenderJSON(w, r, http.StatusAccepted, map[string]string{"status": "started"})
}

// listProfilesHandler returns all known user ids
func (s *Server) listProfilesHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := s.profiles.ListUserIDs(r.Context())
	if err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string][]string{"users": ids})
}

// getProfileHandler returns one user profile
func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	profile, err := s.profiles.GetProfile(r.Context(), user)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			RenderError(w, r, err, http.StatusNotFound)
			return
		}
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, profile)
}

// putProfileHandler creates or replaces a user profile. The affinity vector
// is owned by engagement learning and preserved across profile updates.
func (s *Server) putProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	var profile domain.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		RenderError(w, r, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}
	profile.UserID = user

	now := time.Now().UTC()
	profile.UpdatedAt = now

	existing, err := s.profiles.GetProfile(r.Context(), user)
	switch {
	case err == nil:
		profile.CreatedAt = existing.CreatedAt
		profile.Affinity = existing.Affinity
	case errors.Is(err, repository.ErrProfileNotFound):
		profile.CreatedAt = now
	default:
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}

	if err := s.profiles.SaveProfile(r.Context(), &profile); err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, profile)
}

// deleteProfileHandler removes a user profile
func (s *Server) deleteProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")

	if err := s.profiles.DeleteProfile(r.Context(), user); err != nil {
		RenderError(w, r, err, http.StatusInternalServerError)
		return
	}
	RenderJSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}
