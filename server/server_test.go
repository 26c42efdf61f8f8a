package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verist/newscast/pkg/domain"
	"github.com/verist/newscast/pkg/pipeline"
	"github.com/verist/newscast/pkg/repository"
)

type stubConfig struct{ sources []domain.Source }

func (s *stubConfig) GetServerConfig() (string, time.Duration) { return "127.0.0.1:0", 30 * time.Second }
func (s *stubConfig) DomainSources() []domain.Source           { return s.sources }

type stubPipeline struct {
	result    *pipeline.Result
	running   bool
	triggered bool
}

func (s *stubPipeline) TriggerRun(_ context.Context) bool {
	if s.running {
		return false
	}
	s.triggered = true
	return true
}

func (s *stubPipeline) LastResult() (*pipeline.Result, bool) {
	if s.result == nil {
		return nil, false
	}
	return s.result, true
}

func (s *stubPipeline) Running() bool { return s.running }

type stubEngagement struct {
	lastUser   string
	lastSignal domain.EngagementKind
	err        error
}

func (s *stubEngagement) RecordEngagement(_ context.Context, userID string, _ *domain.Article, signal domain.EngagementKind) error {
	if s.err != nil {
		return s.err
	}
	s.lastUser = userID
	s.lastSignal = signal
	return nil
}

type stubProfiles struct {
	profiles map[string]*domain.UserProfile
	saveErr  error
}

func (s *stubProfiles) GetProfile(_ context.Context, userID string) (*domain.UserProfile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrProfileNotFound, userID)
	}
	return p, nil
}

func (s *stubProfiles) SaveProfile(_ context.Context, profile *domain.UserProfile) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *stubProfiles) DeleteProfile(_ context.Context, userID string) error {
	delete(s.profiles, userID)
	return nil
}

func (s *stubProfiles) ListUserIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	return ids, nil
}

func testResult() *pipeline.Result {
	return &pipeline.Result{
		PerUser: map[string][]domain.PersonalizedArticle{
			"alice": {
				{
					Article: domain.Article{
						Fingerprint: "fp-1",
						Title:       "OpenAI model launch",
						URL:         "https://example.com/launch",
						SourceID:    "hn",
					},
					EffectiveScore: 0.8,
				},
			},
		},
		Summary: domain.RunSummary{SourcesOK: 1, ArticlesAdmitted: 1, UsersPersonalized: 1},
	}
}

func newTestServer(pl *stubPipeline, engine *stubEngagement, profiles *stubProfiles) *Server {
	cfg := &stubConfig{sources: []domain.Source{{ID: "hn", Kind: domain.SourceFeed, AuthorityWeight: 0.8}}}
	return New(cfg, pl, engine, profiles, "test", false)
}

func TestServer_Status(t *testing.T) {
	pl := &stubPipeline{result: testResult()}
	s := newTestServer(pl, &stubEngagement{}, &stubProfiles{profiles: map[string]*domain.UserProfile{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", http.NoBody)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Contains(t, body, "last_run")
}

func TestServer_Sources(t *testing.T) {
	s := newTestServer(&stubPipeline{}, &stubEngagement{}, &stubProfiles{profiles: map[string]*domain.UserProfile{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources", http.NoBody)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var sources []domain.Source
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, "hn", sources[0].ID)
}

func TestServer_Articles(t *testing.T) {
	pl := &stubPipeline{result: testResult()}
	s := newTestServer(pl, &stubEngagement{}, &stubProfiles{profiles: map[string]*domain.UserProfile{}})

	t.Run("known user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/articles/alice", http.NoBody)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var articles []domain.PersonalizedArticle
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &articles))
		require.Len(t, articles, 1)
		assert.Equal(t, "OpenAI model launch", articles[0].Title)
	})

	t.Run("unknown user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/articles/nobody", http.NoBody)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no run yet", func(t *testing.T) {
		empty := newTestServer(&stubPipeline{}, &stubEngagement{}, &stubProfiles{profiles: map[string]*domain.UserProfile{}})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/articles/alice", http.NoBody)
		rec := httptest.NewRecorder()
		empty.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_Engagement(t *testing.T) {
	pl := &stubPipeline{result: testResult()}
	engine := &stubEngagement{}
	s := newTestServer(pl, engine, &stubProfiles{profiles: map[string]*domain.UserProfile{}})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/engagement", strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid", func(t *testing.T) {
		rec := post(`{"user":"alice","fingerprint":"fp-1","signal":"opened"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", engine.lastUser)
		assert.Equal(t, domain.EngagementOpened, engine.lastSignal)
	})

	t.Run("unknown signal", func(t *testing.T) {
		rec := post(`{"user":"alice","fingerprint":"fp-1","signal":"teleported"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := post(`{"signal":"viewed"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown fingerprint", func(t *testing.T) {
		rec := post(`{"user":"alice","fingerprint":"fp-404","signal":"viewed"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad json", func(t *testing.T) {
		rec := post(`{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Refresh(t *testing.T) {
	t.Run("triggers run", func(t *testing.T) {
		pl := &stubPipeline{}
		s := newTestServer(pl, &stubEngagement{}, &stubProfiles{profiles: map[string]*domain.UserProfile{}})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", http.NoBody)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.True(t, pl.triggered)
	})

	t.Run("conflict while running", func(t *testing.T) {
		pl := &stubPipeline{running: true}
		s := newTestServer(pl, &stubEngagement{}, &stubProfiles{profiles: map[string]*domain.UserProfile{}})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", http.NoBody)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestServer_Profiles(t *testing.T) {
	profiles := &stubProfiles{profiles: map[string]*domain.UserProfile{
		"alice": {
			UserID:       "alice",
			InterestTags: map[string]bool{"ai_models": true},
			Affinity:     map[string]float64{"ai_models": 1.2},
			CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}}
	s := newTestServer(&stubPipeline{}, &stubEngagement{}, profiles)

	t.Run("get", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/alice", http.NoBody)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var p domain.UserProfile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, "alice", p.UserID)
		assert.True(t, p.InterestTags["ai_models"])
	})

	t.Run("get missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/nobody", http.NoBody)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("put preserves affinity", func(t *testing.T) {
		update := domain.UserProfile{
			InterestTags:  map[string]bool{"robotics": true},
			Affinity:      map[string]float64{"robotics": 99}, // must be ignored
			MaxDailyItems: 7,
		}
		body, err := json.Marshal(update)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/profiles/alice", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		saved := profiles.profiles["alice"]
		assert.Equal(t, 7, saved.MaxDailyItems)
		assert.True(t, saved.InterestTags["robotics"])
		// affinity is written only by engagement learning
		assert.InDelta(t, 1.2, saved.Affinity["ai_models"], 0.0001)
		assert.NotContains(t, saved.Affinity, "robotics")
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), saved.CreatedAt)
	})

	t.Run("put creates new", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/profiles/bob", strings.NewReader(`{"max_daily_items":3}`))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, profiles.profiles, "bob")
		assert.False(t, profiles.profiles["bob"].CreatedAt.IsZero())
	})

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles", http.NoBody)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string][]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.ElementsMatch(t, []string{"alice", "bob"}, body["users"])
	})

	t.Run("delete", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/profiles/bob", http.NoBody)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, profiles.profiles, "bob")
	})
}

func TestServer_Ping(t *testing.T) {
	s := newTestServer(&stubPipeline{}, &stubEngagement{}, &stubProfiles{profiles: map[string]*domain.UserProfile{}})

	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", strings.TrimSpace(rec.Body.String()))
}
