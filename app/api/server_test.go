package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/scheduler"
	"github.com/knosm/pixisync/app/settings"
)

type stubDispatcher struct {
	triggered []string
	refreshed int
}

func (s *stubDispatcher) Trigger(collectType string) (*scheduler.Job, error) {
	if collectType == "bogus" {
		return nil, assert.AnError
	}
	s.triggered = append(s.triggered, collectType)
	return &scheduler.Job{ID: "job-1", CollectType: collectType}, nil
}

func (s *stubDispatcher) Refresh() { s.refreshed++ }

func newTestServer(t *testing.T) (*gin.Engine, *stubDispatcher) {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	dispatcher := &stubDispatcher{}
	handler := NewHandler(
		database.NewArtworkRepository(db),
		database.NewFollowRepository(db),
		database.NewCollectionLogRepository(db),
		database.NewSchedulerConfigRepository(db),
		settings.NewStore(database.NewSystemConfigRepository(db)),
		dispatcher,
	)

	return NewServer(handler, "secret"), dispatcher
}

func TestHealthEndpointIsPublic(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresKey(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/artworks", nil)
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/artworks", nil)
	req.Header.Set("X-API-Key", "wrong")
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/artworks", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIBearerTokenAccepted(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerCollectReturnsAccepted(t *testing.T) {
	server, dispatcher := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/collect/ranking_works", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"ranking_works"}, dispatcher.triggered)
	assert.Contains(t, w.Body.String(), "job-1")
}

func TestTriggerCollectRejectsUnknownType(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/collect/bogus", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateSchedulerConfigValidatesCron(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/scheduler/configs/ranking_works",
		strings.NewReader(`{"cron_expression": "not a cron", "is_active": true}`))
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set("Content-Type", "application/json")
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAndReadSettings(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"api_delay_min": 2.5, "update_max_per_run": 100, "invalid_artwork_action": "keep"}`))
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set("Content-Type", "application/json")
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"update_max_per_run":100`)
	assert.Contains(t, w.Body.String(), `"invalid_artwork_action":"keep"`)
}

func TestSettingsResponseOmitsTokens(t *testing.T) {
	server, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/settings",
		strings.NewReader(`{"access_token": "oops"}`))
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set("Content-Type", "application/json")
	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)
	assert.NotContains(t, w.Body.String(), "oops")
}
