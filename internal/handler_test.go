package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/sling-hockey/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (http.Handler, *internal.Registry) {
	t.Helper()
	registry := internal.NewRegistry(discardLogger(), internal.DefaultGameConfig(), 0)
	hub := internal.NewHub(discardLogger())
	return internal.NewHandler(registry, hub, discardLogger()).Routes(), registry
}

// TestHandler_Health 測試存活端點
func TestHandler_Health(t *testing.T) {
	routes, registry := newTestHandler(t)
	_, err := registry.CreateRoom("host-1", "房主", true, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["active_rooms"])
	assert.Equal(t, float64(0), body["connections"])
}

// TestHandler_Stats 測試統計端點
func TestHandler_Stats(t *testing.T) {
	routes, registry := newTestHandler(t)
	_, err := registry.CreateRoom("host-1", "房主", true, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["total_rooms"])
	assert.Equal(t, float64(1), body["total_players"])
}

// TestHandler_MethodNotAllowed 只接受 GET
func TestHandler_MethodNotAllowed(t *testing.T) {
	routes, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
