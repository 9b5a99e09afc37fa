package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"

	"github.com/example/fitsched/internal/auth"
)

// handler wiring only; the repo-backed handlers need a database
func testServer() *Server {
	return &Server{
		Auth: auth.NewStore(nil, securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32)),
	}
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	testServer().Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := testServer().Routes()
	for _, path := range []string{"/api/users", "/api/preferences", "/api/planning", "/api/attempts"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"), path)
	}
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("{not json"))
	testServer().Routes().ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "malformed JSON")
}

func TestMetricsRouteOnlyWhenConfigured(t *testing.T) {
	w := httptest.NewRecorder()
	testServer().Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	s := testServer()
	s.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	w = httptest.NewRecorder()
	s.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
