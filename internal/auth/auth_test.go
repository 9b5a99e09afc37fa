package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore() *Store {
	return NewStore(nil, securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestSessionRoundTrip(t *testing.T) {
	s := testStore()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	require.NoError(t, s.SetSession(w, r, 42))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "fitsched_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	r2 := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	r2.AddCookie(cookies[0])
	sess, ok := s.GetSession(r2)
	require.True(t, ok)
	assert.Equal(t, int64(42), sess.UserID)
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	s := testStore()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "fitsched_session", Value: "not-a-real-session"})
	_, ok := s.GetSession(r)
	assert.False(t, ok)
}

func TestSessionNotSharedAcrossKeys(t *testing.T) {
	a := testStore()
	b := testStore()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	require.NoError(t, a.SetSession(w, r, 7))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.AddCookie(w.Result().Cookies()[0])
	_, ok := b.GetSession(r2)
	assert.False(t, ok)
}

func TestRequireAuth(t *testing.T) {
	s := testStore()
	var gotUID int64
	h := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/preferences", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	login := httptest.NewRecorder()
	require.NoError(t, s.SetSession(login, httptest.NewRequest(http.MethodPost, "/api/login", nil), 9))

	r := httptest.NewRequest(http.MethodGet, "/api/preferences", nil)
	r.AddCookie(login.Result().Cookies()[0])
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(9), gotUID)
}
