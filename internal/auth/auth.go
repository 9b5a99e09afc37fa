package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/fitsched/internal/users"
)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords,
// so login responses do not leak which one it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	cookieName = "fitsched_session"
	sessionTTL = 14 * 24 * time.Hour
)

type ctxKey string

const userIDKey ctxKey = "userID"

type Session struct {
	UserID int64
}

// Store authenticates management-API users and issues session cookies.
type Store struct {
	sc    *securecookie.SecureCookie
	users *users.Repo
}

func NewStore(repo *users.Repo, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Store{sc: sc, users: repo}
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func (s *Store) Authenticate(ctx context.Context, username, password string) (int64, error) {
	u, hash, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return 0, ErrInvalidCredentials
	}
	if !CheckPassword(hash, password) {
		return 0, ErrInvalidCredentials
	}
	return u.ID, nil
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	encoded, err := s.sc.Encode(cookieName, Session{UserID: userID})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := s.sc.Decode(cookieName, c.Value, &sess); err != nil {
		return Session{}, false
	}
	if sess.UserID <= 0 {
		return Session{}, false
	}
	return sess, true
}

// RequireAuth gates a JSON handler behind a valid session cookie.
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.GetSession(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(userIDKey).(int64)
	return uid, ok
}
