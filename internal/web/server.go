package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/fitsched/internal/auth"
	"github.com/example/fitsched/internal/bookings"
	"github.com/example/fitsched/internal/db"
	"github.com/example/fitsched/internal/planning"
	"github.com/example/fitsched/internal/users"
)

// Server is the JSON management API: sessions, users, booking preferences,
// the last captured schedule and the booking attempt log.
type Server struct {
	Auth      *auth.Store
	Users     *users.Repo
	Attempts  *bookings.Repo
	Snapshots *planning.Store

	// TargetDayOffset picks the default date for GET /api/planning when the
	// request carries no date parameter. Matches the monitor's own target.
	TargetDayOffset int

	Metrics http.Handler
	Log     *slog.Logger
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.Handle("GET /api/users", s.Auth.RequireAuth(http.HandlerFunc(s.handleUserList)))
	mux.Handle("POST /api/users", s.Auth.RequireAuth(http.HandlerFunc(s.handleUserCreate)))
	mux.Handle("GET /api/preferences", s.Auth.RequireAuth(http.HandlerFunc(s.handlePrefList)))
	mux.Handle("POST /api/preferences", s.Auth.RequireAuth(http.HandlerFunc(s.handlePrefCreate)))
	mux.Handle("GET /api/planning", s.Auth.RequireAuth(http.HandlerFunc(s.handlePlanning)))
	mux.Handle("GET /api/attempts", s.Auth.RequireAuth(http.HandlerFunc(s.handleAttempts)))

	return mux
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	id, err := s.Auth.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		s.errorJSON(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		s.errorJSON(w, http.StatusInternalServerError, "session encode failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"user_id": id})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

type userResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	SiteLogin   string `json:"site_login,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toUserResponse(u users.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		SiteLogin:   u.SiteLogin,
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	us, err := s.Users.List(r.Context())
	if err != nil {
		s.internalError(w, "list users", err)
		return
	}
	out := make([]userResponse, 0, len(us))
	for _, u := range us {
		out = append(out, toUserResponse(u))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type userCreateRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	DisplayName  string `json:"display_name"`
	SiteLogin    string `json:"site_login"`
	SitePassword string `json:"site_password"`
}

func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		s.errorJSON(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internalError(w, "hash password", err)
		return
	}
	id, err := s.Users.Create(r.Context(), req.Username, hash, req.DisplayName)
	if err != nil {
		s.errorJSON(w, http.StatusConflict, "username already taken")
		return
	}
	if req.SiteLogin != "" {
		if err := s.Users.SetSiteCredentials(r.Context(), id, req.SiteLogin, req.SitePassword); err != nil {
			s.internalError(w, "store site credentials", err)
			return
		}
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type prefResponse struct {
	ID           int64  `json:"id"`
	Weekday      string `json:"weekday"`
	ActivityName string `json:"activity_name"`
}

func (s *Server) handlePrefList(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	prefs, err := s.Users.ListPreferencesByUser(r.Context(), uid)
	if err != nil {
		s.internalError(w, "list preferences", err)
		return
	}
	out := make([]prefResponse, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, prefResponse{ID: p.ID, Weekday: p.Weekday, ActivityName: p.ActivityName})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type prefCreateRequest struct {
	Weekday      string `json:"weekday"`
	ActivityName string `json:"activity_name"`
}

func (s *Server) handlePrefCreate(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var req prefCreateRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	p := users.Preference{UserID: uid, Weekday: req.Weekday, ActivityName: req.ActivityName}
	if err := p.Validate(); err != nil {
		s.errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.Users.CreatePreference(r.Context(), p)
	if err != nil {
		s.internalError(w, "create preference", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type entryResponse struct {
	Weekday      string `json:"weekday"`
	StartTime    string `json:"start_time"`
	ActivityName string `json:"activity_name"`
	Room         string `json:"room,omitempty"`
	Capacity     string `json:"capacity,omitempty"`
	IsFull       bool   `json:"is_full"`
	IsBooked     bool   `json:"is_booked"`
	Signature    string `json:"signature"`
}

type planningResponse struct {
	TargetDate string          `json:"target_date"`
	CapturedAt string          `json:"captured_at"`
	Entries    []entryResponse `json:"entries"`
}

func (s *Server) handlePlanning(w http.ResponseWriter, r *http.Request) {
	date := time.Now().AddDate(0, 0, s.TargetDayOffset)
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			s.errorJSON(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	snap, err := s.Snapshots.Load(r.Context(), date)
	if err != nil {
		s.internalError(w, "load snapshot", err)
		return
	}
	if snap == nil {
		s.errorJSON(w, http.StatusNotFound, "no schedule captured for that date yet")
		return
	}

	resp := planningResponse{
		TargetDate: snap.TargetDate.Format("2006-01-02"),
		CapturedAt: snap.CapturedAt.Format(time.RFC3339),
		Entries:    make([]entryResponse, 0, len(snap.Entries)),
	}
	for _, e := range snap.Entries {
		resp.Entries = append(resp.Entries, entryResponse{
			Weekday:      e.Weekday,
			StartTime:    e.StartTime,
			ActivityName: e.ActivityName,
			Room:         e.Room,
			Capacity:     e.Capacity,
			IsFull:       e.IsFull,
			IsBooked:     e.IsBooked,
			Signature:    e.Signature,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type attemptResponse struct {
	ID             int64   `json:"id"`
	UserID         int64   `json:"user_id"`
	EntrySignature string  `json:"entry_signature"`
	Status         string  `json:"status"`
	AttemptCount   int     `json:"attempt_count"`
	LastError      *string `json:"last_error,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 500 {
			s.errorJSON(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	as, err := s.Attempts.List(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list attempts", err)
		return
	}
	out := make([]attemptResponse, 0, len(as))
	for _, a := range as {
		out = append(out, attemptResponse{
			ID:             a.ID,
			UserID:         a.UserID,
			EntrySignature: a.EntrySignature,
			Status:         string(a.Status),
			AttemptCount:   a.AttemptCount,
			LastError:      a.LastError,
			CreatedAt:      a.CreatedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.errorJSON(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log().Error("encode response", "err", err)
	}
}

func (s *Server) errorJSON(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		s.errorJSON(w, http.StatusNotFound, "not found")
		return
	}
	s.log().Error(op, "err", err)
	s.errorJSON(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// Start serves h on addr until ctx is cancelled, then drains for up to 5s.
func Start(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("management API listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
