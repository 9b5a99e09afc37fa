package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/fitsched/internal/crypto"
	"github.com/example/fitsched/internal/db"
	"github.com/example/fitsched/internal/planning"
)

// User is a registered member the engine can notify and book for. Site
// credentials are stored sealed; SiteCredentials unseals them on demand.
type User struct {
	ID          int64
	Username    string
	DisplayName string
	SiteLogin   string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	sitePasswordSealed string
}

// Credentials is a clear-text site login pair, held only for the duration of
// a booking attempt.
type Credentials struct {
	Login    string
	Password string
}

// Preference is a standing request: book this activity whenever it opens on
// this weekday.
type Preference struct {
	ID           int64
	UserID       int64
	Weekday      string
	ActivityName string
	CreatedAt    time.Time
}

func (p Preference) Validate() error {
	if p.UserID == 0 {
		return fmt.Errorf("user_id required")
	}
	if _, ok := planning.NormalizeWeekday(p.Weekday); !ok {
		return fmt.Errorf("unknown weekday %q", p.Weekday)
	}
	if strings.TrimSpace(p.ActivityName) == "" {
		return fmt.Errorf("activity_name required")
	}
	return nil
}

type Repo struct {
	db     *db.DB
	sealer *crypto.Sealer
}

func NewRepo(d *db.DB, sealer *crypto.Sealer) *Repo {
	return &Repo{db: d, sealer: sealer}
}

func (r *Repo) Create(ctx context.Context, username, passwordBcrypt, displayName string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO users(username, password_bcrypt, display_name)
VALUES ($1,$2,$3)
RETURNING id`, username, passwordBcrypt, displayName).Scan(&id)
	return id, db.WrapNotFound(err)
}

// SetSiteCredentials seals and stores the member's login for the booking site.
func (r *Repo) SetSiteCredentials(ctx context.Context, userID int64, login, password string) error {
	sealed, err := r.sealer.Seal(password)
	if err != nil {
		return err
	}
	return r.db.Exec(ctx,
		`UPDATE users SET site_login=$2, site_password=$3, updated_at=now() WHERE id=$1`,
		userID, login, sealed)
}

// SiteCredentials unseals the stored site login for a booking attempt.
func (r *Repo) SiteCredentials(ctx context.Context, userID int64) (Credentials, error) {
	var login, sealed string
	err := r.db.QueryRow(ctx,
		`SELECT site_login, site_password FROM users WHERE id=$1`, userID).Scan(&login, &sealed)
	if err != nil {
		return Credentials{}, db.WrapNotFound(err)
	}
	if login == "" || sealed == "" {
		return Credentials{}, fmt.Errorf("user %d has no site credentials", userID)
	}
	password, err := r.sealer.Open(sealed)
	if err != nil {
		return Credentials{}, fmt.Errorf("unseal site password for user %d: %w", userID, err)
	}
	return Credentials{Login: login, Password: password}, nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (User, string, error) {
	var u User
	var hash string
	err := r.db.QueryRow(ctx, `
SELECT id, username, password_bcrypt, display_name, site_login, created_at, updated_at
FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &hash, &u.DisplayName, &u.SiteLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, "", db.WrapNotFound(err)
	}
	return u, hash, nil
}

func (r *Repo) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, username, display_name, site_login, created_at, updated_at
FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.SiteLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) CreatePreference(ctx context.Context, p Preference) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	weekday, _ := planning.NormalizeWeekday(p.Weekday)
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO preferences(user_id, weekday, activity_name)
VALUES ($1,$2,$3)
ON CONFLICT (user_id, weekday, activity_name) DO UPDATE SET weekday=EXCLUDED.weekday
RETURNING id`, p.UserID, weekday, strings.TrimSpace(p.ActivityName)).Scan(&id)
	return id, db.WrapNotFound(err)
}

// ActivePreferences loads every standing preference; the matcher filters them
// against the cycle's appeared entries.
func (r *Repo) ActivePreferences(ctx context.Context) ([]Preference, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, user_id, weekday, activity_name, created_at
FROM preferences ORDER BY user_id, weekday, activity_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.ID, &p.UserID, &p.Weekday, &p.ActivityName, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) ListPreferencesByUser(ctx context.Context, userID int64) ([]Preference, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, user_id, weekday, activity_name, created_at
FROM preferences WHERE user_id=$1 ORDER BY weekday, activity_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.ID, &p.UserID, &p.Weekday, &p.ActivityName, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
