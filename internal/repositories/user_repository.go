package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"dm-service/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

const uniqueViolation = "23505"

// UserRepository abstracts user persistence.
type UserRepository interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListOthers(ctx context.Context, id string) ([]models.User, error)
	SetOnline(ctx context.Context, id string) error
	SetOffline(ctx context.Context, id string, lastSeen time.Time) error
	GetPushSubscription(ctx context.Context, id string) (*models.PushSubscription, error)
	SetPushSubscription(ctx context.Context, id string, sub models.PushSubscription) error
	ClearPushSubscription(ctx context.Context, id string, endpoint string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, email, password_hash, is_online, last_seen, created_at`

// Create inserts a user; duplicate username or email yields ErrUserExists.
func (r *UserRepo) Create(ctx context.Context, user models.User) (models.User, error) {
	var created models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		user.ID, user.Username, user.Email, user.PasswordHash).StructScan(&created)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.User{}, ErrUserExists
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByEmail fetches a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// Exists checks whether a user with the id is present.
func (r *UserRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, id)
	return exists, err
}

// ListOthers returns every user except id, ordered by username.
func (r *UserRepo) ListOthers(ctx context.Context, id string) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY username ASC`, id)
	return users, err
}

// SetOnline flips the persisted online flag on.
func (r *UserRepo) SetOnline(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online = TRUE WHERE id=$1`, id)
	return err
}

// SetOffline flips the persisted online flag off and stamps last seen.
func (r *UserRepo) SetOffline(ctx context.Context, id string, lastSeen time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online = FALSE, last_seen = $2 WHERE id=$1`, id, lastSeen)
	return err
}

// GetPushSubscription returns the stored descriptor, or nil when there is none.
func (r *UserRepo) GetPushSubscription(ctx context.Context, id string) (*models.PushSubscription, error) {
	var raw []byte
	err := r.db.QueryRowxContext(ctx, `SELECT push_subscription FROM users WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var sub models.PushSubscription
	if err := sub.Scan(raw); err != nil {
		return nil, fmt.Errorf("decode push subscription: %w", err)
	}
	return &sub, nil
}

// SetPushSubscription replaces the stored descriptor.
func (r *UserRepo) SetPushSubscription(ctx context.Context, id string, sub models.PushSubscription) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET push_subscription = $2 WHERE id=$1`, id, sub)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrUserNotFound)
}

// ClearPushSubscription removes the descriptor. A non-empty endpoint only
// clears it if it still points at that endpoint, so a fresh subscription
// registered in the meantime survives.
func (r *UserRepo) ClearPushSubscription(ctx context.Context, id string, endpoint string) error {
	if endpoint == "" {
		_, err := r.db.ExecContext(ctx, `UPDATE users SET push_subscription = NULL WHERE id=$1`, id)
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE users SET push_subscription = NULL WHERE id=$1 AND push_subscription->>'endpoint' = $2`, id, endpoint)
	return err
}

func requireAffected(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
