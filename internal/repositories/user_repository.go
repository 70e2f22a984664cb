package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository resolves participant identities for display. The users
// table is owned by the marketplace backend; reads only.
type UserRepository interface {
	Get(ctx context.Context, userID int) (models.UserRef, error)
	BulkGet(ctx context.Context, userIDs []int) ([]models.UserRef, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Get fetches one user's display identity.
func (r *UserRepo) Get(ctx context.Context, userID int) (models.UserRef, error) {
	var user models.UserRef
	err := r.db.GetContext(ctx, &user,
		`SELECT id, username, COALESCE(avatar_url, '') AS avatar_url FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRef{}, ErrUserNotFound
	}
	return user, err
}

// BulkGet fetches multiple users in one query. Unknown ids are simply
// absent from the result.
func (r *UserRepo) BulkGet(ctx context.Context, userIDs []int) ([]models.UserRef, error) {
	if len(userIDs) == 0 {
		return []models.UserRef{}, nil
	}
	ids := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, int64(id))
	}

	var users []models.UserRef
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, username, COALESCE(avatar_url, '') AS avatar_url FROM users WHERE id = ANY($1)`,
		pq.Int64Array(ids))
	return users, err
}
