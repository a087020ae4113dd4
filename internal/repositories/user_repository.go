package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// UserDirectory answers whether a sender is known to the community.
type UserDirectory interface {
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	ProvisionPlaceholder(ctx context.Context, userID uuid.UUID) error
}

// UserRepo reads the shared users table.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID)
	return exists, err
}

// ProvisionPlaceholder inserts a stub user row for an unknown sender.
func (r *UserRepo) ProvisionPlaceholder(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, name) VALUES ($1, 'Unknown resident') ON CONFLICT (id) DO NOTHING`, userID)
	return err
}
