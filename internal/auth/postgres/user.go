package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/offszn/marketplace/internal/auth"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// GetUserByID treats ids that are not UUIDs as unknown users.
func (r *Repository) GetUserByID(ctx context.Context, userID string) (*auth.UserRecord, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, auth.ErrUserNotFound
	}
	return r.getOne(ctx, `SELECT id, email, role, is_active FROM users WHERE id = ?`, userID)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	return r.getOne(ctx, `SELECT id, email, role, is_active FROM users WHERE email = ?`, email)
}

func (r *Repository) getOne(ctx context.Context, query string, arg interface{}) (*auth.UserRecord, error) {
	var rec auth.UserRecord
	if err := r.db.GetContext(ctx, &rec, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return &rec, nil
}
