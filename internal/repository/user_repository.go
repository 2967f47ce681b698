package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/models"
)

// UserRepository provides persistence for registry users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, full_name, role, active, created_at, updated_at`

// List returns all users ordered by full name.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY full_name ASC`

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// FindByID fetches one user; returns (nil, nil) when absent.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.find(ctx, r.db, id)
}

// Get fetches one user inside the caller's transaction.
func (r *UserRepository) Get(ctx context.Context, q sqlx.ExtContext, id string) (*models.User, error) {
	return r.find(ctx, q, id)
}

func (r *UserRepository) find(ctx context.Context, q sqlx.QueryerContext, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user models.User
	if err := sqlx.GetContext(ctx, q, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// EmailExists reports whether a user with the email already exists.
func (r *UserRepository) EmailExists(ctx context.Context, q sqlx.ExtContext, email, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)`

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, email, excludeID); err != nil {
		return false, fmt.Errorf("check user email: %w", err)
	}
	return exists, nil
}

// Insert persists a new user.
func (r *UserRepository) Insert(ctx context.Context, q sqlx.ExtContext, user *models.User) error {
	const query = `INSERT INTO users (id, email, full_name, role, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := q.ExecContext(ctx, query, user.ID, user.Email, user.FullName, user.Role, user.Active, user.CreatedAt, user.UpdatedAt); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Delete removes a user row. Audit actor references are cleared by the
// schema-level ON DELETE SET NULL constraint so audit history itself is
// never written to by the application.
func (r *UserRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) (int64, error) {
	const query = `DELETE FROM users WHERE id = $1`

	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
