package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"biodata/internal/models"
)

type AdminRepository struct {
	DB *sql.DB
}

func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{DB: db}
}

func (r *AdminRepository) Create(ctx context.Context, u *models.AdminUser) error {
	const q = `
		INSERT INTO admin_users (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	if err := r.DB.QueryRowContext(ctx, q, u.Username, u.PasswordHash, u.Role).Scan(&u.ID, &u.CreatedAt); err != nil {
		return fmt.Errorf("admin create: %w", err)
	}
	return nil
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	const q = `
		SELECT id, username, password_hash, role, created_at
		FROM admin_users
		WHERE username = $1
	`
	var u models.AdminUser
	if err := r.DB.QueryRowContext(ctx, q, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("admin get: %w", err)
	}
	return &u, nil
}

func (r *AdminRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("admin count: %w", err)
	}
	return n, nil
}
