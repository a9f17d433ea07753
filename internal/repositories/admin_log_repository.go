package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"biodata/internal/models"
)

// AdminLogRepository is append-only: there is no update or delete.
type AdminLogRepository struct {
	DB *sql.DB
}

func NewAdminLogRepository(db *sql.DB) *AdminLogRepository {
	return &AdminLogRepository{DB: db}
}

func (r *AdminLogRepository) Append(ctx context.Context, e *models.AdminLogEntry) error {
	const q = `
		INSERT INTO admin_logs (admin_name, action, application_unique_id, timestamp)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, timestamp
	`
	if err := r.DB.QueryRowContext(ctx, q, e.AdminName, e.Action, e.ApplicationUniqueID).Scan(&e.ID, &e.Timestamp); err != nil {
		return fmt.Errorf("admin log append: %w", err)
	}
	return nil
}

func (r *AdminLogRepository) List(ctx context.Context, limit, offset int) ([]*models.AdminLogEntry, error) {
	const q = `
		SELECT id, admin_name, action, application_unique_id, timestamp
		FROM admin_logs
		ORDER BY timestamp DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.DB.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("admin log list: %w", err)
	}
	defer rows.Close()

	out := []*models.AdminLogEntry{}
	for rows.Next() {
		var e models.AdminLogEntry
		if err := rows.Scan(&e.ID, &e.AdminName, &e.Action, &e.ApplicationUniqueID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("admin log scan: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
