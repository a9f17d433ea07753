package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"biodata/internal/models"
)

type AccessRequestRepository struct {
	DB *sql.DB
}

func NewAccessRequestRepository(db *sql.DB) *AccessRequestRepository {
	return &AccessRequestRepository{DB: db}
}

const accessRequestColumns = `
	id, full_name, phone_number, COALESCE(country, ''), COALESCE(state, ''), COALESCE(city, ''),
	COALESCE(otp, ''), is_verified, otp_sent_at, otp_attempts, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccessRequest(row rowScanner) (*models.AccessRequest, error) {
	var (
		ar     models.AccessRequest
		sentAt sql.NullTime
	)
	if err := row.Scan(
		&ar.ID, &ar.FullName, &ar.PhoneNumber, &ar.Country, &ar.State, &ar.City,
		&ar.OTP, &ar.IsVerified, &sentAt, &ar.OTPAttempts, &ar.CreatedAt,
	); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		ar.OTPSentAt = &t
	}
	return &ar, nil
}

// Create inserts a new unverified access request carrying a fresh code.
func (r *AccessRequestRepository) Create(ctx context.Context, ar *models.AccessRequest) (int64, error) {
	const q = `
		INSERT INTO access_requests (full_name, phone_number, country, state, city, otp, is_verified, otp_sent_at, otp_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, 0, NOW())
		RETURNING id, created_at
	`
	if err := r.DB.QueryRowContext(ctx, q,
		ar.FullName, ar.PhoneNumber, nullIfEmpty(ar.Country), nullIfEmpty(ar.State), nullIfEmpty(ar.City),
		ar.OTP, ar.OTPSentAt,
	).Scan(&ar.ID, &ar.CreatedAt); err != nil {
		return 0, fmt.Errorf("access_request create: %w", err)
	}
	return ar.ID, nil
}

// FindVerified returns the latest verified request for (full_name, phone) or nil.
func (r *AccessRequestRepository) FindVerified(ctx context.Context, fullName, phone string) (*models.AccessRequest, error) {
	q := `SELECT ` + accessRequestColumns + `
		FROM access_requests
		WHERE full_name = $1 AND phone_number = $2 AND is_verified = TRUE
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	ar, err := scanAccessRequest(r.DB.QueryRowContext(ctx, q, fullName, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("access_request find verified: %w", err)
	}
	return ar, nil
}

// FindLatest returns the latest request for (full_name, phone) regardless of state, or nil.
func (r *AccessRequestRepository) FindLatest(ctx context.Context, fullName, phone string) (*models.AccessRequest, error) {
	q := `SELECT ` + accessRequestColumns + `
		FROM access_requests
		WHERE full_name = $1 AND phone_number = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	ar, err := scanAccessRequest(r.DB.QueryRowContext(ctx, q, fullName, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("access_request find latest: %w", err)
	}
	return ar, nil
}

// LatestPending returns the newest unverified request for phone that still holds a code, or nil.
func (r *AccessRequestRepository) LatestPending(ctx context.Context, phone string) (*models.AccessRequest, error) {
	q := `SELECT ` + accessRequestColumns + `
		FROM access_requests
		WHERE phone_number = $1 AND is_verified = FALSE AND otp IS NOT NULL
		ORDER BY otp_sent_at DESC NULLS LAST, id DESC
		LIMIT 1`
	ar, err := scanAccessRequest(r.DB.QueryRowContext(ctx, q, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("access_request latest pending: %w", err)
	}
	return ar, nil
}

// InvalidatePending clears the code of every unverified request for phone
// except keepID (0 keeps none).
func (r *AccessRequestRepository) InvalidatePending(ctx context.Context, phone string, keepID int64) (int64, error) {
	const q = `
		UPDATE access_requests
		SET otp = NULL
		WHERE phone_number = $1 AND is_verified = FALSE AND otp IS NOT NULL AND id <> $2
	`
	res, err := r.DB.ExecContext(ctx, q, phone, keepID)
	if err != nil {
		return 0, fmt.Errorf("access_request invalidate pending: %w", err)
	}
	return rowsAffected(res)
}

// Reissue stores a new code on an existing request and moves it back to unverified.
func (r *AccessRequestRepository) Reissue(ctx context.Context, id int64, otp string, sentAt time.Time) error {
	const q = `
		UPDATE access_requests
		SET otp = $1, otp_sent_at = $2, otp_attempts = 0, is_verified = FALSE
		WHERE id = $3
	`
	res, err := r.DB.ExecContext(ctx, q, otp, sentAt, id)
	if err != nil {
		return fmt.Errorf("access_request reissue: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementAttempts adds one failed attempt and returns the new count.
func (r *AccessRequestRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	const q = `
		UPDATE access_requests
		SET otp_attempts = otp_attempts + 1
		WHERE id = $1
		RETURNING otp_attempts
	`
	var attempts int
	if err := r.DB.QueryRowContext(ctx, q, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("access_request increment attempts: %w", err)
	}
	return attempts, nil
}

func (r *AccessRequestRepository) ClearOTP(ctx context.Context, id int64) error {
	if _, err := r.DB.ExecContext(ctx, `UPDATE access_requests SET otp = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("access_request clear otp: %w", err)
	}
	return nil
}

// MarkVerified flips the request to verified and burns the code.
func (r *AccessRequestRepository) MarkVerified(ctx context.Context, id int64) error {
	const q = `UPDATE access_requests SET is_verified = TRUE, otp = NULL WHERE id = $1 AND is_verified = FALSE`
	res, err := r.DB.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("access_request mark verified: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccessRequestRepository) List(ctx context.Context, verifiedOnly bool) ([]*models.AccessRequest, error) {
	q := `SELECT ` + accessRequestColumns + ` FROM access_requests`
	if verifiedOnly {
		q += ` WHERE is_verified = TRUE`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("access_request list: %w", err)
	}
	defer rows.Close()

	out := []*models.AccessRequest{}
	for rows.Next() {
		ar, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("access_request scan: %w", err)
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}

// Update rewrites the identity and location of a request (admin edit).
func (r *AccessRequestRepository) Update(ctx context.Context, ar *models.AccessRequest) error {
	const q = `
		UPDATE access_requests
		SET full_name = $1, phone_number = $2, country = $3, state = $4, city = $5
		WHERE id = $6
	`
	res, err := r.DB.ExecContext(ctx, q,
		ar.FullName, ar.PhoneNumber, nullIfEmpty(ar.Country), nullIfEmpty(ar.State), nullIfEmpty(ar.City), ar.ID,
	)
	if err != nil {
		return fmt.Errorf("access_request update: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccessRequestRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM access_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("access_request delete: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
