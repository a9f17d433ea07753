package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"biodata/internal/models"
)

// ErrAlreadyApproved is returned by Approve when approved_at is already set.
var ErrAlreadyApproved = errors.New("application already approved")

type ApplicationRepository struct {
	DB *sql.DB
}

func NewApplicationRepository(db *sql.DB) *ApplicationRepository {
	return &ApplicationRepository{DB: db}
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func applicationSelect() string {
	return `SELECT unique_id, ` + biodataSelectList() + `,
		COALESCE(main_photo_url, ''), COALESCE(side_photo_url, ''), created_at, approved_at
		FROM applications`
}

func rejectedSelect() string {
	return `SELECT id, unique_id, ` + biodataSelectList() + `,
		COALESCE(main_photo_url, ''), COALESCE(side_photo_url, ''), created_at,
		COALESCE(rejection_note, ''), rejected_at
		FROM rejected_applications`
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app        models.Application
		approvedAt sql.NullTime
	)
	dest := []any{&app.UniqueID}
	dest = append(dest, biodataDest(&app.Biodata)...)
	dest = append(dest, &app.MainPhotoURL, &app.SidePhotoURL, &app.CreatedAt, &approvedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		app.ApprovedAt = &t
	}
	return &app, nil
}

func scanRejected(row rowScanner) (*models.RejectedApplication, error) {
	var rej models.RejectedApplication
	dest := []any{&rej.ID, &rej.UniqueID}
	dest = append(dest, biodataDest(&rej.Biodata)...)
	dest = append(dest, &rej.MainPhotoURL, &rej.SidePhotoURL, &rej.CreatedAt, &rej.RejectionNote, &rej.RejectedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &rej, nil
}

func (r *ApplicationRepository) queryApplications(ctx context.Context, q string, args ...any) ([]*models.Application, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (r *ApplicationRepository) queryRejected(ctx context.Context, q string, args ...any) ([]*models.RejectedApplication, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.RejectedApplication{}
	for rows.Next() {
		rej, err := scanRejected(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rej)
	}
	return out, rows.Err()
}

func insertApplication(ctx context.Context, db queryRower, app *models.Application) error {
	n := len(models.BiodataColumns())
	q := `INSERT INTO applications (unique_id, ` + biodataInsertList() + `, main_photo_url, side_photo_url, approved_at, created_at)
		VALUES (` + placeholders(1, n+4) + `, NOW())
		RETURNING created_at`

	args := []any{app.UniqueID}
	args = append(args, biodataValues(&app.Biodata)...)
	args = append(args, nullIfEmpty(app.MainPhotoURL), nullIfEmpty(app.SidePhotoURL), app.ApprovedAt)
	return db.QueryRowContext(ctx, q, args...).Scan(&app.CreatedAt)
}

// reserveID claims uniqueID in application_ids. The registry outlives both
// applications and rejected_applications rows, so an id is issued once.
func reserveID(ctx context.Context, tx *sql.Tx, uniqueID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO application_ids (unique_id) VALUES ($1)`, uniqueID)
	return err
}

// Insert stores a new application under a fresh unique_id. An id already
// issued to a live or rejected record surfaces as a unique violation (see
// IsUniqueViolation).
func (r *ApplicationRepository) Insert(ctx context.Context, app *models.Application) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("application insert begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := reserveID(ctx, tx, app.UniqueID); err != nil {
		return fmt.Errorf("application insert reserve: %w", err)
	}
	if err := insertApplication(ctx, tx, app); err != nil {
		return fmt.Errorf("application insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("application insert commit: %w", err)
	}
	return nil
}

// InsertBatch inserts all applications in one transaction. On failure nothing
// is committed and the index of the failing application is returned.
func (r *ApplicationRepository) InsertBatch(ctx context.Context, apps []*models.Application) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("application batch begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, app := range apps {
		if err := reserveID(ctx, tx, app.UniqueID); err != nil {
			return i, fmt.Errorf("application batch reserve: %w", err)
		}
		if err := insertApplication(ctx, tx, app); err != nil {
			return i, fmt.Errorf("application batch insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("application batch commit: %w", err)
	}
	return -1, nil
}

func (r *ApplicationRepository) Get(ctx context.Context, uniqueID string) (*models.Application, error) {
	app, err := scanApplication(r.DB.QueryRowContext(ctx, applicationSelect()+` WHERE unique_id = $1`, uniqueID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("application get: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) ListAll(ctx context.Context) ([]*models.Application, error) {
	apps, err := r.queryApplications(ctx, applicationSelect()+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("application list: %w", err)
	}
	return apps, nil
}

func (r *ApplicationRepository) ListByContact(ctx context.Context, contact string) ([]*models.Application, error) {
	apps, err := r.queryApplications(ctx, applicationSelect()+` WHERE main_contact_number = $1 ORDER BY created_at DESC`, contact)
	if err != nil {
		return nil, fmt.Errorf("application list by contact: %w", err)
	}
	return apps, nil
}

func (r *ApplicationRepository) ListRejected(ctx context.Context) ([]*models.RejectedApplication, error) {
	rej, err := r.queryRejected(ctx, rejectedSelect()+` ORDER BY rejected_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("rejected list: %w", err)
	}
	return rej, nil
}

func (r *ApplicationRepository) ListRejectedByContact(ctx context.Context, contact string) ([]*models.RejectedApplication, error) {
	rej, err := r.queryRejected(ctx, rejectedSelect()+` WHERE main_contact_number = $1 ORDER BY rejected_at DESC`, contact)
	if err != nil {
		return nil, fmt.Errorf("rejected list by contact: %w", err)
	}
	return rej, nil
}

// ListByYear filters on the birth year. orderBy is "created_at" or "approved_at".
func (r *ApplicationRepository) ListByYear(ctx context.Context, year int, approvedOnly bool, gender, orderBy string) ([]*models.Application, error) {
	if orderBy != "approved_at" {
		orderBy = "created_at"
	}
	q := applicationSelect() + ` WHERE EXTRACT(YEAR FROM date_of_birth) = $1`
	args := []any{year}
	if approvedOnly {
		q += ` AND approved_at IS NOT NULL`
	}
	if gender != "" {
		q += ` AND gender = $2`
		args = append(args, gender)
	}
	q += ` ORDER BY ` + orderBy + ` DESC`

	apps, err := r.queryApplications(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("application list by year: %w", err)
	}
	return apps, nil
}

// GroupByGenderAndYear counts approved applications per gender and birth year,
// gender ascending then year descending.
func (r *ApplicationRepository) GroupByGenderAndYear(ctx context.Context) ([]models.GenderYearCount, error) {
	const q = `
		SELECT COALESCE(gender, ''), EXTRACT(YEAR FROM date_of_birth)::int AS year, COUNT(*)
		FROM applications
		WHERE approved_at IS NOT NULL AND date_of_birth IS NOT NULL
		GROUP BY 1, 2
		ORDER BY 1 ASC, 2 DESC
	`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("application group by gender: %w", err)
	}
	defer rows.Close()

	var out []models.GenderYearCount
	for rows.Next() {
		var g models.GenderYearCount
		if err := rows.Scan(&g.Gender, &g.Year, &g.Count); err != nil {
			return nil, fmt.Errorf("application group scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Approve sets approved_at only while the application is still pending.
func (r *ApplicationRepository) Approve(ctx context.Context, uniqueID string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE applications SET approved_at = $1 WHERE unique_id = $2 AND approved_at IS NULL`, at, uniqueID)
	if err != nil {
		return fmt.Errorf("application approve: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM applications WHERE unique_id = $1)`, uniqueID).Scan(&exists); err != nil {
		return fmt.Errorf("application approve lookup: %w", err)
	}
	if exists {
		return ErrAlreadyApproved
	}
	return ErrNotFound
}

// Reject moves the application into rejected_applications in one transaction.
func (r *ApplicationRepository) Reject(ctx context.Context, uniqueID, note string) (*models.RejectedApplication, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("application reject begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	app, err := scanApplication(tx.QueryRowContext(ctx, applicationSelect()+` WHERE unique_id = $1 FOR UPDATE`, uniqueID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("application reject lookup: %w", err)
	}

	rej := &models.RejectedApplication{
		UniqueID:      app.UniqueID,
		Biodata:       app.Biodata,
		MainPhotoURL:  app.MainPhotoURL,
		SidePhotoURL:  app.SidePhotoURL,
		CreatedAt:     app.CreatedAt,
		RejectionNote: note,
	}

	n := len(models.BiodataColumns())
	insert := `INSERT INTO rejected_applications (unique_id, ` + biodataInsertList() + `, main_photo_url, side_photo_url, created_at, rejection_note, rejected_at)
		VALUES (` + placeholders(1, n+5) + `, NOW())
		RETURNING id, rejected_at`
	args := []any{rej.UniqueID}
	args = append(args, biodataValues(&rej.Biodata)...)
	args = append(args, nullIfEmpty(rej.MainPhotoURL), nullIfEmpty(rej.SidePhotoURL), rej.CreatedAt, nullIfEmpty(note))
	if err := tx.QueryRowContext(ctx, insert, args...).Scan(&rej.ID, &rej.RejectedAt); err != nil {
		return nil, fmt.Errorf("application reject copy: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE unique_id = $1`, uniqueID); err != nil {
		return nil, fmt.Errorf("application reject delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("application reject commit: %w", err)
	}
	return rej, nil
}

// Resubmit moves the latest rejected record for contact back to pending,
// keeping unique_id and photo URLs and taking biodata from b only.
func (r *ApplicationRepository) Resubmit(ctx context.Context, contact string, b models.Biodata) (*models.Application, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("application resubmit begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rej, err := scanRejected(tx.QueryRowContext(ctx,
		rejectedSelect()+` WHERE main_contact_number = $1 ORDER BY rejected_at DESC, id DESC LIMIT 1 FOR UPDATE`, contact))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("application resubmit lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rejected_applications WHERE id = $1`, rej.ID); err != nil {
		return nil, fmt.Errorf("application resubmit delete: %w", err)
	}

	app := &models.Application{
		UniqueID:     rej.UniqueID,
		Biodata:      b,
		MainPhotoURL: rej.MainPhotoURL,
		SidePhotoURL: rej.SidePhotoURL,
	}
	if err := insertApplication(ctx, tx, app); err != nil {
		return nil, fmt.Errorf("application resubmit insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("application resubmit commit: %w", err)
	}
	return app, nil
}

// UpdateFields applies a partial update. Column names must already be
// validated with IsEditableColumn; they are applied in sorted order.
func (r *ApplicationRepository) UpdateFields(ctx context.Context, uniqueID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	for c := range fields {
		if !IsEditableColumn(c) {
			return fmt.Errorf("column %q is not editable", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, nullIfEmpty(fields[c]))
	}
	args = append(args, uniqueID)
	q := `UPDATE applications SET ` + strings.Join(sets, ", ") + fmt.Sprintf(` WHERE unique_id = $%d`, len(cols)+1)

	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("application update: %w", err)
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

// UpdateByContact overwrites every biodata column except main_contact_number
// on the applications registered under contact.
func (r *ApplicationRepository) UpdateByContact(ctx context.Context, contact string, b models.Biodata) (int64, error) {
	var (
		sets []string
		args []any
	)
	for _, f := range b.Fields() {
		if f.Column == "main_contact_number" {
			continue
		}
		args = append(args, nullIfEmpty(*f.Ptr))
		sets = append(sets, fmt.Sprintf("%s = $%d", f.Column, len(args)))
	}
	args = append(args, contact)
	q := `UPDATE applications SET ` + strings.Join(sets, ", ") + fmt.Sprintf(` WHERE main_contact_number = $%d`, len(args))

	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("application update by contact: %w", err)
	}
	return rowsAffected(res)
}

// SetPhotoByContact points the main or side photo column of every application
// under contact at filename.
func (r *ApplicationRepository) SetPhotoByContact(ctx context.Context, contact, column, filename string) (int64, error) {
	if column != "main_photo_url" && column != "side_photo_url" {
		return 0, fmt.Errorf("column %q is not a photo column", column)
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE applications SET `+column+` = $1 WHERE main_contact_number = $2`, filename, contact)
	if err != nil {
		return 0, fmt.Errorf("application set photo: %w", err)
	}
	return rowsAffected(res)
}

func (r *ApplicationRepository) Delete(ctx context.Context, uniqueID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM applications WHERE unique_id = $1`, uniqueID)
	if err != nil {
		return fmt.Errorf("application delete: %w", err)
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
