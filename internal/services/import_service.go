package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"biodata/internal/metrics"
	"biodata/internal/models"
	"biodata/internal/repositories"
	"biodata/internal/utils"
)

var requiredImportColumns = []string{"name", "gender", "date_of_birth", "main_contact_number"}

// ImportRowError points at the first offending row (1-based, header excluded).
// Row 0 means the header itself.
type ImportRowError struct {
	Row    int    `json:"row"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *ImportRowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

func (e *ImportRowError) Unwrap() error { return e.Err }

type ImportRowResult struct {
	Row      int    `json:"row"`
	UniqueID string `json:"unique_id"`
}

type ImportResult struct {
	Inserted int               `json:"inserted"`
	Rows     []ImportRowResult `json:"rows"`
}

type importRow struct {
	Name              string `col:"name" validate:"required"`
	Gender            string `col:"gender" validate:"required"`
	DateOfBirth       string `col:"date_of_birth" validate:"required,datetime=2006-01-02"`
	MainContactNumber string `col:"main_contact_number" validate:"required"`
	EmailID           string `col:"email_id" validate:"omitempty,email"`
}

// ImportService turns a CSV or XLSX sheet into auto-approved applications.
// Every row is validated before anything is written; the batch then commits
// in one transaction or not at all.
type ImportService struct {
	Repo     ApplicationStore
	validate *validator.Validate

	now   func() time.Time
	newID func() string
}

func NewImportService(repo ApplicationStore) *ImportService {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("col")
	})
	return &ImportService{Repo: repo, validate: v, now: time.Now, newID: utils.NewUniqueID}
}

func (s *ImportService) ImportFile(ctx context.Context, filename string, r io.Reader) (*ImportResult, error) {
	var (
		t   *table
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		t, err = readCSV(r)
	case ".xlsx":
		t, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q, expected .csv or .xlsx", ErrValidation, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}
	return s.importTable(ctx, t)
}

func (s *ImportService) importTable(ctx context.Context, t *table) (*ImportResult, error) {
	for _, col := range requiredImportColumns {
		if !t.has(col) {
			return nil, &ImportRowError{Row: 0, Field: col, Reason: "missing column", Err: ErrValidation}
		}
	}

	approvedAt := s.now().UTC()
	var (
		apps []*models.Application
		rows []int
	)
	for i, rec := range t.rows {
		if blankRow(rec) {
			continue
		}
		rowNum := i + 1
		app, err := s.buildRow(t, rec, rowNum)
		if err != nil {
			return nil, err
		}
		app.ApprovedAt = &approvedAt
		apps = append(apps, app)
		rows = append(rows, rowNum)
	}
	if len(apps) == 0 {
		return &ImportResult{Rows: []ImportRowResult{}}, nil
	}

	if err := s.insert(ctx, apps, rows); err != nil {
		return nil, err
	}

	res := &ImportResult{Inserted: len(apps), Rows: make([]ImportRowResult, len(apps))}
	for i, a := range apps {
		res.Rows[i] = ImportRowResult{Row: rows[i], UniqueID: a.UniqueID}
	}
	metrics.ImportedRows.Add(float64(len(apps)))
	logrus.WithField("inserted", len(apps)).Info("[import][commit] ok")
	return res, nil
}

func (s *ImportService) buildRow(t *table, rec []string, rowNum int) (*models.Application, error) {
	app := &models.Application{}
	for _, f := range app.Biodata.Fields() {
		*f.Ptr = t.cell(rec, f.Column)
	}
	if dob, _, ok := strings.Cut(app.DateOfBirth, "T"); ok {
		app.DateOfBirth = dob
	}
	app.MainPhotoURL = filepath.Base(t.cell(rec, "main_photo_url"))
	app.SidePhotoURL = filepath.Base(t.cell(rec, "side_photo_url"))
	if app.MainPhotoURL == "." {
		app.MainPhotoURL = ""
	}
	if app.SidePhotoURL == "." {
		app.SidePhotoURL = ""
	}

	check := importRow{
		Name:              app.Name,
		Gender:            app.Gender,
		DateOfBirth:       app.DateOfBirth,
		MainContactNumber: app.MainContactNumber,
		EmailID:           app.EmailID,
	}
	if err := s.validate.Struct(check); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, &ImportRowError{Row: rowNum, Field: fe.Field(), Reason: importReason(fe.Tag()), Err: ErrValidation}
		}
		return nil, &ImportRowError{Row: rowNum, Reason: err.Error(), Err: ErrValidation}
	}
	return app, nil
}

func importReason(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "datetime":
		return "must be YYYY-MM-DD"
	case "email":
		return "is not a valid email"
	}
	return "failed " + tag
}

// insert assigns fresh ids and commits the batch, re-rolling an id that
// collides with an existing application.
func (s *ImportService) insert(ctx context.Context, apps []*models.Application, rows []int) error {
	seen := make(map[string]bool, len(apps))
	for _, a := range apps {
		a.UniqueID = s.freshID(seen)
	}

	for attempt := 1; ; attempt++ {
		idx, err := s.Repo.InsertBatch(ctx, apps)
		if err == nil {
			return nil
		}
		if idx < 0 {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		if !repositories.IsUniqueViolation(err) || attempt >= maxIDAttempts {
			return &ImportRowError{Row: rows[idx], Reason: err.Error(), Err: ErrDatabase}
		}
		logrus.WithFields(logrus.Fields{"row": rows[idx], "unique_id": apps[idx].UniqueID}).Warn("[import][commit] unique_id collision, retrying batch")
		apps[idx].UniqueID = s.freshID(seen)
	}
}

func (s *ImportService) freshID(seen map[string]bool) string {
	for {
		id := s.newID()
		if !seen[id] {
			seen[id] = true
			return id
		}
	}
}
