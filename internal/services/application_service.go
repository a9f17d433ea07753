package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"biodata/internal/events"
	"biodata/internal/metrics"
	"biodata/internal/models"
	"biodata/internal/repositories"
	"biodata/internal/utils"
)

const maxIDAttempts = 3

type ApplicationStore interface {
	Insert(ctx context.Context, app *models.Application) error
	InsertBatch(ctx context.Context, apps []*models.Application) (int, error)
	Get(ctx context.Context, uniqueID string) (*models.Application, error)
	ListAll(ctx context.Context) ([]*models.Application, error)
	ListByContact(ctx context.Context, contact string) ([]*models.Application, error)
	ListRejected(ctx context.Context) ([]*models.RejectedApplication, error)
	ListRejectedByContact(ctx context.Context, contact string) ([]*models.RejectedApplication, error)
	ListByYear(ctx context.Context, year int, approvedOnly bool, gender, orderBy string) ([]*models.Application, error)
	GroupByGenderAndYear(ctx context.Context) ([]models.GenderYearCount, error)
	Approve(ctx context.Context, uniqueID string, at time.Time) error
	Reject(ctx context.Context, uniqueID, note string) (*models.RejectedApplication, error)
	Resubmit(ctx context.Context, contact string, b models.Biodata) (*models.Application, error)
	UpdateFields(ctx context.Context, uniqueID string, fields map[string]string) error
	UpdateByContact(ctx context.Context, contact string, b models.Biodata) (int64, error)
	SetPhotoByContact(ctx context.Context, contact, column, filename string) (int64, error)
	Delete(ctx context.Context, uniqueID string) error
}

type AuditStore interface {
	Append(ctx context.Context, e *models.AdminLogEntry) error
	List(ctx context.Context, limit, offset int) ([]*models.AdminLogEntry, error)
}

type PhotoStore interface {
	Save(b64, role, identifier string) (string, error)
	SaveBytes(raw []byte, role, identifier string) (string, error)
}

// Allowed lifecycle moves. Resubmission takes a rejected record back to pending.
var lifecycleTransitions = map[models.Stage]map[models.Stage]bool{
	models.StagePending:  {models.StageApproved: true, models.StageRejected: true},
	models.StageApproved: {models.StageRejected: true},
	models.StageRejected: {models.StagePending: true},
}

func canTransition(from, to models.Stage) bool {
	return lifecycleTransitions[from][to]
}

// Keys the admin UI echoes back on edit; they are never written.
var ignoredEditKeys = map[string]bool{
	"unique_id":      true,
	"id":             true,
	"created_at":     true,
	"approved_at":    true,
	"status":         true,
	"state":          true,
	"rejection_note": true,
	"rejected_at":    true,
}

type ApplicationService struct {
	Repo   ApplicationStore
	Audit  AuditStore
	Photos PhotoStore
	Events events.Sink // optional

	now   func() time.Time
	newID func() string
}

func NewApplicationService(repo ApplicationStore, audit AuditStore, photos PhotoStore, sink events.Sink) *ApplicationService {
	return &ApplicationService{
		Repo:   repo,
		Audit:  audit,
		Photos: photos,
		Events: sink,
		now:    time.Now,
		newID:  utils.NewUniqueID,
	}
}

// NormalizeDate cuts ISO timestamps down to YYYY-MM-DD and checks the result.
func NormalizeDate(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	if i := strings.IndexAny(v, "T "); i > 0 {
		v = v[:i]
	}
	if _, err := time.Parse("2006-01-02", v); err != nil {
		return "", fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", ErrValidation)
	}
	return v, nil
}

func normalizeBiodata(b *models.Biodata) error {
	for _, f := range b.Fields() {
		*f.Ptr = strings.TrimSpace(*f.Ptr)
	}
	dob, err := NormalizeDate(b.DateOfBirth)
	if err != nil {
		return err
	}
	b.DateOfBirth = dob
	return nil
}

// Submit stores a new pending application and its photos.
func (s *ApplicationService) Submit(ctx context.Context, req models.SubmitRequest) (*models.Application, error) {
	b := req.Biodata
	if err := normalizeBiodata(&b); err != nil {
		return nil, err
	}
	if b.Name == "" || b.MainContactNumber == "" {
		return nil, fmt.Errorf("%w: name and main_contact_number are required", ErrValidation)
	}

	app := &models.Application{Biodata: b}
	if err := s.insertWithFreshID(ctx, app, req.MainPhotoBase64 != "", req.SidePhotoBase64 != ""); err != nil {
		return nil, err
	}

	// Photos are written after the row exists so a colliding id never
	// overwrites another applicant's files.
	if err := s.savePhotos(app.UniqueID, models.Photos{MainBase64: req.MainPhotoBase64, SideBase64: req.SidePhotoBase64}); err != nil {
		if delErr := s.Repo.Delete(ctx, app.UniqueID); delErr != nil {
			logrus.WithError(delErr).WithField("unique_id", app.UniqueID).Error("[application][submit] rollback failed")
		}
		return nil, err
	}

	metrics.Transitions.WithLabelValues("submitted").Inc()
	logrus.WithFields(logrus.Fields{"unique_id": app.UniqueID, "contact": b.MainContactNumber}).Info("[application][submit] ok")
	s.publish(ctx, events.TypeSubmitted, app.UniqueID, app.Biodata, "", "")
	return app, nil
}

func (s *ApplicationService) insertWithFreshID(ctx context.Context, app *models.Application, withMain, withSide bool) error {
	var lastErr error
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		app.UniqueID = s.newID()
		app.MainPhotoURL, app.SidePhotoURL = "", ""
		if withMain {
			app.MainPhotoURL, _ = PhotoFilename(PhotoMain, app.UniqueID)
		}
		if withSide {
			app.SidePhotoURL, _ = PhotoFilename(PhotoSide, app.UniqueID)
		}

		err := s.Repo.Insert(ctx, app)
		if err == nil {
			return nil
		}
		if !repositories.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		lastErr = err
		logrus.WithFields(logrus.Fields{"unique_id": app.UniqueID, "attempt": attempt}).Warn("[application][submit] unique_id collision, retrying")
	}
	return fmt.Errorf("%w: could not allocate unique_id: %v", ErrConflict, lastErr)
}

func (s *ApplicationService) savePhotos(uniqueID string, p models.Photos) error {
	save := func(b64 string, raw []byte, role string) error {
		var err error
		switch {
		case len(raw) > 0:
			_, err = s.Photos.SaveBytes(raw, role, uniqueID)
		case b64 != "":
			_, err = s.Photos.Save(b64, role, uniqueID)
		}
		return err
	}
	if err := save(p.MainBase64, p.MainRaw, PhotoMain); err != nil {
		return err
	}
	return save(p.SideBase64, p.SideRaw, PhotoSide)
}

func (s *ApplicationService) Get(ctx context.Context, uniqueID string) (*models.Application, error) {
	app, err := s.Repo.Get(ctx, uniqueID)
	if err != nil {
		return nil, mapRepoErr(err, "application "+uniqueID)
	}
	return app, nil
}

// Approve moves a pending application to approved. A second approval
// reports ErrConflict and keeps the first timestamp.
func (s *ApplicationService) Approve(ctx context.Context, uniqueID, admin string) (*models.Application, error) {
	app, err := s.Get(ctx, uniqueID)
	if err != nil {
		return nil, err
	}
	if !canTransition(app.State().Stage, models.StageApproved) {
		return nil, fmt.Errorf("%w: application %s is already approved", ErrConflict, uniqueID)
	}

	at := s.now().UTC()
	if err := s.Repo.Approve(ctx, uniqueID, at); err != nil {
		return nil, mapRepoErr(err, "application "+uniqueID)
	}
	app.ApprovedAt = &at

	metrics.Transitions.WithLabelValues("approved").Inc()
	s.audit(ctx, admin, "approved", uniqueID)
	s.publish(ctx, events.TypeApproved, uniqueID, app.Biodata, "", admin)
	return app, nil
}

// Reject moves the application into the rejected set with note.
func (s *ApplicationService) Reject(ctx context.Context, uniqueID, note, admin string) (*models.RejectedApplication, error) {
	app, err := s.Get(ctx, uniqueID)
	if err != nil {
		return nil, err
	}
	if !canTransition(app.State().Stage, models.StageRejected) {
		return nil, fmt.Errorf("%w: application %s cannot be rejected", ErrConflict, uniqueID)
	}

	rej, err := s.Repo.Reject(ctx, uniqueID, strings.TrimSpace(note))
	if err != nil {
		return nil, mapRepoErr(err, "application "+uniqueID)
	}

	metrics.Transitions.WithLabelValues("rejected").Inc()
	s.audit(ctx, admin, "rejected", uniqueID)
	s.publish(ctx, events.TypeRejected, uniqueID, rej.Biodata, rej.RejectionNote, admin)
	return rej, nil
}

// Resubmit brings the latest rejected application for contact back to
// pending. Biodata comes only from b; omitted fields are stored empty.
func (s *ApplicationService) Resubmit(ctx context.Context, contact string, b models.Biodata) (*models.Application, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, fmt.Errorf("%w: main_contact_number is required", ErrValidation)
	}
	if err := normalizeBiodata(&b); err != nil {
		return nil, err
	}
	if b.MainContactNumber == "" {
		b.MainContactNumber = contact
	}
	app, err := s.Repo.Resubmit(ctx, contact, b)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: no rejected application for %s", ErrNotFound, contact)
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	metrics.Transitions.WithLabelValues("resubmitted").Inc()
	logrus.WithFields(logrus.Fields{"unique_id": app.UniqueID, "contact": contact}).Info("[application][resubmit] ok")
	s.publish(ctx, events.TypeResubmitted, app.UniqueID, app.Biodata, "", "")
	return app, nil
}

// Edit applies a partial admin update. New photos replace the stored files
// and point the URL columns at them.
func (s *ApplicationService) Edit(ctx context.Context, uniqueID string, fields map[string]string, photos models.Photos, admin string) (*models.Application, error) {
	clean := make(map[string]string, len(fields))
	var unknown []string
	for k, v := range fields {
		k = strings.TrimSpace(k)
		switch {
		case ignoredEditKeys[k]:
			continue
		case !repositories.IsEditableColumn(k):
			unknown = append(unknown, k)
			continue
		}
		clean[k] = strings.TrimSpace(v)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown fields %s", ErrValidation, strings.Join(unknown, ", "))
	}
	if dob, ok := clean["date_of_birth"]; ok {
		norm, err := NormalizeDate(dob)
		if err != nil {
			return nil, err
		}
		clean["date_of_birth"] = norm
	}

	if _, err := s.Get(ctx, uniqueID); err != nil {
		return nil, err
	}

	if err := s.savePhotos(uniqueID, photos); err != nil {
		return nil, err
	}
	if photos.HasMain() {
		clean["main_photo_url"], _ = PhotoFilename(PhotoMain, uniqueID)
	}
	if photos.HasSide() {
		clean["side_photo_url"], _ = PhotoFilename(PhotoSide, uniqueID)
	}

	if err := s.Repo.UpdateFields(ctx, uniqueID, clean); err != nil {
		return nil, mapRepoErr(err, "application "+uniqueID)
	}
	s.audit(ctx, admin, "edited", uniqueID)
	return s.Get(ctx, uniqueID)
}

// UpdateByContact is the applicant self-edit: every biodata column except
// the contact number itself is overwritten.
func (s *ApplicationService) UpdateByContact(ctx context.Context, b models.Biodata) (int64, error) {
	if err := normalizeBiodata(&b); err != nil {
		return 0, err
	}
	if b.MainContactNumber == "" {
		return 0, fmt.Errorf("%w: main_contact_number is required", ErrValidation)
	}
	n, err := s.Repo.UpdateByContact(ctx, b.MainContactNumber, b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no application for %s", ErrNotFound, b.MainContactNumber)
	}
	return n, nil
}

// UploadPhotoByContact stores a photo for every live application under contact.
func (s *ApplicationService) UploadPhotoByContact(ctx context.Context, contact, role string, raw []byte) (string, error) {
	contact = strings.TrimSpace(contact)
	if !ValidPhotoRole(role) {
		return "", fmt.Errorf("%w: type must be main or side", ErrValidation)
	}
	if contact == "" || len(raw) == 0 {
		return "", fmt.Errorf("%w: contact and photo are required", ErrValidation)
	}

	apps, err := s.Repo.ListByContact(ctx, contact)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if len(apps) == 0 {
		return "", fmt.Errorf("%w: no application for %s", ErrNotFound, contact)
	}

	name, err := s.Photos.SaveBytes(raw, role, contact)
	if err != nil {
		return "", err
	}
	if _, err := s.Repo.SetPhotoByContact(ctx, contact, role+"_photo_url", name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return name, nil
}

func (s *ApplicationService) Delete(ctx context.Context, uniqueID, admin string) error {
	app, err := s.Get(ctx, uniqueID)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, uniqueID); err != nil {
		return mapRepoErr(err, "application "+uniqueID)
	}
	metrics.Transitions.WithLabelValues("deleted").Inc()
	s.audit(ctx, admin, "deleted", uniqueID)
	s.publish(ctx, events.TypeDeleted, uniqueID, app.Biodata, "", admin)
	return nil
}

func (s *ApplicationService) ListAll(ctx context.Context) ([]*models.Application, error) {
	apps, err := s.Repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return apps, nil
}

func (s *ApplicationService) ListRejected(ctx context.Context) ([]*models.RejectedApplication, error) {
	rej, err := s.Repo.ListRejected(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return rej, nil
}

// ListByContact merges live and rejected records for one contact number.
// Live records keep the legacy "Approved" status even while pending; State
// carries the precise stage.
func (s *ApplicationService) ListByContact(ctx context.Context, contact string) ([]models.ApplicationView, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, fmt.Errorf("%w: main_contact_number is required", ErrValidation)
	}
	live, err := s.Repo.ListByContact(ctx, contact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	rejected, err := s.Repo.ListRejectedByContact(ctx, contact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	out := make([]models.ApplicationView, 0, len(live)+len(rejected))
	for _, a := range live {
		out = append(out, models.ApplicationView{
			UniqueID:     a.UniqueID,
			Biodata:      a.Biodata,
			MainPhotoURL: a.MainPhotoURL,
			SidePhotoURL: a.SidePhotoURL,
			CreatedAt:    a.CreatedAt,
			ApprovedAt:   a.ApprovedAt,
			Status:       "Approved",
			State:        a.State().Stage,
		})
	}
	for _, r := range rejected {
		at := r.RejectedAt
		out = append(out, models.ApplicationView{
			UniqueID:      r.UniqueID,
			Biodata:       r.Biodata,
			MainPhotoURL:  r.MainPhotoURL,
			SidePhotoURL:  r.SidePhotoURL,
			CreatedAt:     r.CreatedAt,
			RejectionNote: r.RejectionNote,
			RejectedAt:    &at,
			Status:        "Rejected",
			State:         r.State().Stage,
		})
	}
	return out, nil
}

// ListByYear returns approved applications born in year, newest submission first.
func (s *ApplicationService) ListByYear(ctx context.Context, year int, gender string) ([]*models.Application, error) {
	return s.listByYear(ctx, year, gender, "created_at")
}

// ListApprovedByYear is ListByYear ordered by approval time.
func (s *ApplicationService) ListApprovedByYear(ctx context.Context, year int, gender string) ([]*models.Application, error) {
	return s.listByYear(ctx, year, gender, "approved_at")
}

func (s *ApplicationService) listByYear(ctx context.Context, year int, gender, orderBy string) ([]*models.Application, error) {
	if year < 1900 || year > 9999 {
		return nil, fmt.Errorf("%w: invalid year %d", ErrValidation, year)
	}
	apps, err := s.Repo.ListByYear(ctx, year, true, strings.TrimSpace(gender), orderBy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return apps, nil
}

// GroupByGenderAndYear counts approved applications per gender and birth
// year. Years within a gender are newest first.
func (s *ApplicationService) GroupByGenderAndYear(ctx context.Context) (map[string][]models.YearCount, error) {
	rows, err := s.Repo.GroupByGenderAndYear(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	out := map[string][]models.YearCount{}
	for _, r := range rows {
		out[r.Gender] = append(out[r.Gender], r.YearCount)
	}
	return out, nil
}

// LogAction appends a free-form audit entry.
func (s *ApplicationService) LogAction(ctx context.Context, admin, action, uniqueID string) (*models.AdminLogEntry, error) {
	if strings.TrimSpace(action) == "" {
		return nil, fmt.Errorf("%w: action is required", ErrValidation)
	}
	e := &models.AdminLogEntry{AdminName: admin, Action: strings.TrimSpace(action), ApplicationUniqueID: uniqueID}
	if err := s.Audit.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return e, nil
}

func (s *ApplicationService) ListLogs(ctx context.Context, limit, offset int) ([]*models.AdminLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	logs, err := s.Audit.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return logs, nil
}

// audit failures never undo a completed transition.
func (s *ApplicationService) audit(ctx context.Context, admin, action, uniqueID string) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Append(ctx, &models.AdminLogEntry{AdminName: admin, Action: action, ApplicationUniqueID: uniqueID}); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"unique_id": uniqueID, "action": action}).Warn("[application][audit] append failed")
	}
}

func (s *ApplicationService) publish(ctx context.Context, typ, uniqueID string, b models.Biodata, note, admin string) {
	if s.Events == nil {
		return
	}
	e := events.Event{
		Type:              typ,
		UniqueID:          uniqueID,
		Name:              b.Name,
		EmailID:           b.EmailID,
		MainContactNumber: b.MainContactNumber,
		Note:              note,
		Admin:             admin,
		OccurredAt:        s.now().UTC(),
	}
	if err := s.Events.Publish(ctx, e); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"unique_id": uniqueID, "type": typ}).Warn("[application][events] publish failed")
	}
}
