package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"biodata/internal/events"
	"biodata/internal/models"
	"biodata/internal/repositories"
)

// memAppStore mirrors ApplicationRepository semantics over two maps.
type memAppStore struct {
	mu       sync.Mutex
	live     map[string]*models.Application
	issued   map[string]bool // mirrors application_ids
	rejected []*models.RejectedApplication
	nextRej  int64
	clock    time.Time
	failAt   int // InsertBatch fails at this index when >= 0
}

func newMemAppStore() *memAppStore {
	return &memAppStore{
		live:   map[string]*models.Application{},
		issued: map[string]bool{},
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		failAt: -1,
	}
}

func (m *memAppStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memAppStore) insertLocked(app *models.Application) error {
	if _, ok := m.live[app.UniqueID]; ok {
		return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	}
	app.CreatedAt = m.tick()
	cp := *app
	m.live[app.UniqueID] = &cp
	return nil
}

func (m *memAppStore) Insert(_ context.Context, app *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued[app.UniqueID] {
		return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint \"application_ids_pkey\""}
	}
	if err := m.insertLocked(app); err != nil {
		return err
	}
	m.issued[app.UniqueID] = true
	return nil
}

func (m *memAppStore) InsertBatch(_ context.Context, apps []*models.Application) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := map[string]bool{}
	for i, a := range apps {
		if i == m.failAt || staged[a.UniqueID] || m.issued[a.UniqueID] {
			return i, &pq.Error{Code: "23505", Message: "batch insert failed"}
		}
		staged[a.UniqueID] = true
	}
	for _, a := range apps {
		_ = m.insertLocked(a)
		m.issued[a.UniqueID] = true
	}
	return -1, nil
}

func (m *memAppStore) Get(_ context.Context, id string) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAppStore) sortedLive(keep func(*models.Application) bool) []*models.Application {
	out := []*models.Application{}
	for _, a := range m.live {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memAppStore) ListAll(context.Context) ([]*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLive(func(*models.Application) bool { return true }), nil
}

func (m *memAppStore) ListByContact(_ context.Context, contact string) ([]*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLive(func(a *models.Application) bool { return a.MainContactNumber == contact }), nil
}

func (m *memAppStore) ListRejected(context.Context) ([]*models.RejectedApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.RejectedApplication{}, m.rejected...), nil
}

func (m *memAppStore) ListRejectedByContact(_ context.Context, contact string) ([]*models.RejectedApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.RejectedApplication{}
	for _, r := range m.rejected {
		if r.MainContactNumber == contact {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memAppStore) ListByYear(_ context.Context, year int, approvedOnly bool, gender, _ string) ([]*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := fmt.Sprintf("%04d-", year)
	return m.sortedLive(func(a *models.Application) bool {
		return strings.HasPrefix(a.DateOfBirth, prefix) &&
			(!approvedOnly || a.ApprovedAt != nil) &&
			(gender == "" || a.Gender == gender)
	}), nil
}

func (m *memAppStore) GroupByGenderAndYear(context.Context) ([]models.GenderYearCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[models.GenderYearCount]int{}
	for _, a := range m.live {
		if a.ApprovedAt == nil || len(a.DateOfBirth) < 4 {
			continue
		}
		t, err := time.Parse("2006-01-02", a.DateOfBirth)
		if err != nil {
			continue
		}
		counts[models.GenderYearCount{Gender: a.Gender, YearCount: models.YearCount{Year: t.Year()}}]++
	}
	out := make([]models.GenderYearCount, 0, len(counts))
	for k, n := range counts {
		k.Count = n
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gender != out[j].Gender {
			return out[i].Gender < out[j].Gender
		}
		return out[i].Year > out[j].Year
	})
	return out, nil
}

func (m *memAppStore) Approve(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if a.ApprovedAt != nil {
		return repositories.ErrAlreadyApproved
	}
	a.ApprovedAt = &at
	return nil
}

func (m *memAppStore) Reject(_ context.Context, id, note string) (*models.RejectedApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	m.nextRej++
	rej := &models.RejectedApplication{
		ID:            m.nextRej,
		UniqueID:      a.UniqueID,
		Biodata:       a.Biodata,
		MainPhotoURL:  a.MainPhotoURL,
		SidePhotoURL:  a.SidePhotoURL,
		CreatedAt:     a.CreatedAt,
		RejectionNote: note,
		RejectedAt:    m.tick(),
	}
	m.rejected = append(m.rejected, rej)
	delete(m.live, id)
	return rej, nil
}

func (m *memAppStore) Resubmit(_ context.Context, contact string, b models.Biodata) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, r := range m.rejected {
		if r.MainContactNumber == contact && (idx < 0 || r.RejectedAt.After(m.rejected[idx].RejectedAt)) {
			idx = i
		}
	}
	if idx < 0 {
		return nil, repositories.ErrNotFound
	}
	rej := m.rejected[idx]
	m.rejected = append(m.rejected[:idx], m.rejected[idx+1:]...)
	app := &models.Application{
		UniqueID:     rej.UniqueID,
		Biodata:      b,
		MainPhotoURL: rej.MainPhotoURL,
		SidePhotoURL: rej.SidePhotoURL,
	}
	if err := m.insertLocked(app); err != nil {
		return nil, err
	}
	return app, nil
}

func (m *memAppStore) UpdateFields(_ context.Context, id string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live[id]
	if !ok {
		return repositories.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "main_photo_url":
			a.MainPhotoURL = v
		case "side_photo_url":
			a.SidePhotoURL = v
		default:
			a.Set(k, v)
		}
	}
	return nil
}

func (m *memAppStore) UpdateByContact(_ context.Context, contact string, b models.Biodata) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.live {
		if a.MainContactNumber == contact {
			b.MainContactNumber = contact
			a.Biodata = b
			n++
		}
	}
	return n, nil
}

func (m *memAppStore) SetPhotoByContact(_ context.Context, contact, column, filename string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.live {
		if a.MainContactNumber != contact {
			continue
		}
		if column == "main_photo_url" {
			a.MainPhotoURL = filename
		} else {
			a.SidePhotoURL = filename
		}
		n++
	}
	return n, nil
}

func (m *memAppStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.live, id)
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []*models.AdminLogEntry
}

func (m *memAudit) Append(_ context.Context, e *models.AdminLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.entries) + 1)
	e.Timestamp = time.Now()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) List(_ context.Context, limit, offset int) ([]*models.AdminLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset >= len(m.entries) {
		return []*models.AdminLogEntry{}, nil
	}
	end := offset + limit
	if end > len(m.entries) {
		end = len(m.entries)
	}
	return m.entries[offset:end], nil
}

func (m *memAudit) actions() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.AdminName + ":" + e.Action + ":" + e.ApplicationUniqueID
	}
	return out
}

// memPhotos records saved files without touching disk.
type memPhotos struct {
	saved []string
	err   error
}

func (p *memPhotos) Save(b64, role, id string) (string, error) {
	return p.SaveBytes([]byte(b64), role, id)
}

func (p *memPhotos) SaveBytes(_ []byte, role, id string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	name, err := PhotoFilename(role, id)
	if err != nil {
		return "", err
	}
	p.saved = append(p.saved, name)
	return name, nil
}

type memSink struct {
	events []events.Event
}

func (s *memSink) Publish(_ context.Context, e events.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *memSink) types() []string {
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}
