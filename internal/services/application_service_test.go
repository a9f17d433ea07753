package services

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"biodata/internal/events"
	"biodata/internal/models"
)

type appFixture struct {
	svc    *ApplicationService
	store  *memAppStore
	audit  *memAudit
	photos *memPhotos
	sink   *memSink
}

func newAppFixture() *appFixture {
	f := &appFixture{
		store:  newMemAppStore(),
		audit:  &memAudit{},
		photos: &memPhotos{},
		sink:   &memSink{},
	}
	f.svc = NewApplicationService(f.store, f.audit, f.photos, f.sink)
	return f
}

func biodataA() models.Biodata {
	return models.Biodata{
		Name:              "Asha",
		Gender:            "Female",
		DateOfBirth:       "1995-04-12T00:00:00.000Z",
		PlaceOfBirth:      "Chennai",
		Gothram:           "Kashyapa",
		EmailID:           "asha@example.com",
		MainContactNumber: "+919000000001",
	}
}

var idPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestSubmit_PendingWithWellFormedID(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	app, err := f.svc.Submit(ctx, models.SubmitRequest{
		Biodata:         biodataA(),
		MainPhotoBase64: "main-bytes",
		SidePhotoBase64: "side-bytes",
	})
	require.NoError(t, err)
	require.Regexp(t, idPattern, app.UniqueID)

	stored, err := f.svc.Get(ctx, app.UniqueID)
	require.NoError(t, err)
	require.Nil(t, stored.ApprovedAt)
	require.Equal(t, models.StagePending, stored.State().Stage)
	require.Equal(t, "1995-04-12", stored.DateOfBirth)
	require.Equal(t, "main_"+app.UniqueID+".jpg", stored.MainPhotoURL)
	require.Equal(t, "side_"+app.UniqueID+".jpg", stored.SidePhotoURL)
	require.ElementsMatch(t, []string{stored.MainPhotoURL, stored.SidePhotoURL}, f.photos.saved)
	require.Equal(t, []string{events.TypeSubmitted}, f.sink.types())
}

func TestSubmit_RetriesOnIDCollision(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	f.svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaa", first.UniqueID)

	second, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)
	require.Equal(t, "bbbbbbbb", second.UniqueID)
}

func TestSubmit_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newAppFixture()
	f.svc.newID = func() string { return "cafebabe" }
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.ErrorIs(t, err, ErrConflict)
}

func TestSubmit_Validation(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	b := biodataA()
	b.MainContactNumber = ""
	_, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: b})
	require.ErrorIs(t, err, ErrValidation)

	b = biodataA()
	b.DateOfBirth = "12/04/1995"
	_, err = f.svc.Submit(ctx, models.SubmitRequest{Biodata: b})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, f.store.live)
}

func TestSubmit_PhotoFailureRemovesRow(t *testing.T) {
	f := newAppFixture()
	f.photos.err = fmt.Errorf("%w: bad image", ErrDecode)

	_, err := f.svc.Submit(context.Background(), models.SubmitRequest{Biodata: biodataA(), MainPhotoBase64: "junk"})
	require.ErrorIs(t, err, ErrDecode)
	require.Empty(t, f.store.live)
}

func TestApprove_SecondCallConflictsAndKeepsTimestamp(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return first }

	app, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, app.UniqueID, "root")
	require.NoError(t, err)
	require.Equal(t, first, *approved.ApprovedAt)

	f.svc.now = func() time.Time { return first.Add(time.Hour) }
	_, err = f.svc.Approve(ctx, app.UniqueID, "root")
	require.ErrorIs(t, err, ErrConflict)

	stored, err := f.svc.Get(ctx, app.UniqueID)
	require.NoError(t, err)
	require.Equal(t, first, *stored.ApprovedAt)
	require.Equal(t, []string{"root:approved:" + app.UniqueID}, f.audit.actions())
}

func TestApprove_ConcurrentApprovalReportedAsConflict(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()
	app, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)

	// another moderator wins between the read and the guarded update
	racing := &racingApproveStore{memAppStore: f.store}
	f.svc.Repo = racing
	_, err = f.svc.Approve(ctx, app.UniqueID, "root")
	require.ErrorIs(t, err, ErrConflict)
}

type racingApproveStore struct {
	*memAppStore
}

func (r *racingApproveStore) Approve(ctx context.Context, id string, at time.Time) error {
	_ = r.memAppStore.Approve(ctx, id, at.Add(-time.Minute))
	return r.memAppStore.Approve(ctx, id, at)
}

func TestApprove_NotFound(t *testing.T) {
	f := newAppFixture()
	_, err := f.svc.Approve(context.Background(), "deadbeef", "root")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRejectThenResubmit_TakesNewFieldsKeepsIdentity(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	app, err := f.svc.Submit(ctx, models.SubmitRequest{
		Biodata:         biodataA(),
		MainPhotoBase64: "m",
		SidePhotoBase64: "s",
	})
	require.NoError(t, err)

	rej, err := f.svc.Reject(ctx, app.UniqueID, "  blurry photo ", "root")
	require.NoError(t, err)
	require.Equal(t, "blurry photo", rej.RejectionNote)
	require.Equal(t, models.StageRejected, rej.State().Stage)

	_, err = f.svc.Get(ctx, app.UniqueID)
	require.ErrorIs(t, err, ErrNotFound)

	b := models.Biodata{
		Name:        "Asha R",
		Gender:      "Female",
		DateOfBirth: "1995-04-13",
		Company:     "Acme",
	}
	re, err := f.svc.Resubmit(ctx, "+919000000001", b)
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, re.UniqueID)
	require.NoError(t, err)
	require.Equal(t, app.UniqueID, stored.UniqueID)
	require.Equal(t, app.MainPhotoURL, stored.MainPhotoURL)
	require.Equal(t, app.SidePhotoURL, stored.SidePhotoURL)
	require.Nil(t, stored.ApprovedAt)

	want := b
	want.MainContactNumber = "+919000000001"
	require.Equal(t, want, stored.Biodata)
	// fields only present in the first submission are gone
	require.Empty(t, stored.PlaceOfBirth)
	require.Empty(t, stored.Gothram)

	require.Empty(t, f.store.rejected)
	require.Equal(t, []string{events.TypeSubmitted, events.TypeRejected, events.TypeResubmitted}, f.sink.types())
}

func TestSubmit_DoesNotReuseRejectedID(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	f.svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, first.UniqueID, "", "root")
	require.NoError(t, err)

	b := biodataA()
	b.MainContactNumber = "+919000000002"
	second, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: b})
	require.NoError(t, err)
	require.Equal(t, "bbbbbbbb", second.UniqueID)

	back, err := f.svc.Resubmit(ctx, "+919000000001", biodataA())
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaa", back.UniqueID)
}

func TestReject_ApprovedApplication(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()
	app, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, app.UniqueID, "root")
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, app.UniqueID, "duplicate", "root")
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, app.UniqueID, "again", "root")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResubmit_NotFound(t *testing.T) {
	f := newAppFixture()
	_, err := f.svc.Resubmit(context.Background(), "+1", models.Biodata{Name: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEdit(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()
	app, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)

	t.Run("partial update strips identity keys", func(t *testing.T) {
		updated, err := f.svc.Edit(ctx, app.UniqueID, map[string]string{
			"unique_id":     "hijacked",
			"id":            "7",
			"created_at":    "2020-01-01T00:00:00Z",
			"height":        "5'6\"",
			"date_of_birth": "1995-05-01T00:00:00.000Z",
		}, models.Photos{}, "root")
		require.NoError(t, err)
		require.Equal(t, app.UniqueID, updated.UniqueID)
		require.Equal(t, "5'6\"", updated.Height)
		require.Equal(t, "1995-05-01", updated.DateOfBirth)
		require.Equal(t, "Asha", updated.Name)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := f.svc.Edit(ctx, app.UniqueID, map[string]string{"password": "x"}, models.Photos{}, "root")
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("photos overwrite in place", func(t *testing.T) {
		updated, err := f.svc.Edit(ctx, app.UniqueID, nil, models.Photos{MainRaw: []byte("img")}, "root")
		require.NoError(t, err)
		require.Equal(t, "main_"+app.UniqueID+".jpg", updated.MainPhotoURL)
		require.Empty(t, updated.SidePhotoURL)
	})

	t.Run("missing application", func(t *testing.T) {
		_, err := f.svc.Edit(ctx, "00000000", map[string]string{"height": "6"}, models.Photos{}, "root")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGroupByGenderAndYear_ExcludesPending(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	add := func(gender, dob string, approve bool) {
		b := biodataA()
		b.Gender, b.DateOfBirth = gender, dob
		app, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: b})
		require.NoError(t, err)
		if approve {
			_, err = f.svc.Approve(ctx, app.UniqueID, "root")
			require.NoError(t, err)
		}
	}
	for i := 0; i < 3; i++ {
		add("Male", "2020-02-01", true)
	}
	for i := 0; i < 2; i++ {
		add("Female", "2021-06-15", true)
	}
	add("Male", "2020-03-03", false)

	got, err := f.svc.GroupByGenderAndYear(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string][]models.YearCount{
		"Male":   {{Year: 2020, Count: 3}},
		"Female": {{Year: 2021, Count: 2}},
	}, got)
}

func TestListByContact_TagsLiveAndRejected(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	pending, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)
	approved, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, approved.UniqueID, "root")
	require.NoError(t, err)
	rejected, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, rejected.UniqueID, "incomplete", "root")
	require.NoError(t, err)

	other := biodataA()
	other.MainContactNumber = "+919999999999"
	_, err = f.svc.Submit(ctx, models.SubmitRequest{Biodata: other})
	require.NoError(t, err)

	views, err := f.svc.ListByContact(ctx, "+919000000001")
	require.NoError(t, err)
	require.Len(t, views, 3)

	byID := map[string]models.ApplicationView{}
	for _, v := range views {
		byID[v.UniqueID] = v
	}
	require.Equal(t, "Approved", byID[pending.UniqueID].Status)
	require.Equal(t, models.StagePending, byID[pending.UniqueID].State)
	require.Equal(t, "Approved", byID[approved.UniqueID].Status)
	require.Equal(t, models.StageApproved, byID[approved.UniqueID].State)
	require.Equal(t, "Rejected", byID[rejected.UniqueID].Status)
	require.Equal(t, models.StageRejected, byID[rejected.UniqueID].State)
	require.Equal(t, "incomplete", byID[rejected.UniqueID].RejectionNote)

	_, err = f.svc.ListByContact(ctx, " ")
	require.ErrorIs(t, err, ErrValidation)
}

func TestListByYear(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()

	for _, g := range []string{"Male", "Female"} {
		b := biodataA()
		b.Gender, b.DateOfBirth = g, "1990-01-01"
		app, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: b})
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, app.UniqueID, "root")
		require.NoError(t, err)
	}
	b := biodataA()
	b.DateOfBirth = "1990-07-07"
	_, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: b})
	require.NoError(t, err)

	all, err := f.svc.ListByYear(ctx, 1990, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	males, err := f.svc.ListApprovedByYear(ctx, 1990, "Male")
	require.NoError(t, err)
	require.Len(t, males, 1)

	_, err = f.svc.ListByYear(ctx, 12, "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateByContactAndPhotoUpload(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()
	app, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)

	b := biodataA()
	b.Company = "Initech"
	n, err := f.svc.UpdateByContact(ctx, b)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	name, err := f.svc.UploadPhotoByContact(ctx, b.MainContactNumber, PhotoSide, []byte("img"))
	require.NoError(t, err)
	want, err := PhotoFilename(PhotoSide, b.MainContactNumber)
	require.NoError(t, err)
	require.Equal(t, want, name)

	stored, err := f.svc.Get(ctx, app.UniqueID)
	require.NoError(t, err)
	require.Equal(t, "Initech", stored.Company)
	require.Equal(t, name, stored.SidePhotoURL)

	_, err = f.svc.UploadPhotoByContact(ctx, b.MainContactNumber, "back", []byte("img"))
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.UploadPhotoByContact(ctx, "+0", PhotoMain, []byte("img"))
	require.ErrorIs(t, err, ErrNotFound)

	b.MainContactNumber = "+0"
	_, err = f.svc.UpdateByContact(ctx, b)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndLogs(t *testing.T) {
	f := newAppFixture()
	ctx := context.Background()
	app, err := f.svc.Submit(ctx, models.SubmitRequest{Biodata: biodataA()})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, app.UniqueID, "root"))
	require.ErrorIs(t, f.svc.Delete(ctx, app.UniqueID, "root"), ErrNotFound)
	require.Equal(t, []string{events.TypeSubmitted, events.TypeDeleted}, f.sink.types())
	require.Equal(t, "root", f.sink.events[1].Admin)
	require.Equal(t, "Asha", f.sink.events[1].Name)

	_, err = f.svc.LogAction(ctx, "root", "viewed", app.UniqueID)
	require.NoError(t, err)
	_, err = f.svc.LogAction(ctx, "root", " ", app.UniqueID)
	require.ErrorIs(t, err, ErrValidation)

	logs, err := f.svc.ListLogs(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "deleted", logs[0].Action)
	require.Equal(t, "viewed", logs[1].Action)
}

func TestLifecycleTransitions(t *testing.T) {
	require.True(t, canTransition(models.StagePending, models.StageApproved))
	require.True(t, canTransition(models.StagePending, models.StageRejected))
	require.True(t, canTransition(models.StageApproved, models.StageRejected))
	require.True(t, canTransition(models.StageRejected, models.StagePending))
	require.False(t, canTransition(models.StageApproved, models.StageApproved))
	require.False(t, canTransition(models.StageRejected, models.StageApproved))
}
