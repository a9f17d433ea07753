package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"biodata/internal/middleware"
	"biodata/internal/models"
	"biodata/internal/services"
)

type stubAccess struct {
	AccessAPI
	verifyErr  error
	requestErr error
}

func (s *stubAccess) RequestAccess(context.Context, models.AccessRequestInput) error {
	return s.requestErr
}

func (s *stubAccess) VerifyOTP(context.Context, string, string) error { return s.verifyErr }

// stubApps embeds the interface so unused methods panic if reached.
type stubApps struct {
	ApplicationAPI
	app       *models.Application
	err       error
	gotFields map[string]string
	gotPhotos models.Photos
	gotAdmin  string
}

func (s *stubApps) Get(_ context.Context, id string) (*models.Application, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.app, nil
}

func (s *stubApps) Approve(_ context.Context, id, admin string) (*models.Application, error) {
	s.gotAdmin = admin
	if s.err != nil {
		return nil, s.err
	}
	return s.app, nil
}

func (s *stubApps) Edit(_ context.Context, id string, fields map[string]string, photos models.Photos, admin string) (*models.Application, error) {
	s.gotFields, s.gotPhotos, s.gotAdmin = fields, photos, admin
	return s.app, s.err
}

func (s *stubApps) Resubmit(context.Context, string, models.Biodata) (*models.Application, error) {
	return s.app, s.err
}

type stubImport struct {
	err error
}

func (s *stubImport) ImportFile(context.Context, string, io.Reader) (*services.ImportResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.ImportResult{Inserted: 1, Rows: []services.ImportRowResult{{Row: 1, UniqueID: "a1b2c3d4"}}}, nil
}

type stubPDF struct{}

func (stubPDF) Render(w io.Writer, a *models.Application) error {
	_, err := io.WriteString(w, "%PDF-1.3 "+a.UniqueID)
	return err
}

func asAdmin(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxAdminName, name)
		c.Next()
	}
}

func send(r http.Handler, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestVerifyOTPStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{nil, http.StatusOK, "OTP verified successfully"},
		{services.ErrCodeMismatch, http.StatusUnauthorized, "Invalid OTP"},
		{services.ErrNoPendingRequest, http.StatusUnauthorized, "Invalid OTP or already verified"},
		{fmt.Errorf("%w: boom", services.ErrDatabase), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		r := gin.New()
		r.POST("/verify-otp", NewAccessHandler(&stubAccess{verifyErr: tc.err}).VerifyOTP)

		w := send(r, http.MethodPost, "/verify-otp", "application/json",
			strings.NewReader(`{"phone_number":"+77001112233","otp":"123456"}`))
		require.Equal(t, tc.status, w.Code)
		require.Equal(t, tc.msg, decode(t, w)["message"])
	}
}

func TestRequestAccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &stubAccess{}
	r.POST("/request-access", NewAccessHandler(h).RequestAccess)

	w := send(r, http.MethodPost, "/request-access", "application/json", strings.NewReader(`{"full_name":"A"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	h.requestErr = services.ErrResendThrottled
	w = send(r, http.MethodPost, "/request-access", "application/json",
		strings.NewReader(`{"full_name":"A","phone_number":"+77001112233"}`))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	h.requestErr = fmt.Errorf("%w: user not found or not verified", services.ErrNotFound)
	w = send(r, http.MethodPost, "/request-access", "application/json",
		strings.NewReader(`{"full_name":"A","phone_number":"+77001112233","is_existing":true}`))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveUsesSessionAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	apps := &stubApps{app: &models.Application{UniqueID: "a1b2c3d4", ApprovedAt: &at}}
	r := gin.New()
	r.POST("/admin/approve/:id", asAdmin("mod"), NewAdminHandler(apps, stubPDF{}).Approve)

	w := send(r, http.MethodPost, "/admin/approve/a1b2c3d4", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "mod", apps.gotAdmin)
	require.Equal(t, "2024-05-01T10:00:00Z", decode(t, w)["approved_at"])

	apps.err = fmt.Errorf("%w: already approved", services.ErrConflict)
	w = send(r, http.MethodPost, "/admin/approve/a1b2c3d4", "", nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestEditJSONStringifiesValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	apps := &stubApps{app: &models.Application{UniqueID: "a1b2c3d4"}}
	r := gin.New()
	r.PUT("/admin/application/:unique_id", asAdmin("mod"), NewAdminHandler(apps, stubPDF{}).Edit)

	w := send(r, http.MethodPut, "/admin/application/a1b2c3d4", "application/json",
		strings.NewReader(`{"height":172,"siblings":null,"company":"Acme","main_photo_base64":"aGk="}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]string{"height": "172", "siblings": "", "company": "Acme"}, apps.gotFields)
	require.Equal(t, "aGk=", apps.gotPhotos.MainBase64)
}

func TestEditMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	apps := &stubApps{app: &models.Application{UniqueID: "a1b2c3d4"}}
	r := gin.New()
	r.PUT("/admin/application/:unique_id", NewAdminHandler(apps, stubPDF{}).Edit)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("gothram", "Kashyapa"))
	fw, err := mw.CreateFormFile("side_photo", "side.jpg")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("raw-image"))
	require.NoError(t, mw.Close())

	w := send(r, http.MethodPut, "/admin/application/a1b2c3d4", mw.FormDataContentType(), &body)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Kashyapa", apps.gotFields["gothram"])
	require.Equal(t, []byte("raw-image"), apps.gotPhotos.SideRaw)
	require.Empty(t, apps.gotPhotos.MainRaw)
}

func TestApplicationPDF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAdminHandler(&stubApps{app: &models.Application{UniqueID: "a1b2c3d4"}}, stubPDF{})
	r.GET("/admin/applications/:unique_id/pdf", h.ApplicationPDF)

	w := send(r, http.MethodGet, "/admin/applications/a1b2c3d4/pdf", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "biodata_a1b2c3d4.pdf")
	require.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))

	r = gin.New()
	h = NewAdminHandler(&stubApps{err: fmt.Errorf("%w: application x", services.ErrNotFound)}, stubPDF{})
	r.GET("/admin/applications/:unique_id/pdf", h.ApplicationPDF)
	require.Equal(t, http.StatusNotFound, send(r, http.MethodGet, "/admin/applications/x/pdf", "", nil).Code)
}

func TestResubmitNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.PUT("/resubmit/:main_contact_number", NewApplicationHandler(&stubApps{err: fmt.Errorf("%w: none", services.ErrNotFound)}).Resubmit)

	w := send(r, http.MethodPut, "/resubmit/555", "application/json", strings.NewReader(`{"name":"A"}`))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, false, decode(t, w)["success"])
}

func uploadCSV(t *testing.T, r http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "rows.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("name,gender,date_of_birth,main_contact_number\n"))
	require.NoError(t, mw.Close())
	return send(r, http.MethodPost, "/admin/upload-csv", mw.FormDataContentType(), &body)
}

func TestImportUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/admin/upload-csv", NewImportHandler(&stubImport{}).Upload)
	w := uploadCSV(t, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, decode(t, w)["inserted"])

	rowErr := &services.ImportRowError{Row: 3, Field: "date_of_birth", Reason: "must be YYYY-MM-DD", Err: services.ErrValidation}
	r = gin.New()
	r.POST("/admin/upload-csv", NewImportHandler(&stubImport{err: rowErr}).Upload)
	w = uploadCSV(t, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
	detail := decode(t, w)["error"].(map[string]any)
	require.EqualValues(t, 3, detail["row"])
	require.Equal(t, "date_of_birth", detail["field"])
}

func TestJSONBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prev := maxJSONBodyBytes
	maxJSONBodyBytes = 64
	t.Cleanup(func() { maxJSONBodyBytes = prev })

	apps := &stubApps{app: &models.Application{UniqueID: "a1b2c3d4"}}
	r := gin.New()
	h := NewApplicationHandler(apps)
	r.POST("/submit-application", h.Submit)
	r.PUT("/admin/application/:unique_id", NewAdminHandler(apps, stubPDF{}).Edit)

	big := `{"name":"Asha","main_photo_base64":"` + strings.Repeat("A", 256) + `"}`

	w := send(r, http.MethodPost, "/submit-application", "application/json", strings.NewReader(big))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.Equal(t, false, decode(t, w)["success"])

	w = send(r, http.MethodPut, "/admin/application/a1b2c3d4", "application/json", strings.NewReader(big))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.Nil(t, apps.gotFields)

	w = send(r, http.MethodPut, "/admin/application/a1b2c3d4", "application/json", strings.NewReader(`{"company":"Acme"}`))
	require.Equal(t, http.StatusOK, w.Code)
}
