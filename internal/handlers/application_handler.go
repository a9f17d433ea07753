package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"biodata/internal/models"
)

// ApplicationAPI is the part of the application service the handlers need.
type ApplicationAPI interface {
	Submit(ctx context.Context, req models.SubmitRequest) (*models.Application, error)
	Get(ctx context.Context, uniqueID string) (*models.Application, error)
	Approve(ctx context.Context, uniqueID, admin string) (*models.Application, error)
	Reject(ctx context.Context, uniqueID, note, admin string) (*models.RejectedApplication, error)
	Resubmit(ctx context.Context, contact string, b models.Biodata) (*models.Application, error)
	Edit(ctx context.Context, uniqueID string, fields map[string]string, photos models.Photos, admin string) (*models.Application, error)
	UpdateByContact(ctx context.Context, b models.Biodata) (int64, error)
	UploadPhotoByContact(ctx context.Context, contact, role string, raw []byte) (string, error)
	Delete(ctx context.Context, uniqueID, admin string) error
	ListAll(ctx context.Context) ([]*models.Application, error)
	ListRejected(ctx context.Context) ([]*models.RejectedApplication, error)
	ListByContact(ctx context.Context, contact string) ([]models.ApplicationView, error)
	ListByYear(ctx context.Context, year int, gender string) ([]*models.Application, error)
	ListApprovedByYear(ctx context.Context, year int, gender string) ([]*models.Application, error)
	GroupByGenderAndYear(ctx context.Context) (map[string][]models.YearCount, error)
	LogAction(ctx context.Context, admin, action, uniqueID string) (*models.AdminLogEntry, error)
	ListLogs(ctx context.Context, limit, offset int) ([]*models.AdminLogEntry, error)
}

type ApplicationHandler struct {
	Service ApplicationAPI
}

func NewApplicationHandler(service ApplicationAPI) *ApplicationHandler {
	return &ApplicationHandler{Service: service}
}

// @Summary      Submit a biodata application
// @Tags         Applications
// @Accept       json
// @Produce      json
// @Param        body  body      models.SubmitRequest  true  "Biodata with optional base64 photos"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]interface{}
// @Router       /submit-application [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	var req models.SubmitRequest
	if !bindJSON(c, &req, "Invalid JSON body") {
		return
	}
	app, err := h.Service.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, "[application][submit]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "unique_id": app.UniqueID})
}

// @Summary      Applications for a contact number
// @Description  Live and rejected applications, newest first
// @Tags         Applications
// @Produce      json
// @Param        main_contact_number  query     string  true  "Contact number"
// @Success      200                  {object}  map[string]interface{}
// @Router       /applications [get]
func (h *ApplicationHandler) ListByContact(c *gin.Context) {
	contact := strings.TrimSpace(c.Query("main_contact_number"))
	if contact == "" {
		badRequest(c, "main_contact_number is required")
		return
	}
	list, err := h.Service.ListByContact(c.Request.Context(), contact)
	if err != nil {
		respondError(c, "[application][by-contact]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applications": list})
}

// @Summary      Applicant self-edit
// @Tags         Applications
// @Accept       json
// @Produce      json
// @Param        body  body      models.Biodata  true  "Full biodata, keyed by main_contact_number"
// @Success      200   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]interface{}
// @Router       /applications/update [put]
func (h *ApplicationHandler) UpdateByContact(c *gin.Context) {
	var b models.Biodata
	if !bindJSON(c, &b, "Invalid JSON body") {
		return
	}
	if _, err := h.Service.UpdateByContact(c.Request.Context(), b); err != nil {
		respondError(c, "[application][update]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary      Upload a photo for a contact number
// @Tags         Applications
// @Accept       multipart/form-data
// @Produce      json
// @Param        main_contact_number  path      string  true   "Contact number"
// @Param        type                 query     string  true   "main or side"
// @Param        photo                formData  file    true   "Image"
// @Success      200                  {object}  map[string]interface{}
// @Router       /upload-photo/{main_contact_number} [post]
func (h *ApplicationHandler) UploadPhoto(c *gin.Context) {
	fh, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, "photo file is required")
		return
	}
	raw, err := readFormFile(fh)
	if err != nil {
		respondError(c, "[application][upload-photo]", err)
		return
	}
	name, err := h.Service.UploadPhotoByContact(c.Request.Context(), c.Param("main_contact_number"), c.Query("type"), raw)
	if err != nil {
		respondError(c, "[application][upload-photo]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "path": name})
}

// @Summary      Approved applications per gender and birth year
// @Tags         Applications
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /grouped-by-gender [get]
func (h *ApplicationHandler) GroupedByGender(c *gin.Context) {
	data, err := h.Service.GroupByGenderAndYear(c.Request.Context())
	if err != nil {
		respondError(c, "[application][grouped]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// @Summary      Approved applications born in a year
// @Tags         Applications
// @Produce      json
// @Param        year    path   int     true   "Birth year"
// @Param        gender  query  string  false  "Gender filter"
// @Success      200     {object}  map[string]interface{}
// @Router       /applications/by-year/{year} [get]
func (h *ApplicationHandler) ByYear(c *gin.Context) {
	h.byYear(c, h.Service.ListByYear)
}

// @Summary      Approved applications born in a year, by approval time
// @Tags         Applications
// @Produce      json
// @Param        year    path   int     true   "Birth year"
// @Param        gender  query  string  false  "Gender filter"
// @Success      200     {object}  map[string]interface{}
// @Router       /approved/{year} [get]
func (h *ApplicationHandler) ApprovedByYear(c *gin.Context) {
	h.byYear(c, h.Service.ListApprovedByYear)
}

func (h *ApplicationHandler) byYear(c *gin.Context, list func(context.Context, int, string) ([]*models.Application, error)) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		badRequest(c, "Invalid year")
		return
	}
	apps, err := list(c.Request.Context(), year, strings.TrimSpace(c.Query("gender")))
	if err != nil {
		respondError(c, "[application][by-year]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applications": apps})
}

// @Summary      Re-submit a rejected application
// @Tags         Applications
// @Accept       json
// @Produce      json
// @Param        main_contact_number  path      string          true  "Contact number"
// @Param        body                 body      models.Biodata  true  "Corrected biodata"
// @Success      200                  {object}  map[string]interface{}
// @Failure      404                  {object}  map[string]interface{}
// @Router       /resubmit/{main_contact_number} [put]
func (h *ApplicationHandler) Resubmit(c *gin.Context) {
	var b models.Biodata
	if !bindJSON(c, &b, "Invalid JSON body") {
		return
	}
	if _, err := h.Service.Resubmit(c.Request.Context(), c.Param("main_contact_number"), b); err != nil {
		respondError(c, "[application][resubmit]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Application re-submitted successfully"})
}
