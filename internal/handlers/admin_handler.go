package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"biodata/internal/models"
	"biodata/internal/services"
)

type PDFRenderer interface {
	Render(w io.Writer, a *models.Application) error
}

// AdminHandler serves the moderation endpoints. Every route sits behind AdminAuth.
type AdminHandler struct {
	Apps ApplicationAPI
	PDF  PDFRenderer
}

func NewAdminHandler(apps ApplicationAPI, pdf PDFRenderer) *AdminHandler {
	return &AdminHandler{Apps: apps, PDF: pdf}
}

// @Summary      All live applications
// @Tags         Admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /admin/applications [get]
func (h *AdminHandler) ListApplications(c *gin.Context) {
	apps, err := h.Apps.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, "[admin][applications]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applications": apps})
}

// @Summary      One application
// @Tags         Admin
// @Security     BearerAuth
// @Produce      json
// @Param        unique_id  path      string  true  "Application id"
// @Success      200        {object}  map[string]interface{}
// @Failure      404        {object}  map[string]interface{}
// @Router       /admin/applications/{unique_id} [get]
func (h *AdminHandler) GetApplication(c *gin.Context) {
	app, err := h.Apps.Get(c.Request.Context(), c.Param("unique_id"))
	if err != nil {
		respondError(c, "[admin][application][get]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "application": app})
}

// @Summary      Biodata PDF
// @Tags         Admin
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        unique_id  path  string  true  "Application id"
// @Success      200
// @Router       /admin/applications/{unique_id}/pdf [get]
func (h *AdminHandler) ApplicationPDF(c *gin.Context) {
	app, err := h.Apps.Get(c.Request.Context(), c.Param("unique_id"))
	if err != nil {
		respondError(c, "[admin][application][pdf]", err)
		return
	}
	var buf bytes.Buffer
	if err := h.PDF.Render(&buf, app); err != nil {
		respondError(c, "[admin][application][pdf]", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="biodata_%s.pdf"`, app.UniqueID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// @Summary      Rejected applications
// @Tags         Admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /admin/rejected-applications [get]
func (h *AdminHandler) ListRejected(c *gin.Context) {
	list, err := h.Apps.ListRejected(c.Request.Context())
	if err != nil {
		respondError(c, "[admin][rejected]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applications": list})
}

// @Summary      Approve an application
// @Tags         Admin
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Application id"
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /admin/approve/{id} [post]
func (h *AdminHandler) Approve(c *gin.Context) {
	app, err := h.Apps.Approve(c.Request.Context(), c.Param("id"), adminName(c))
	if err != nil {
		respondError(c, "[admin][approve]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "approved_at": app.ApprovedAt})
}

type rejectBody struct {
	RejectionNote string `json:"rejection_note"`
}

// @Summary      Reject an application
// @Tags         Admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        unique_id  path      string      true  "Application id"
// @Param        body       body      rejectBody  true  "Note for the applicant"
// @Success      200        {object}  map[string]interface{}
// @Router       /admin/reject/{unique_id} [post]
func (h *AdminHandler) Reject(c *gin.Context) {
	var body rejectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid JSON body")
		return
	}
	if _, err := h.Apps.Reject(c.Request.Context(), c.Param("unique_id"), body.RejectionNote, adminName(c)); err != nil {
		respondError(c, "[admin][reject]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Application rejected with note"})
}

// @Summary      Edit an application
// @Description  Partial update. JSON bodies may carry main_photo_base64/side_photo_base64;
// @Description  multipart bodies carry main_photo/side_photo files.
// @Tags         Admin
// @Security     BearerAuth
// @Accept       json
// @Accept       multipart/form-data
// @Produce      json
// @Param        unique_id  path      string  true  "Application id"
// @Success      200        {object}  map[string]interface{}
// @Router       /admin/application/{unique_id} [put]
func (h *AdminHandler) Edit(c *gin.Context) {
	var (
		fields map[string]string
		photos models.Photos
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fields, photos, err = editFromMultipart(c)
	} else {
		fields, photos, err = editFromJSON(c)
	}
	if err != nil {
		respondError(c, "[admin][edit]", err)
		return
	}
	app, err := h.Apps.Edit(c.Request.Context(), c.Param("unique_id"), fields, photos, adminName(c))
	if err != nil {
		respondError(c, "[admin][edit]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "application": app})
}

func editFromJSON(c *gin.Context) (map[string]string, models.Photos, error) {
	var (
		raw    map[string]any
		photos models.Photos
	)
	if err := decodeJSONBody(c, &raw); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return nil, photos, err
		}
		return nil, photos, fmt.Errorf("%w: invalid JSON body", services.ErrValidation)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch k {
		case "main_photo_base64":
			photos.MainBase64 = stringify(v)
		case "side_photo_base64":
			photos.SideBase64 = stringify(v)
		default:
			fields[k] = stringify(v)
		}
	}
	return fields, photos, nil
}

func editFromMultipart(c *gin.Context) (map[string]string, models.Photos, error) {
	var photos models.Photos
	form, err := c.MultipartForm()
	if err != nil {
		return nil, photos, fmt.Errorf("%w: invalid multipart body", services.ErrValidation)
	}
	fields := make(map[string]string, len(form.Value))
	for k, vs := range form.Value {
		if len(vs) > 0 {
			fields[k] = vs[0]
		}
	}
	if fhs := form.File["main_photo"]; len(fhs) > 0 {
		if photos.MainRaw, err = readFormFile(fhs[0]); err != nil {
			return nil, photos, err
		}
	}
	if fhs := form.File["side_photo"]; len(fhs) > 0 {
		if photos.SideRaw, err = readFormFile(fhs[0]); err != nil {
			return nil, photos, err
		}
	}
	return fields, photos, nil
}

// @Summary      Delete an application
// @Tags         Admin
// @Security     BearerAuth
// @Produce      json
// @Param        unique_id  path      string  true  "Application id"
// @Success      200        {object}  map[string]interface{}
// @Router       /admin/application/{unique_id} [delete]
func (h *AdminHandler) Delete(c *gin.Context) {
	if err := h.Apps.Delete(c.Request.Context(), c.Param("unique_id"), adminName(c)); err != nil {
		respondError(c, "[admin][delete]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type logActionBody struct {
	Action              string `json:"action" binding:"required"`
	ApplicationUniqueID string `json:"application_unique_id"`
}

// @Summary      Record a moderator action
// @Tags         Admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      logActionBody  true  "Action"
// @Success      200   {object}  map[string]interface{}
// @Router       /admin/log-action [post]
func (h *AdminHandler) LogAction(c *gin.Context) {
	var body logActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "action is required")
		return
	}
	if _, err := h.Apps.LogAction(c.Request.Context(), adminName(c), body.Action, body.ApplicationUniqueID); err != nil {
		respondError(c, "[admin][log-action]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary      Moderator action log
// @Tags         Admin
// @Security     BearerAuth
// @Produce      json
// @Param        limit   query  int  false  "Page size (max 500)"
// @Param        offset  query  int  false  "Offset"
// @Success      200     {object}  map[string]interface{}
// @Router       /admin/logs [get]
func (h *AdminHandler) ListLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	logs, err := h.Apps.ListLogs(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, "[admin][logs]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "logs": logs})
}
