package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"biodata/internal/services"
)

type ImportAPI interface {
	ImportFile(ctx context.Context, filename string, r io.Reader) (*services.ImportResult, error)
}

type ImportHandler struct {
	Service ImportAPI
}

func NewImportHandler(service ImportAPI) *ImportHandler {
	return &ImportHandler{Service: service}
}

// @Summary      Bulk import approved applications
// @Description  CSV or XLSX. Every row is validated before anything is written.
// @Tags         Admin
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "CSV or XLSX sheet"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]interface{}
// @Router       /admin/upload-csv [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, "[admin][import]", fmt.Errorf("%w: open upload: %v", services.ErrIO, err))
		return
	}
	defer f.Close()

	res, err := h.Service.ImportFile(c.Request.Context(), fh.Filename, f)
	if err != nil {
		var rowErr *services.ImportRowError
		if errors.As(err, &rowErr) && errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": rowErr.Error(), "error": rowErr})
			return
		}
		respondError(c, "[admin][import]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  fmt.Sprintf("Imported %d applications", res.Inserted),
		"inserted": res.Inserted,
		"rows":     res.Rows,
	})
}
