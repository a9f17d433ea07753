package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"biodata/internal/authz"
	"biodata/internal/models"
	"biodata/internal/services"
)

type AdminAuthAPI interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
}

type AdminAuthHandler struct {
	Service AdminAuthAPI
}

func NewAdminAuthHandler(service AdminAuthAPI) *AdminAuthHandler {
	return &AdminAuthHandler{Service: service}
}

// @Summary      Admin login
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        body  body      models.LoginRequest  true  "Credentials"
// @Success      200   {object}  map[string]interface{}
// @Failure      401   {object}  map[string]interface{}
// @Router       /admin/auth/login [post]
func (h *AdminAuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}
	res, err := h.Service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, "[admin][login]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"admin": gin.H{
			"name": res.Admin.Username,
			"role": authz.RoleName(res.Admin.Role),
		},
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
	})
}
