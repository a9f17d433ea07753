package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"biodata/internal/models"
)

type AccessAPI interface {
	RequestAccess(ctx context.Context, in models.AccessRequestInput) error
	VerifyOTP(ctx context.Context, phone, code string) error
	ListAccessRequests(ctx context.Context) ([]*models.AccessRequest, error)
	ListVerifiedUsers(ctx context.Context) ([]*models.AccessRequest, error)
	UpdateAccessRequest(ctx context.Context, id int64, in models.AccessRequestInput) (*models.AccessRequest, error)
	DeleteAccessRequest(ctx context.Context, id int64) error
}

type AccessHandler struct {
	Service AccessAPI
}

func NewAccessHandler(service AccessAPI) *AccessHandler {
	return &AccessHandler{Service: service}
}

// @Summary      Request an access code
// @Description  Registers a phone number (or re-issues a code for a verified user) and sends an OTP by SMS
// @Tags         Access
// @Accept       json
// @Produce      json
// @Param        body  body      models.AccessRequestInput  true  "Applicant identity"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]interface{}
// @Failure      429   {object}  map[string]interface{}
// @Router       /request-access [post]
func (h *AccessHandler) RequestAccess(c *gin.Context) {
	var in models.AccessRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "full_name and phone_number are required")
		return
	}
	if err := h.Service.RequestAccess(c.Request.Context(), in); err != nil {
		respondError(c, "[access][request]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "OTP sent"})
}

// @Summary      Verify an access code
// @Tags         Access
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyOTPInput  true  "Phone and code"
// @Success      200   {object}  map[string]interface{}
// @Failure      401   {object}  map[string]interface{}
// @Router       /verify-otp [post]
func (h *AccessHandler) VerifyOTP(c *gin.Context) {
	var in models.VerifyOTPInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Phone number and OTP are required")
		return
	}
	if err := h.Service.VerifyOTP(c.Request.Context(), in.PhoneNumber, in.OTP); err != nil {
		respondError(c, "[access][verify]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "OTP verified successfully"})
}

func (h *AccessHandler) ListAccessRequests(c *gin.Context) {
	list, err := h.Service.ListAccessRequests(c.Request.Context())
	if err != nil {
		respondError(c, "[admin][access-requests]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
}

func (h *AccessHandler) ListVerifiedUsers(c *gin.Context) {
	list, err := h.Service.ListVerifiedUsers(c.Request.Context())
	if err != nil {
		respondError(c, "[admin][verified-users]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": list})
}

// UpdateAccessRequest serves both /access-request/:id and /verified-users/:id.
func (h *AccessHandler) UpdateAccessRequest(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	var in models.AccessRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "full_name and phone_number are required")
		return
	}
	ar, err := h.Service.UpdateAccessRequest(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, "[admin][access-request][update]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": ar})
}

func (h *AccessHandler) DeleteAccessRequest(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}
	if err := h.Service.DeleteAccessRequest(c.Request.Context(), id); err != nil {
		respondError(c, "[admin][access-request][delete]", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
