package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"biodata/internal/middleware"
	"biodata/internal/services"
)

const maxUploadBytes = 10 << 20

// maxJSONBodyBytes fits two base64 photos of maxUploadBytes each plus the biodata.
var maxJSONBodyBytes int64 = 32 << 20

var errBodyTooLarge = errors.New("request body too large")

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case services.IsInvalidOTP(err), errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrResendThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func otpMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrNoPendingRequest):
		return "Invalid OTP or already verified"
	case errors.Is(err, services.ErrCodeMismatch):
		return "Invalid OTP"
	case errors.Is(err, services.ErrCodeExpired):
		return "OTP expired, request a new one"
	case errors.Is(err, services.ErrTooManyAttempts):
		return "Too many attempts, request a new OTP"
	}
	return ""
}

// respondError writes {success:false, message}. Internal errors are logged
// and replaced by a generic message.
func respondError(c *gin.Context, tag string, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		logrus.WithError(err).Error(tag)
		msg = "Internal server error"
	case status == http.StatusUnauthorized && otpMessage(err) != "":
		msg = otpMessage(err)
	case errors.Is(err, services.ErrResendThrottled):
		msg = "Too many OTP requests, try again later"
	case errors.Is(err, services.ErrInvalidCredentials):
		msg = "Invalid credentials"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"success": false, "message": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
}

// bindJSON decodes a size-limited JSON body into dst. On failure it writes the
// response (413 or 400 with msg) and returns false.
func bindJSON(c *gin.Context, dst any, msg string) bool {
	if err := decodeJSONBody(c, dst); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			respondError(c, "[http][body]", err)
			return false
		}
		badRequest(c, msg)
		return false
	}
	return true
}

func decodeJSONBody(c *gin.Context, dst any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		return err
	}
	return nil
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func adminName(c *gin.Context) string {
	return middleware.AdminName(c)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", services.ErrValidation, fh.Filename, maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open upload: %v", services.ErrIO, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", services.ErrIO, err)
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", services.ErrValidation, fh.Filename, maxUploadBytes)
	}
	return data, nil
}

// stringify flattens a JSON value into the text stored in a biodata column.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
