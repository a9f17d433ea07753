package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"biodata/internal/authz"
)

const (
	CtxAdminID   = "admin_id"
	CtxAdminName = "admin_name"
	CtxRoleID    = "role_id"
)

// AdminAuth requires a valid Bearer session token and puts the admin into the context.
func AdminAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		// preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Missing or invalid Authorization header"})
			return
		}

		claims, err := authz.ParseToken(secret, strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid or expired token"})
			return
		}

		c.Set(CtxAdminID, claims.AdminID)
		c.Set(CtxAdminName, claims.Username)
		c.Set(CtxRoleID, claims.RoleID)
		c.Next()
	}
}

// AdminName returns the authenticated admin's username, or "" outside AdminAuth.
func AdminName(c *gin.Context) string {
	return c.GetString(CtxAdminName)
}
