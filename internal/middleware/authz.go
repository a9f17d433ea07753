package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"biodata/internal/authz"
)

func roleFrom(c *gin.Context) (int, bool) {
	v, ok := c.Get(CtxRoleID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}

// RequireRoles lets the request through only for the listed admin roles.
func RequireRoles(allowed ...int) gin.HandlerFunc {
	allowedSet := make(map[int]bool, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = true
	}
	return func(c *gin.Context) {
		roleID, ok := roleFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "no role in context"})
			return
		}
		if !allowedSet[roleID] {
			logrus.WithFields(logrus.Fields{
				"admin": AdminName(c),
				"role":  authz.RoleName(roleID),
				"path":  c.FullPath(),
			}).Info("[auth][role] denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Insufficient role"})
			return
		}
		c.Next()
	}
}

// ReadOnlyGuard rejects unsafe methods for the auditor role.
func ReadOnlyGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		roleID, _ := roleFrom(c)
		if !authz.IsReadOnly(roleID) {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Read-only role"})
		}
	}
}
