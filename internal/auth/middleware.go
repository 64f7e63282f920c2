package auth

import (
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/gin-gonic/gin"
)

type Permission string

const (
	// PermRead allows reading attributes and exports.
	PermRead Permission = "read"
	// PermOperate allows writes and commands on simulated devices.
	PermOperate Permission = "operate"
	// PermControl allows writes and commands on control devices.
	PermControl Permission = "control"
)

var rolePermissions = map[string][]Permission{
	RoleViewer:   {PermRead},
	RoleOperator: {PermRead, PermOperate},
	RoleTester:   {PermRead, PermOperate, PermControl},
}

// Context keys set by Middleware.
const (
	PermissionsKey = "permissions"
	SubjectKey     = "subject"
	RoleKey        = "role"
)

// RolePermissions lists what role grants.
func RolePermissions(role string) []Permission {
	return append([]Permission(nil), rolePermissions[role]...)
}

// Middleware validates bearer tokens.
func Middleware(j *JWTHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format", nil)
			return
		}

		claims, err := j.ValidateToken(parts[1])
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
			return
		}

		c.Set(PermissionsKey, RolePermissions(claims.Role))
		c.Set(SubjectKey, claims.Subject)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RequirePermission checks if the caller has the required permission.
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasPermission(c, required) {
			abort(c, http.StatusForbidden, "FORBIDDEN", "insufficient permissions",
				map[string]string{"required": string(required)})
			return
		}
		c.Next()
	}
}

// HasPermission reports whether the request context carries p.
func HasPermission(c *gin.Context, p Permission) bool {
	perms, exists := c.Get(PermissionsKey)
	if !exists {
		return false
	}
	permissions, _ := perms.([]Permission)
	for _, have := range permissions {
		if have == p {
			return true
		}
	}
	return false
}

func abort(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, types.NewErrorResponse(code, message, details))
}
