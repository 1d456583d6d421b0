// internal/middleware/helpers.go
package middleware

import (
	"slices"
	"time"

	"tourism-portal/internal/domain/auth"

	"github.com/gin-gonic/gin"
)

const (
	ctxIdentityID  = "identity_id"
	ctxJTI         = "jti"
	ctxRoles       = "roles"
	ctxPermissions = "permissions"
	ctxDevice      = "device"
	ctxTokenExpiry = "token_expires_at"
	ctxCurrentUser = "current_user"
	ctxTeamID      = "team_id"
	ctxRequestID   = "request_id"
)

// GetIdentityID gets the authenticated identity ID
func GetIdentityID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ctxIdentityID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// MustGetIdentityID gets identity ID from context or panics
func MustGetIdentityID(c *gin.Context) int64 {
	identityID, exists := GetIdentityID(c)
	if !exists {
		panic("identity_id not found in context")
	}
	return identityID
}

// GetJTI gets the access token id
func GetJTI(c *gin.Context) (string, bool) {
	return getString(c, ctxJTI)
}

// MustGetJTI gets JTI from context or panics
func MustGetJTI(c *gin.Context) string {
	jti, exists := GetJTI(c)
	if !exists {
		panic("jti not found in context")
	}
	return jti
}

// GetRequestID returns the ID LoggingMiddleware assigned to the request
func GetRequestID(c *gin.Context) string {
	id, _ := getString(c, ctxRequestID)
	return id
}

// GetTokenExpiry returns when the presented access token expires
func GetTokenExpiry(c *gin.Context) (time.Time, bool) {
	v, exists := c.Get(ctxTokenExpiry)
	if !exists {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// GetTeamID returns the team ID checked by RequireTeamPermission
func GetTeamID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ctxTeamID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// GetCurrentUser returns the CurrentUser cached by a team permission check
func GetCurrentUser(c *gin.Context) (*auth.CurrentUser, bool) {
	v, exists := c.Get(ctxCurrentUser)
	if !exists {
		return nil, false
	}
	u, ok := v.(*auth.CurrentUser)
	return u, ok && u != nil
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	return getStrings(c, ctxRoles)
}

// GetPermissions gets user permissions from context
func GetPermissions(c *gin.Context) []string {
	return getStrings(c, ctxPermissions)
}

// HasRole checks the token's roles
func HasRole(c *gin.Context, role string) bool {
	return slices.Contains(GetRoles(c), role)
}

// HasPermission checks the token's global permissions
func HasPermission(c *gin.Context, permission string) bool {
	return slices.Contains(GetPermissions(c), permission)
}

func getString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func getStrings(c *gin.Context, key string) []string {
	v, exists := c.Get(key)
	if !exists {
		return []string{}
	}
	list, ok := v.([]string)
	if !ok {
		return []string{}
	}
	return list
}
