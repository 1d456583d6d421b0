// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tourism-portal/internal/domain/auth"
	"tourism-portal/internal/pkg/jwt"
	"tourism-portal/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// DefaultSessionCookie carries the access token for cookie-based clients
const DefaultSessionCookie = "portal_session"

// TokenValidator checks a raw access token against the live session store
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

// UserLoader resolves the full CurrentUser, including team mappings
type UserLoader interface {
	CurrentUser(ctx context.Context, identityID int64) (*auth.CurrentUser, error)
}

type AuthMiddleware struct {
	validator  TokenValidator
	users      UserLoader
	cookieName string
}

func NewAuthMiddleware(validator TokenValidator, users UserLoader, cookieName string) *AuthMiddleware {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	return &AuthMiddleware{
		validator:  validator,
		users:      users,
		cookieName: cookieName,
	}
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			response.Unauthorized(c, "missing authorization token", nil)
			return
		}

		claims, err := m.validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token", err)
			return
		}

		c.Set(ctxIdentityID, claims.IdentityID)
		c.Set(ctxJTI, claims.ID)
		c.Set(ctxRoles, claims.Roles)
		c.Set(ctxPermissions, claims.Permissions)
		c.Set(ctxDevice, claims.Device)
		if claims.ExpiresAt != nil {
			c.Set(ctxTokenExpiry, claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// RequireRole requires at least one of roles. MUST be used after Auth().
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, r := range roles {
			if HasRole(c, r) {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions", errors.New("user does not have required role"), map[string]interface{}{
			"required_roles": roles,
		})
	}
}

// RequirePermission requires at least one of permissions among the token's
// global permissions. MUST be used after Auth().
func (m *AuthMiddleware) RequirePermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range permissions {
			if HasPermission(c, p) {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions", errors.New("user does not have required permission"), map[string]interface{}{
			"required_permissions": permissions,
		})
	}
}

// RequireTeamPermission requires permission inside the team named by the
// path parameter param. Global permissions count for every team.
// MUST be used after Auth().
func (m *AuthMiddleware) RequireTeamPermission(param, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID, err := strconv.ParseInt(c.Param(param), 10, 64)
		if err != nil || teamID <= 0 {
			response.Error(c, http.StatusBadRequest, "invalid team id", err)
			return
		}

		user, err := m.loadUser(c)
		if err != nil {
			response.Error(c, http.StatusInternalServerError, "failed to resolve user", err)
			return
		}

		if !user.HasTeamPermission(teamID, permission) {
			response.Forbidden(c, "insufficient team permissions", errors.New("user does not have required team permission"), map[string]interface{}{
				"team_id":             teamID,
				"required_permission": permission,
				"team_role":           user.TeamRole(teamID),
			})
			return
		}

		c.Set(ctxTeamID, teamID)
		c.Next()
	}
}

// AdminOnly returns middlewares for admin-only routes (Auth + RequireRole)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole("admin", "super_admin"),
	}
}

// loadUser resolves the CurrentUser once per request
func (m *AuthMiddleware) loadUser(c *gin.Context) (*auth.CurrentUser, error) {
	if u, ok := GetCurrentUser(c); ok {
		return u, nil
	}
	identityID, ok := GetIdentityID(c)
	if !ok {
		return nil, errors.New("identity_id not found in context")
	}
	user, err := m.users.CurrentUser(c.Request.Context(), identityID)
	if err != nil {
		return nil, err
	}
	c.Set(ctxCurrentUser, user)
	return user, nil
}

// extractToken reads the Bearer header first, then the session cookie
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if cookie, err := c.Cookie(m.cookieName); err == nil {
		return cookie
	}

	return ""
}
