// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"tourism-portal/internal/domain/auth"
	"tourism-portal/internal/middleware"
	xerrors "tourism-portal/internal/pkg/errors"
	"tourism-portal/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Messages surfaced to the login form verbatim
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgTooManyAttempts    = "Too many login attempts, please try again later"
)

// Service is the part of the auth service the HTTP layer drives
type Service interface {
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error)
	Logout(ctx context.Context, identityID int64, jti string, expiresAt time.Time) error
	CurrentUser(ctx context.Context, identityID int64) (*auth.CurrentUser, error)
	ActiveSessions(ctx context.Context, identityID int64, currentJTI string) ([]auth.SessionInfo, error)
	ListTeamMembers(ctx context.Context, teamID int64) ([]auth.TeamMember, error)
}

// CookieConfig controls the session cookie set on login
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

type AuthHandler struct {
	authService Service
	cookie      CookieConfig
	logger      *zap.Logger
}

func NewAuthHandler(authService Service, cookie CookieConfig, logger *zap.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = middleware.DefaultSessionCookie
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if cookie.SameSite == 0 {
		cookie.SameSite = http.SameSiteLaxMode
	}
	return &AuthHandler{
		authService: authService,
		cookie:      cookie,
		logger:      logger,
	}
}

// ========== Login ==========

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	loginResp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("email", req.Email),
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		h.loginError(c, err)
		return
	}

	h.setSessionCookie(c, loginResp.AccessToken, loginResp.ExpiresAt, loginResp.RememberMe)

	h.logger.Info("user logged in",
		zap.Int64("identity_id", loginResp.User.IdentityID),
		zap.Bool("remember_me", loginResp.RememberMe),
	)

	response.Success(c, http.StatusOK, "login successful", loginResp)
}

func (h *AuthHandler) loginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, xerrors.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, "email and password are required", err)
	case errors.Is(err, xerrors.ErrRateLimited):
		var rl *xerrors.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		}
		response.TooManyRequests(c, MsgTooManyAttempts, nil)
	case errors.Is(err, xerrors.ErrInvalidCredentials):
		response.Unauthorized(c, MsgInvalidCredentials, nil)
	case errors.Is(err, xerrors.ErrAccountLocked),
		errors.Is(err, xerrors.ErrAccountInactive),
		errors.Is(err, xerrors.ErrAccountSuspended):
		response.Forbidden(c, err.Error(), nil)
	default:
		response.Error(c, http.StatusInternalServerError, "login failed", nil)
	}
}

// ========== Logout ==========

// Logout ends the caller's session (requires auth)
func (h *AuthHandler) Logout(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	jti := middleware.MustGetJTI(c)
	expiresAt, _ := middleware.GetTokenExpiry(c)

	// the cookie goes whatever happens server-side
	h.clearSessionCookie(c)

	if err := h.authService.Logout(c.Request.Context(), identityID, jti, expiresAt); err != nil {
		h.logger.Error("logout failed",
			zap.Int64("identity_id", identityID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "logout failed", err)
		return
	}

	response.Success(c, http.StatusOK, "logout successful", nil)
}

// ========== Current User ==========

// GetMe returns the current user with roles and team mappings (requires auth)
func (h *AuthHandler) GetMe(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	user, err := h.authService.CurrentUser(c.Request.Context(), identityID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Unauthorized(c, "account no longer exists", nil)
			return
		}
		h.logger.Error("failed to load current user", zap.Int64("identity_id", identityID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to get current user", nil)
		return
	}

	response.Success(c, http.StatusOK, "current user retrieved", user)
}

// ========== Session Management ==========

// GetActiveSessions returns all active sessions for current user
func (h *AuthHandler) GetActiveSessions(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	jti, _ := middleware.GetJTI(c)

	sessions, err := h.authService.ActiveSessions(c.Request.Context(), identityID, jti)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to get sessions", err)
		return
	}

	response.Success(c, http.StatusOK, "sessions retrieved", sessions)
}

// ListIdentitySessions returns another identity's active sessions (admin dashboard)
func (h *AuthHandler) ListIdentitySessions(c *gin.Context) {
	identityID, err := strconv.ParseInt(c.Param("identity_id"), 10, 64)
	if err != nil || identityID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid identity id", err)
		return
	}

	sessions, err := h.authService.ActiveSessions(c.Request.Context(), identityID, "")
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to get sessions", err)
		return
	}

	response.Success(c, http.StatusOK, "sessions retrieved", sessions)
}

// ========== Teams ==========

// ListTeamMembers lists a team's members (requires team.members.read in that team)
func (h *AuthHandler) ListTeamMembers(c *gin.Context) {
	teamID, ok := middleware.GetTeamID(c)
	if !ok {
		id, err := strconv.ParseInt(c.Param("team_id"), 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid team id", err)
			return
		}
		teamID = id
	}

	members, err := h.authService.ListTeamMembers(c.Request.Context(), teamID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list team members", err)
		return
	}

	response.Success(c, http.StatusOK, "team members retrieved", members)
}

// ========== Cookies ==========

// setSessionCookie persists the cookie until the token expires when the user
// asked to be remembered, otherwise it lives for the browser session only
func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, expiresAt time.Time, remember bool) {
	cookie := &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: h.cookie.SameSite,
	}
	if remember {
		cookie.Expires = expiresAt
		cookie.MaxAge = int(time.Until(expiresAt).Seconds())
	}
	http.SetCookie(c.Writer, cookie)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: h.cookie.SameSite,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
