// internal/service/auth/auth.go
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"tourism-portal/internal/domain/auth"
	xerrors "tourism-portal/internal/pkg/errors"
	"tourism-portal/internal/pkg/jwt"
	"tourism-portal/internal/pkg/session"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// IdentityStore is the slice of the postgres AuthRepository the service needs
type IdentityStore interface {
	FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error)
	FindIdentityByID(ctx context.Context, id int64) (*auth.Identity, error)
	CreateAccount(ctx context.Context, acct *auth.NewAccount) error
	UpdateIdentityLastLogin(ctx context.Context, id int64) error
	IncrementFailedLoginAttempts(ctx context.Context, id int64, maxAttempts int, lockDuration time.Duration) error

	FindProviderByIdentityAndType(ctx context.Context, identityID int64, providerType string) (*auth.Provider, error)

	CreateSession(ctx context.Context, session *auth.Session) error

	GetUserProfile(ctx context.Context, identityID int64) (*auth.UserProfile, error)

	GetUserRoles(ctx context.Context, identityID int64) ([]string, error)
	GetUserPermissions(ctx context.Context, identityID int64) ([]string, error)
	AssignRoleByName(ctx context.Context, identityID int64, roleName string) error
}

// TeamStore resolves per-team roles
type TeamStore interface {
	GetTeamAccess(ctx context.Context, identityID int64) ([]auth.TeamAccess, error)
	ListTeamMembers(ctx context.Context, teamID int64) ([]auth.TeamMember, error)
}

// SessionStore is implemented by session.Manager
type SessionStore interface {
	CreateSession(ctx context.Context, s *session.SessionData) error
	GetSession(ctx context.Context, identityID int64, jti string) (*session.SessionData, error)
	Touch(ctx context.Context, identityID int64, jti string) error
	InvalidateSession(ctx context.Context, identityID int64, jti string) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	GetUserActiveSessions(ctx context.Context, identityID int64) ([]*session.SessionData, error)
}

// LoginLimiter is implemented by session.RateLimiter
type LoginLimiter interface {
	CheckLoginAttempt(ctx context.Context, ip, email string) (bool, int64, error)
	ResetLoginAttempts(ctx context.Context, ip, email string) error
	Window() time.Duration
}

// Options tunes account lockout
type Options struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
}

// DefaultRole is assumed for identities with no active role assignment
const DefaultRole = "customer"

// roleRank orders global roles; the highest one becomes CurrentUser.Role.
var roleRank = map[string]int{
	"customer":    1,
	"staff":       2,
	"admin":       3,
	"super_admin": 4,
}

type AuthService struct {
	authRepo       IdentityStore
	teamRepo       TeamStore
	jwtManager     *jwt.Manager
	sessionManager SessionStore
	rateLimiter    LoginLimiter
	opts           Options
	logger         *zap.Logger
}

func NewAuthService(
	authRepo IdentityStore,
	teamRepo TeamStore,
	jwtManager *jwt.Manager,
	sessionManager SessionStore,
	rateLimiter LoginLimiter,
	opts Options,
	logger *zap.Logger,
) *AuthService {
	if opts.MaxFailedAttempts <= 0 {
		opts.MaxFailedAttempts = 5
	}
	if opts.LockDuration <= 0 {
		opts.LockDuration = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		authRepo:       authRepo,
		teamRepo:       teamRepo,
		jwtManager:     jwtManager,
		sessionManager: sessionManager,
		rateLimiter:    rateLimiter,
		opts:           opts,
		logger:         logger,
	}
}

// ========== Login ==========

// Login authenticates a user with email/password and opens a session
func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "email and password are required")
	}

	allowed, _, err := s.rateLimiter.CheckLoginAttempt(ctx, req.IPAddress, email)
	if err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return nil, &xerrors.RateLimitError{RetryAfter: s.rateLimiter.Window()}
	}

	identity, err := s.authRepo.FindIdentityByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Error("identity lookup failed", zap.Error(err))
		}
		return nil, xerrors.ErrInvalidCredentials
	}

	switch identity.Status {
	case auth.StatusInactive:
		return nil, xerrors.ErrAccountInactive
	case auth.StatusSuspended:
		return nil, xerrors.ErrAccountSuspended
	}

	if identity.LockedUntil.Valid && identity.LockedUntil.Time.After(time.Now()) {
		return nil, fmt.Errorf("%w until %s", xerrors.ErrAccountLocked, identity.LockedUntil.Time.Format(time.RFC3339))
	}

	provider, err := s.authRepo.FindProviderByIdentityAndType(ctx, identity.ID, auth.ProviderLocal)
	if err != nil || !provider.PasswordHash.Valid {
		return nil, xerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(provider.PasswordHash.String), []byte(req.Password)); err != nil {
		if err := s.authRepo.IncrementFailedLoginAttempts(ctx, identity.ID, s.opts.MaxFailedAttempts, s.opts.LockDuration); err != nil {
			s.logger.Error("failed to record failed login", zap.Int64("identity_id", identity.ID), zap.Error(err))
		}
		return nil, xerrors.ErrInvalidCredentials
	}

	if err := s.authRepo.UpdateIdentityLastLogin(ctx, identity.ID); err != nil {
		s.logger.Error("failed to update last login", zap.Error(err))
	}
	if err := s.rateLimiter.ResetLoginAttempts(ctx, req.IPAddress, email); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err))
	}

	return s.loginWithIdentity(ctx, identity, provider, req)
}

// loginWithIdentity issues the access token and records the session
func (s *AuthService) loginWithIdentity(ctx context.Context, identity *auth.Identity, provider *auth.Provider, req *auth.LoginRequest) (*auth.LoginResponse, error) {
	roles, permissions, err := s.getUserRolesAndPermissions(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.jwtManager.Generator.GenerateAccessToken(identity.ID, roles, permissions, req.Device, req.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	dbSession := &auth.Session{
		IdentityID:   identity.ID,
		SessionToken: token.JTI,
		Provider:     provider.Provider,
		IPAddress:    sql.NullString{String: req.IPAddress, Valid: req.IPAddress != ""},
		UserAgent:    sql.NullString{String: req.UserAgent, Valid: req.UserAgent != ""},
		DeviceID:     sql.NullString{String: req.Device, Valid: req.Device != ""},
		RememberMe:   req.RememberMe,
		ExpiresAt:    token.ExpiresAt,
	}
	if err := s.authRepo.CreateSession(ctx, dbSession); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	now := time.Now()
	sessionData := &session.SessionData{
		JTI:            token.JTI,
		IdentityID:     identity.ID,
		SessionID:      dbSession.ID,
		Email:          identity.Email.String,
		Roles:          roles,
		Permissions:    permissions,
		Device:         req.Device,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		Provider:       provider.Provider,
		RememberMe:     req.RememberMe,
		LoginAt:        now,
		LastActivityAt: now,
		ExpiresAt:      token.ExpiresAt,
		IsActive:       true,
	}
	if err := s.sessionManager.CreateSession(ctx, sessionData); err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	fullName := ""
	if profile, err := s.authRepo.GetUserProfile(ctx, identity.ID); err == nil && profile.FullName.Valid {
		fullName = profile.FullName.String
	}

	return &auth.LoginResponse{
		AccessToken: token.Signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(token.ExpiresAt).Seconds()),
		ExpiresAt:   token.ExpiresAt,
		RememberMe:  req.RememberMe,
		User: auth.UserInfo{
			IdentityID:  identity.ID,
			Email:       identity.Email.String,
			FullName:    fullName,
			Roles:       roles,
			Permissions: permissions,
		},
	}, nil
}

// ========== Logout ==========

// Logout invalidates the session and blacklists the token until it would
// have expired anyway
func (s *AuthService) Logout(ctx context.Context, identityID int64, jti string, expiresAt time.Time) error {
	if err := s.sessionManager.InvalidateSession(ctx, identityID, jti); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	if err := s.sessionManager.BlacklistToken(ctx, jti, time.Until(expiresAt)); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	return nil
}

// ========== Token Validation ==========

// ValidateToken validates a JWT and the live session behind it
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.jwtManager.Verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrUnauthorized, err.Error())
	}

	blacklisted, err := s.sessionManager.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if blacklisted {
		return nil, xerrors.ErrTokenRevoked
	}

	if _, err := s.sessionManager.GetSession(ctx, claims.IdentityID, claims.ID); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrSessionExpired, err.Error())
	}

	if err := s.sessionManager.Touch(ctx, claims.IdentityID, claims.ID); err != nil {
		s.logger.Warn("failed to touch session", zap.String("jti", claims.ID), zap.Error(err))
	}

	return claims, nil
}

// ========== Current User ==========

// CurrentUser assembles the identity, profile, global role set and team
// mappings of identityID
func (s *AuthService) CurrentUser(ctx context.Context, identityID int64) (*auth.CurrentUser, error) {
	identity, err := s.authRepo.FindIdentityByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	roles, permissions, err := s.getUserRolesAndPermissions(ctx, identityID)
	if err != nil {
		return nil, err
	}

	teams, err := s.teamRepo.GetTeamAccess(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}

	user := &auth.CurrentUser{
		ID: identity.ID,
		Profile: auth.Profile{
			Email: identity.Email.String,
			Phone: identity.Phone.String,
		},
		Role:        primaryRole(roles),
		Roles:       roles,
		Permissions: permissions,
		Teams:       teams,
	}

	profile, err := s.authRepo.GetUserProfile(ctx, identityID)
	switch {
	case err == nil:
		user.Profile.FullName = profile.FullName.String
		user.Profile.AvatarURL = profile.AvatarURL.String
		user.Profile.Bio = profile.Bio.String
	case errors.Is(err, xerrors.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	return user, nil
}

// ========== Session Management ==========

// ActiveSessions lists the live sessions of identityID, newest first, marking
// the one the request came in on
func (s *AuthService) ActiveSessions(ctx context.Context, identityID int64, currentJTI string) ([]auth.SessionInfo, error) {
	sessions, err := s.sessionManager.GetUserActiveSessions(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}

	out := make([]auth.SessionInfo, 0, len(sessions))
	for _, sd := range sessions {
		out = append(out, auth.SessionInfo{
			JTI:            sd.JTI,
			Device:         sd.Device,
			IPAddress:      sd.IPAddress,
			UserAgent:      sd.UserAgent,
			RememberMe:     sd.RememberMe,
			LoginAt:        sd.LoginAt,
			LastActivityAt: sd.LastActivityAt,
			ExpiresAt:      sd.ExpiresAt,
			Current:        sd.JTI == currentJTI,
		})
	}
	slices.SortFunc(out, func(a, b auth.SessionInfo) int {
		return b.LoginAt.Compare(a.LoginAt)
	})
	return out, nil
}

// ListTeamMembers returns the members of a team
func (s *AuthService) ListTeamMembers(ctx context.Context, teamID int64) ([]auth.TeamMember, error) {
	members, err := s.teamRepo.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	return members, nil
}

// ========== Helper Methods ==========

func (s *AuthService) getUserRolesAndPermissions(ctx context.Context, identityID int64) ([]string, []string, error) {
	roles, err := s.authRepo.GetUserRoles(ctx, identityID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get roles: %w", err)
	}

	permissions, err := s.authRepo.GetUserPermissions(ctx, identityID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get permissions: %w", err)
	}

	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}
	if permissions == nil {
		permissions = []string{}
	}

	return roles, permissions, nil
}

func primaryRole(roles []string) string {
	best := ""
	for _, r := range roles {
		if best == "" || roleRank[r] > roleRank[best] {
			best = r
		}
	}
	if best == "" {
		return DefaultRole
	}
	return best
}
