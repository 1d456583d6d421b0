// internal/domain/auth/entity.go
package auth

import (
	"database/sql"
	"time"
)

// Identity represents the core user identity
type Identity struct {
	ID                  int64          `json:"id" db:"id"`
	Email               sql.NullString `json:"email" db:"email"`
	EmailVerified       bool           `json:"email_verified" db:"email_verified"`
	Phone               sql.NullString `json:"phone" db:"phone"`
	Status              string         `json:"status" db:"status"` // active, inactive, suspended, pending_verification
	LastLogin           sql.NullTime   `json:"last_login" db:"last_login"`
	FailedLoginAttempts int            `json:"-" db:"failed_login_attempts"`
	LockedUntil         sql.NullTime   `json:"-" db:"locked_until"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// Provider represents a credential provider. Only "local" is issued by this service.
type Provider struct {
	ID                int64          `json:"id" db:"id"`
	IdentityID        int64          `json:"identity_id" db:"identity_id"`
	Provider          string         `json:"provider" db:"provider"`
	PasswordHash      sql.NullString `json:"-" db:"password_hash"`
	IsPrimary         bool           `json:"is_primary" db:"is_primary"`
	PasswordChangedAt sql.NullTime   `json:"-" db:"password_changed_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// Session represents a persisted login session
type Session struct {
	ID             int64          `json:"id" db:"id"`
	IdentityID     int64          `json:"identity_id" db:"identity_id"`
	SessionToken   string         `json:"-" db:"session_token"` // access token jti
	Provider       string         `json:"provider" db:"provider"`
	IPAddress      sql.NullString `json:"ip_address" db:"ip_address"`
	UserAgent      sql.NullString `json:"user_agent" db:"user_agent"`
	DeviceID       sql.NullString `json:"device_id" db:"device_id"`
	RememberMe     bool           `json:"remember_me" db:"remember_me"`
	Status         string         `json:"status" db:"status"` // active, expired, revoked
	LoginAt        time.Time      `json:"login_at" db:"login_at"`
	LastActivityAt time.Time      `json:"last_activity_at" db:"last_activity_at"`
	ExpiresAt      time.Time      `json:"expires_at" db:"expires_at"`
	LogoutAt       sql.NullTime   `json:"logout_at" db:"logout_at"`
}

// UserProfile represents user profile data
type UserProfile struct {
	ID         int64          `json:"id" db:"id"`
	IdentityID int64          `json:"identity_id" db:"identity_id"`
	FullName   sql.NullString `json:"full_name" db:"full_name"`
	AvatarURL  sql.NullString `json:"avatar_url" db:"avatar_url"`
	Bio        sql.NullString `json:"bio" db:"bio"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// NewAccount groups the rows created together for a password account
type NewAccount struct {
	Identity *Identity
	Provider *Provider
	Profile  *UserProfile
	Role     string
}

// TeamMember is one row of team_members joined with the member's profile
type TeamMember struct {
	TeamID     int64     `json:"team_id" db:"team_id"`
	IdentityID int64     `json:"identity_id" db:"identity_id"`
	Email      string    `json:"email" db:"email"`
	FullName   string    `json:"full_name" db:"full_name"`
	Role       string    `json:"role" db:"role"`
	JoinedAt   time.Time `json:"joined_at" db:"joined_at"`
}

// Account statuses
const (
	StatusActive              = "active"
	StatusInactive            = "inactive"
	StatusSuspended           = "suspended"
	StatusPendingVerification = "pending_verification"
)

const ProviderLocal = "local"
