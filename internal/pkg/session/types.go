// internal/pkg/session/types.go
package session

import (
	"context"
	"time"

	"tourism-portal/internal/domain/auth"
)

// SessionData is the cached view of one live access token
type SessionData struct {
	JTI            string    `json:"jti"`
	IdentityID     int64     `json:"identity_id"`
	SessionID      int64     `json:"session_id"` // DB session ID
	Email          string    `json:"email"`
	Roles          []string  `json:"roles"`
	Permissions    []string  `json:"permissions"`
	Device         string    `json:"device,omitempty"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	Provider       string    `json:"provider"`
	RememberMe     bool      `json:"remember_me"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsActive       bool      `json:"is_active"`
}

// Repository is the durable session storage Redis falls back to.
type Repository interface {
	FindSessionByToken(ctx context.Context, token string) (*auth.Session, error)
	UpdateSessionActivity(ctx context.Context, id int64) error
	InvalidateSession(ctx context.Context, id int64) error
}
