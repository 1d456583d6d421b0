// internal/repository/postgres/auth_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tourism-portal/internal/domain/auth"
	xerrors "tourism-portal/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuthRepository struct {
	db *pgxpool.Pool
}

func NewAuthRepository(db *pgxpool.Pool) *AuthRepository {
	return &AuthRepository{db: db}
}

// ========== Identity Methods ==========

const identityColumns = `
	id, email, email_verified, phone, status, last_login,
	failed_login_attempts, locked_until, created_at, updated_at`

func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var identity auth.Identity
	err := row.Scan(
		&identity.ID, &identity.Email, &identity.EmailVerified, &identity.Phone,
		&identity.Status, &identity.LastLogin, &identity.FailedLoginAttempts,
		&identity.LockedUntil, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return &identity, nil
}

// FindIdentityByEmail retrieves an identity by email, case-insensitively
func (r *AuthRepository) FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	query := `SELECT` + identityColumns + `
		FROM auth_identities
		WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`
	return scanIdentity(r.db.QueryRow(ctx, query, email))
}

// FindIdentityByID retrieves an identity by ID
func (r *AuthRepository) FindIdentityByID(ctx context.Context, id int64) (*auth.Identity, error) {
	query := `SELECT` + identityColumns + `
		FROM auth_identities
		WHERE id = $1 AND deleted_at IS NULL`
	return scanIdentity(r.db.QueryRow(ctx, query, id))
}

// CreateAccount inserts the identity, its password provider, its profile and
// its global role in one transaction. IDs are written back into acct.
func (r *AuthRepository) CreateAccount(ctx context.Context, acct *auth.NewAccount) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := createIdentity(ctx, tx, acct.Identity); err != nil {
			return fmt.Errorf("failed to create identity: %w", err)
		}

		acct.Provider.IdentityID = acct.Identity.ID
		if err := createProvider(ctx, tx, acct.Provider); err != nil {
			return fmt.Errorf("failed to create provider: %w", err)
		}

		if acct.Profile != nil {
			acct.Profile.IdentityID = acct.Identity.ID
			if err := createUserProfile(ctx, tx, acct.Profile); err != nil {
				return fmt.Errorf("failed to create profile: %w", err)
			}
		}

		if acct.Role != "" {
			return assignRole(ctx, tx, acct.Identity.ID, acct.Role)
		}
		return nil
	})
}

func createIdentity(ctx context.Context, q querier, identity *auth.Identity) error {
	query := `
		INSERT INTO auth_identities (email, phone, status, email_verified)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return q.QueryRow(ctx, query, identity.Email, identity.Phone, identity.Status, identity.EmailVerified).
		Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
}

// UpdateIdentityLastLogin records a successful login and clears any lock
func (r *AuthRepository) UpdateIdentityLastLogin(ctx context.Context, id int64) error {
	query := `
		UPDATE auth_identities
		SET last_login = $1, failed_login_attempts = 0, locked_until = NULL
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, time.Now(), id)
	return err
}

// IncrementFailedLoginAttempts counts a failed password and locks the
// account for lockDuration once maxAttempts is reached
func (r *AuthRepository) IncrementFailedLoginAttempts(ctx context.Context, id int64, maxAttempts int, lockDuration time.Duration) error {
	query := `
		UPDATE auth_identities
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $1 THEN $2
		        ELSE NULL
		    END
		WHERE id = $3
	`
	_, err := r.db.Exec(ctx, query, maxAttempts, time.Now().Add(lockDuration), id)
	return err
}

// ========== Provider Methods ==========

// FindProviderByIdentityAndType finds a provider by identity ID and provider type
func (r *AuthRepository) FindProviderByIdentityAndType(ctx context.Context, identityID int64, providerType string) (*auth.Provider, error) {
	query := `
		SELECT id, identity_id, provider, password_hash, is_primary,
		       password_changed_at, created_at, updated_at
		FROM auth_providers
		WHERE identity_id = $1 AND provider = $2
	`

	var provider auth.Provider
	err := r.db.QueryRow(ctx, query, identityID, providerType).Scan(
		&provider.ID, &provider.IdentityID, &provider.Provider, &provider.PasswordHash,
		&provider.IsPrimary, &provider.PasswordChangedAt, &provider.CreatedAt, &provider.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find provider: %w", err)
	}

	return &provider, nil
}

func createProvider(ctx context.Context, q querier, provider *auth.Provider) error {
	query := `
		INSERT INTO auth_providers (identity_id, provider, password_hash, is_primary, password_changed_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at, updated_at
	`
	return q.QueryRow(ctx, query, provider.IdentityID, provider.Provider, provider.PasswordHash, provider.IsPrimary).
		Scan(&provider.ID, &provider.CreatedAt, &provider.UpdatedAt)
}

// ========== Session Methods ==========

// CreateSession creates a new session
func (r *AuthRepository) CreateSession(ctx context.Context, session *auth.Session) error {
	query := `
		INSERT INTO auth_sessions (
			identity_id, session_token, provider, ip_address,
			user_agent, device_id, remember_me, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, status, login_at, last_activity_at
	`

	return r.db.QueryRow(
		ctx, query,
		session.IdentityID, session.SessionToken, session.Provider, session.IPAddress,
		session.UserAgent, session.DeviceID, session.RememberMe, session.ExpiresAt,
	).Scan(&session.ID, &session.Status, &session.LoginAt, &session.LastActivityAt)
}

// FindSessionByToken finds an active, unexpired session by its token jti
func (r *AuthRepository) FindSessionByToken(ctx context.Context, token string) (*auth.Session, error) {
	query := `
		SELECT id, identity_id, session_token, provider, ip_address, user_agent,
		       device_id, remember_me, status, login_at, last_activity_at, expires_at, logout_at
		FROM auth_sessions
		WHERE session_token = $1 AND status = 'active' AND expires_at > NOW()
	`

	var session auth.Session
	err := r.db.QueryRow(ctx, query, token).Scan(
		&session.ID, &session.IdentityID, &session.SessionToken, &session.Provider,
		&session.IPAddress, &session.UserAgent, &session.DeviceID, &session.RememberMe,
		&session.Status, &session.LoginAt, &session.LastActivityAt, &session.ExpiresAt,
		&session.LogoutAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &session, nil
}

// UpdateSessionActivity updates the last activity timestamp
func (r *AuthRepository) UpdateSessionActivity(ctx context.Context, id int64) error {
	query := `UPDATE auth_sessions SET last_activity_at = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, time.Now(), id)
	return err
}

// InvalidateSession marks a session revoked
func (r *AuthRepository) InvalidateSession(ctx context.Context, id int64) error {
	query := `UPDATE auth_sessions SET status = 'revoked', logout_at = $1 WHERE id = $2 AND status = 'active'`
	_, err := r.db.Exec(ctx, query, time.Now(), id)
	return err
}

// ========== Profile Methods ==========

// GetUserProfile retrieves the profile row of an identity
func (r *AuthRepository) GetUserProfile(ctx context.Context, identityID int64) (*auth.UserProfile, error) {
	query := `
		SELECT id, identity_id, full_name, avatar_url, bio, created_at, updated_at
		FROM user_profiles
		WHERE identity_id = $1
	`

	var profile auth.UserProfile
	err := r.db.QueryRow(ctx, query, identityID).Scan(
		&profile.ID, &profile.IdentityID, &profile.FullName, &profile.AvatarURL,
		&profile.Bio, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

func createUserProfile(ctx context.Context, q querier, profile *auth.UserProfile) error {
	query := `
		INSERT INTO user_profiles (identity_id, full_name, avatar_url, bio)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return q.QueryRow(ctx, query, profile.IdentityID, profile.FullName, profile.AvatarURL, profile.Bio).
		Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
}

// ========== Role Management ==========

// GetUserRoles retrieves all active global roles for a user
func (r *AuthRepository) GetUserRoles(ctx context.Context, identityID int64) ([]string, error) {
	query := `
		SELECT r.name
		FROM auth_identity_roles ir
		JOIN auth_roles r ON ir.role_id = r.id
		WHERE ir.identity_id = $1
		  AND ir.is_active = TRUE
		  AND (ir.expires_at IS NULL OR ir.expires_at > NOW())
		  AND r.is_active = TRUE
		ORDER BY r.id
	`
	return r.queryStrings(ctx, query, identityID)
}

// GetUserPermissions retrieves the global permissions granted through roles
func (r *AuthRepository) GetUserPermissions(ctx context.Context, identityID int64) ([]string, error) {
	query := `
		SELECT DISTINCT p.name
		FROM auth_identity_roles ir
		JOIN auth_role_permissions rp ON ir.role_id = rp.role_id
		JOIN auth_permissions p ON p.id = rp.permission_id
		WHERE ir.identity_id = $1
		  AND ir.is_active = TRUE
		  AND (ir.expires_at IS NULL OR ir.expires_at > NOW())
		  AND p.is_active = TRUE
		ORDER BY p.name
	`
	return r.queryStrings(ctx, query, identityID)
}

// AssignRoleByName grants a global role, reactivating it if it was revoked
func (r *AuthRepository) AssignRoleByName(ctx context.Context, identityID int64, roleName string) error {
	return assignRole(ctx, r.db, identityID, roleName)
}

func assignRole(ctx context.Context, q querier, identityID int64, roleName string) error {
	query := `
		INSERT INTO auth_identity_roles (identity_id, role_id, is_active)
		SELECT $1, id, TRUE FROM auth_roles WHERE name = $2
		ON CONFLICT (identity_id, role_id) DO UPDATE
		SET is_active = TRUE, assigned_at = NOW()
	`
	tag, err := q.Exec(ctx, query, identityID, roleName)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.Wrap(xerrors.ErrNotFound, "role "+roleName)
	}
	return nil
}

func (r *AuthRepository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
