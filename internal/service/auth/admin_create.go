// internal/service/auth/admin_create.go
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tourism-portal/internal/domain/auth"
	xerrors "tourism-portal/internal/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SuperAdminRole is the role granted to the seeded operator account
const SuperAdminRole = "super_admin"

// EnsureSuperAdminExists creates the operator account on startup when it is
// missing. An existing identity with the same email only gets the role.
func (s *AuthService) EnsureSuperAdminExists(ctx context.Context, email, password, fullName string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" || fullName == "" {
		return fmt.Errorf("super admin email, password, and name must be provided via environment variables")
	}

	existing, err := s.authRepo.FindIdentityByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.authRepo.AssignRoleByName(ctx, existing.ID, SuperAdminRole); err != nil {
			return fmt.Errorf("failed to assign super admin role: %w", err)
		}
		s.logger.Info("super admin already exists, skipping creation", zap.Int64("identity_id", existing.ID))
		return nil
	case !errors.Is(err, xerrors.ErrNotFound):
		return fmt.Errorf("failed to check email: %w", err)
	}

	s.logger.Info("creating super admin account", zap.String("email", email))

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	acct := &auth.NewAccount{
		Identity: &auth.Identity{
			Email:         sql.NullString{String: email, Valid: true},
			Status:        auth.StatusActive,
			EmailVerified: true,
		},
		Provider: &auth.Provider{
			Provider:     auth.ProviderLocal,
			PasswordHash: sql.NullString{String: string(hashedPassword), Valid: true},
			IsPrimary:    true,
		},
		Profile: &auth.UserProfile{
			FullName: sql.NullString{String: fullName, Valid: true},
		},
		Role: SuperAdminRole,
	}
	if err := s.authRepo.CreateAccount(ctx, acct); err != nil {
		return fmt.Errorf("failed to create super admin: %w", err)
	}

	s.logger.Info("super admin created successfully",
		zap.String("email", email),
		zap.Int64("identity_id", acct.Identity.ID),
	)
	return nil
}
