// internal/repository/postgres/team_repo.go
package postgres

import (
	"context"
	"fmt"

	"tourism-portal/internal/domain/auth"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TeamRepository struct {
	db *pgxpool.Pool
}

func NewTeamRepository(db *pgxpool.Pool) *TeamRepository {
	return &TeamRepository{db: db}
}

// GetTeamAccess returns, for every team the identity belongs to, its team
// role and the permissions that role carries.
func (r *TeamRepository) GetTeamAccess(ctx context.Context, identityID int64) ([]auth.TeamAccess, error) {
	query := `
		SELECT t.id, t.slug, t.name, tm.role,
		       COALESCE(ARRAY_AGG(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
		FROM team_members tm
		JOIN teams t ON t.id = tm.team_id
		LEFT JOIN team_role_permissions trp ON trp.team_role = tm.role
		LEFT JOIN auth_permissions p ON p.id = trp.permission_id AND p.is_active = TRUE
		WHERE tm.identity_id = $1
		GROUP BY t.id, t.slug, t.name, tm.role
		ORDER BY t.name
	`

	rows, err := r.db.Query(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team access: %w", err)
	}
	defer rows.Close()

	teams := []auth.TeamAccess{}
	for rows.Next() {
		var t auth.TeamAccess
		if err := rows.Scan(&t.TeamID, &t.TeamSlug, &t.TeamName, &t.Role, &t.Permissions); err != nil {
			return nil, fmt.Errorf("failed to scan team access: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// ListTeamMembers lists the members of a team with their profile names
func (r *TeamRepository) ListTeamMembers(ctx context.Context, teamID int64) ([]auth.TeamMember, error) {
	query := `
		SELECT tm.team_id, tm.identity_id, COALESCE(i.email, ''),
		       COALESCE(up.full_name, ''), tm.role, tm.joined_at
		FROM team_members tm
		JOIN auth_identities i ON i.id = tm.identity_id AND i.deleted_at IS NULL
		LEFT JOIN user_profiles up ON up.identity_id = tm.identity_id
		WHERE tm.team_id = $1
		ORDER BY tm.joined_at
	`

	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	members := []auth.TeamMember{}
	for rows.Next() {
		var m auth.TeamMember
		if err := rows.Scan(&m.TeamID, &m.IdentityID, &m.Email, &m.FullName, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
