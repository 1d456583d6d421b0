// internal/domain/auth/current_user.go
package auth

import "slices"

// Profile is the displayable part of a CurrentUser
type Profile struct {
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// TeamAccess is the role and permissions a user holds inside one team
type TeamAccess struct {
	TeamID      int64    `json:"team_id"`
	TeamSlug    string   `json:"team_slug"`
	TeamName    string   `json:"team_name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// CurrentUser is the identity-and-permissions record returned by GET /auth/me.
type CurrentUser struct {
	ID          int64        `json:"id"`
	Profile     Profile      `json:"profile"`
	Role        string       `json:"role"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
	Teams       []TeamAccess `json:"teams"`
}

// HasRole reports whether role is the user's global role or one of its roles
func (u *CurrentUser) HasRole(role string) bool {
	if u == nil {
		return false
	}
	if u.Role == role {
		return true
	}
	return contains(u.Roles, role)
}

// HasPermission checks the global permission list
func (u *CurrentUser) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	return contains(u.Permissions, permission)
}

// Team returns the user's access record for teamID
func (u *CurrentUser) Team(teamID int64) (TeamAccess, bool) {
	if u == nil {
		return TeamAccess{}, false
	}
	for _, t := range u.Teams {
		if t.TeamID == teamID {
			return t, true
		}
	}
	return TeamAccess{}, false
}

// TeamRole returns the user's role in teamID, or "" when not a member
func (u *CurrentUser) TeamRole(teamID int64) string {
	t, ok := u.Team(teamID)
	if !ok {
		return ""
	}
	return t.Role
}

// HasTeamPermission checks a team-scoped permission. Global permissions apply
// to every team.
func (u *CurrentUser) HasTeamPermission(teamID int64, permission string) bool {
	if u.HasPermission(permission) {
		return true
	}
	t, ok := u.Team(teamID)
	if !ok {
		return false
	}
	return contains(t.Permissions, permission)
}

// Clone returns a deep copy so snapshots handed to observers cannot alias
// the manager's state.
func (u *CurrentUser) Clone() *CurrentUser {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.Permissions = slices.Clone(u.Permissions)
	if u.Teams != nil {
		c.Teams = make([]TeamAccess, len(u.Teams))
		for i, t := range u.Teams {
			t.Permissions = slices.Clone(t.Permissions)
			c.Teams[i] = t
		}
	}
	return &c
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
