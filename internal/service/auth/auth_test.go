package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"tourism-portal/internal/domain/auth"
	xerrors "tourism-portal/internal/pkg/errors"
	"tourism-portal/internal/pkg/jwt"
	"tourism-portal/internal/pkg/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	identities  map[int64]*auth.Identity
	providers   map[int64]*auth.Provider
	profiles    map[int64]*auth.UserProfile
	roles       map[int64][]string
	permissions map[int64][]string
	teams       map[int64][]auth.TeamAccess
	members     map[int64][]auth.TeamMember
	sessions    []*auth.Session
	failed      map[int64]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:      100,
		identities:  map[int64]*auth.Identity{},
		providers:   map[int64]*auth.Provider{},
		profiles:    map[int64]*auth.UserProfile{},
		roles:       map[int64][]string{},
		permissions: map[int64][]string{},
		teams:       map[int64][]auth.TeamAccess{},
		members:     map[int64][]auth.TeamMember{},
		failed:      map[int64]int{},
	}
}

func (f *fakeStore) addUser(t *testing.T, id int64, email, password, status string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	f.identities[id] = &auth.Identity{ID: id, Email: sql.NullString{String: email, Valid: true}, Status: status}
	f.providers[id] = &auth.Provider{IdentityID: id, Provider: auth.ProviderLocal, PasswordHash: sql.NullString{String: string(hash), Valid: true}}
}

func (f *fakeStore) FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.identities {
		if i.Email.String == email {
			return i, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeStore) FindIdentityByID(ctx context.Context, id int64) (*auth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.identities[id]; ok {
		return i, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeStore) CreateAccount(ctx context.Context, acct *auth.NewAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	acct.Identity.ID = id
	f.identities[id] = acct.Identity
	acct.Provider.IdentityID = id
	f.providers[id] = acct.Provider
	if acct.Profile != nil {
		acct.Profile.IdentityID = id
		f.profiles[id] = acct.Profile
	}
	if acct.Role != "" {
		f.roles[id] = append(f.roles[id], acct.Role)
	}
	return nil
}

func (f *fakeStore) UpdateIdentityLastLogin(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = 0
	return nil
}

func (f *fakeStore) IncrementFailedLoginAttempts(ctx context.Context, id int64, maxAttempts int, lockDuration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id]++
	if f.failed[id] >= maxAttempts {
		f.identities[id].LockedUntil = sql.NullTime{Time: time.Now().Add(lockDuration), Valid: true}
	}
	return nil
}

func (f *fakeStore) FindProviderByIdentityAndType(ctx context.Context, identityID int64, providerType string) (*auth.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.providers[identityID]; ok && p.Provider == providerType {
		return p, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeStore) CreateSession(ctx context.Context, s *auth.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = int64(len(f.sessions) + 1)
	s.Status = "active"
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeStore) GetUserProfile(ctx context.Context, identityID int64) (*auth.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[identityID]; ok {
		return p, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeStore) GetUserRoles(ctx context.Context, identityID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[identityID], nil
}

func (f *fakeStore) GetUserPermissions(ctx context.Context, identityID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permissions[identityID], nil
}

func (f *fakeStore) AssignRoleByName(ctx context.Context, identityID int64, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.roles[identityID] {
		if r == roleName {
			return nil
		}
	}
	f.roles[identityID] = append(f.roles[identityID], roleName)
	return nil
}

func (f *fakeStore) GetTeamAccess(ctx context.Context, identityID int64) ([]auth.TeamAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.teams[identityID], nil
}

func (f *fakeStore) ListTeamMembers(ctx context.Context, teamID int64) ([]auth.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[teamID], nil
}

type fixture struct {
	svc   *AuthService
	store *fakeStore
	mr    *miniredis.Miniredis
	jwt   *jwt.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jm := jwt.NewManager(priv, &priv.PublicKey, jwt.Config{
		Issuer:      "tourism-portal",
		Audience:    "portal-users",
		TTL:         time.Hour,
		RememberTTL: 30 * 24 * time.Hour,
	})

	store := newFakeStore()
	svc := NewAuthService(
		store, store, jm,
		session.NewManager(rdb, nil, nil),
		session.NewRateLimiter(rdb, 3, time.Minute),
		Options{MaxFailedAttempts: 2, LockDuration: time.Minute},
		nil,
	)
	return &fixture{svc: svc, store: store, mr: mr, jwt: jm}
}

func loginReq(email, password string) *auth.LoginRequest {
	return &auth.LoginRequest{Email: email, Password: password, IPAddress: "10.0.0.1", UserAgent: "test"}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(t, 1, "traveller@example.com", "secret", auth.StatusActive)
	f.store.profiles[1] = &auth.UserProfile{IdentityID: 1, FullName: sql.NullString{String: "Ada Traveller", Valid: true}}
	f.store.roles[1] = []string{"customer"}
	f.store.permissions[1] = []string{"bookings.read"}

	resp, err := f.svc.Login(context.Background(), loginReq(" Traveller@Example.com ", "secret"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "Ada Traveller", resp.User.FullName)
	assert.False(t, resp.RememberMe)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, 5*time.Second)

	claims, err := f.svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.IdentityID)
	require.Len(t, f.store.sessions, 1)
	assert.Equal(t, claims.ID, f.store.sessions[0].SessionToken)
	assert.True(t, f.mr.Exists("session:1:"+claims.ID))
}

func TestLogin_RememberMeExtendsSession(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(t, 1, "a@b.com", "pw", auth.StatusActive)

	req := loginReq("a@b.com", "pw")
	req.RememberMe = true
	resp, err := f.svc.Login(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.RememberMe)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), resp.ExpiresAt, 5*time.Second)
	assert.True(t, f.store.sessions[0].RememberMe)
}

func TestLogin_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		email   string
		pass    string
		wantErr error
	}{
		{name: "unknown email", status: auth.StatusActive, email: "nobody@b.com", pass: "pw", wantErr: xerrors.ErrInvalidCredentials},
		{name: "wrong password", status: auth.StatusActive, email: "a@b.com", pass: "nope", wantErr: xerrors.ErrInvalidCredentials},
		{name: "inactive", status: auth.StatusInactive, email: "a@b.com", pass: "pw", wantErr: xerrors.ErrAccountInactive},
		{name: "suspended", status: auth.StatusSuspended, email: "a@b.com", pass: "pw", wantErr: xerrors.ErrAccountSuspended},
		{name: "empty password", status: auth.StatusActive, email: "a@b.com", pass: "", wantErr: xerrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.addUser(t, 1, "a@b.com", "pw", tt.status)

			_, err := f.svc.Login(context.Background(), loginReq(tt.email, tt.pass))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.store.sessions)
		})
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(t, 1, "a@b.com", "pw", auth.StatusActive)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, loginReq("a@b.com", "wrong"))
		require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
	}

	_, err := f.svc.Login(ctx, loginReq("a@b.com", "pw"))
	assert.ErrorIs(t, err, xerrors.ErrAccountLocked)
}

func TestLogin_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(t, 1, "a@b.com", "pw", auth.StatusActive)
	f.svc.opts.MaxFailedAttempts = 100
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, loginReq("a@b.com", "wrong"))
		require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
	}
	_, err := f.svc.Login(ctx, loginReq("a@b.com", "pw"))
	assert.ErrorIs(t, err, xerrors.ErrRateLimited)
	var rl *xerrors.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, time.Minute, rl.RetryAfter)

	f.mr.FastForward(2 * time.Minute)
	_, err = f.svc.Login(ctx, loginReq("a@b.com", "pw"))
	assert.NoError(t, err)
}

func TestLogout_RevokesToken(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(t, 1, "a@b.com", "pw", auth.StatusActive)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, loginReq("a@b.com", "pw"))
	require.NoError(t, err)
	claims, err := f.svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, claims.IdentityID, claims.ID, claims.ExpiresAt.Time))
	assert.False(t, f.mr.Exists("session:1:"+claims.ID))

	_, err = f.svc.ValidateToken(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, xerrors.ErrTokenRevoked)
}

func TestValidateToken_Garbage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ValidateToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestValidateToken_SessionGone(t *testing.T) {
	f := newFixture(t)
	tok, err := f.jwt.Generator.GenerateAccessToken(5, nil, nil, "", false)
	require.NoError(t, err)

	_, err = f.svc.ValidateToken(context.Background(), tok.Signed)
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
}

func TestCurrentUser(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(t, 7, "guide@example.com", "pw", auth.StatusActive)
	f.store.identities[7].Phone = sql.NullString{String: "+254700000000", Valid: true}
	f.store.profiles[7] = &auth.UserProfile{
		IdentityID: 7,
		FullName:   sql.NullString{String: "Grace Guide", Valid: true},
		AvatarURL:  sql.NullString{String: "https://cdn.example.com/g.png", Valid: true},
	}
	f.store.roles[7] = []string{"customer", "staff"}
	f.store.permissions[7] = []string{"bookings.read", "tours.manage"}
	f.store.teams[7] = []auth.TeamAccess{{TeamID: 3, TeamName: "Safari Desk", Role: "manager", Permissions: []string{"team.members.read"}}}

	user, err := f.svc.CurrentUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "staff", user.Role)
	assert.Equal(t, "Grace Guide", user.Profile.FullName)
	assert.Equal(t, "+254700000000", user.Profile.Phone)
	assert.Equal(t, "guide@example.com", user.Profile.Email)
	assert.Equal(t, "manager", user.TeamRole(3))
	assert.True(t, user.HasTeamPermission(3, "team.members.read"))
}

func TestCurrentUser_Defaults(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(t, 8, "new@example.com", "pw", auth.StatusActive)

	user, err := f.svc.CurrentUser(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, DefaultRole, user.Role)
	assert.Equal(t, []string{DefaultRole}, user.Roles)
	assert.Empty(t, user.Profile.FullName)

	_, err = f.svc.CurrentUser(context.Background(), 999)
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
}

func TestActiveSessions_MarksCurrent(t *testing.T) {
	f := newFixture(t)
	f.store.addUser(t, 1, "a@b.com", "pw", auth.StatusActive)
	ctx := context.Background()

	first, err := f.svc.Login(ctx, loginReq("a@b.com", "pw"))
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, loginReq("a@b.com", "pw"))
	require.NoError(t, err)

	claims, err := f.svc.ValidateToken(ctx, first.AccessToken)
	require.NoError(t, err)

	sessions, err := f.svc.ActiveSessions(ctx, 1, claims.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	current := 0
	for _, s := range sessions {
		if s.Current {
			current++
			assert.Equal(t, claims.ID, s.JTI)
		}
	}
	assert.Equal(t, 1, current)
}

func TestEnsureSuperAdminExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureSuperAdminExists(ctx, "Ops@Example.com", "s3cret", "Portal Ops"))
	identity, err := f.store.FindIdentityByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{SuperAdminRole}, f.store.roles[identity.ID])

	// second run keeps the single account
	require.NoError(t, f.svc.EnsureSuperAdminExists(ctx, "ops@example.com", "other", "Portal Ops"))
	assert.Len(t, f.store.identities, 1)
	assert.Equal(t, []string{SuperAdminRole}, f.store.roles[identity.ID])

	resp, err := f.svc.Login(ctx, loginReq("ops@example.com", "s3cret"))
	require.NoError(t, err)
	assert.Contains(t, resp.User.Roles, SuperAdminRole)

	assert.Error(t, f.svc.EnsureSuperAdminExists(ctx, "", "x", "y"))
}
