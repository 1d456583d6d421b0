package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tourism-portal/internal/authcontext"
	"tourism-portal/internal/domain/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ authcontext.AuthService = (*Client)(nil)

// fakeAPI mimics the portal auth endpoints and their envelope
type fakeAPI struct {
	mu          sync.Mutex
	tokens      map[string]bool
	issued      int
	logoutCalls int
	meCalls     int
	failLogout  bool
	lastCookie  string
	lastDevice  string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{tokens: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", api.login)
	mux.HandleFunc("/api/v1/auth/me", api.me)
	mux.HandleFunc("/api/v1/auth/logout", api.logout)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": status < 300,
		"message": message,
		"data":    data,
	})
}

func (f *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		auth.Credential
		Device string `json:"device"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDevice = body.Device
	if body.Email != "traveller@example.com" || body.Password != "secret" {
		writeEnvelope(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}
	f.issued++
	token := "token-" + strings.Repeat("x", f.issued)
	f.tokens[token] = true
	http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: token, Path: "/"})
	writeEnvelope(w, http.StatusOK, "login successful", auth.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
		RememberMe:  body.RememberMe,
	})
}

type apiCounts struct {
	meCalls     int
	logoutCalls int
	lastCookie  string
	lastDevice  string
}

func (f *fakeAPI) snapshot() apiCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return apiCounts{meCalls: f.meCalls, logoutCalls: f.logoutCalls, lastCookie: f.lastCookie, lastDevice: f.lastDevice}
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return f.tokens[token]
}

func (f *fakeAPI) me(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	if c, err := r.Cookie("portal_session"); err == nil {
		f.lastCookie = c.Value
	}
	if !f.authorized(r) {
		writeEnvelope(w, http.StatusUnauthorized, "invalid or expired token", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, "current user retrieved", auth.CurrentUser{
		ID:      42,
		Profile: auth.Profile{Email: "traveller@example.com", FullName: "Ada Traveller"},
		Role:    "customer",
		Teams:   []auth.TeamAccess{{TeamID: 3, TeamName: "Coast Tours", Role: "member"}},
	})
}

func (f *fakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	if f.failLogout {
		writeEnvelope(w, http.StatusInternalServerError, "logout failed", nil)
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	delete(f.tokens, token)
	writeEnvelope(w, http.StatusOK, "logout successful", nil)
}

func newTestClient(t *testing.T, srv *httptest.Server, store TokenStore) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL + "/api/v1/", Device: "test"}, store, nil)
	require.NoError(t, err)
	return c
}

var validCred = auth.Credential{Email: "traveller@example.com", Password: "secret"}

func TestLoginThenGetCurrentUser(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	user, err := c.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Zero(t, api.snapshot().meCalls, "no token means no request")

	require.NoError(t, c.Login(ctx, validCred))
	assert.Equal(t, "test", api.snapshot().lastDevice)

	user, err = c.GetCurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(42), user.ID)
	assert.Equal(t, "member", user.TeamRole(3))
	assert.Equal(t, "token-x", api.snapshot().lastCookie, "session cookie is replayed")
}

func TestLogin_InvalidCredentialsMessage(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(t, srv, nil)

	err := c.Login(context.Background(), auth.Credential{Email: "traveller@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.True(t, IsUnauthorized(err))

	tok, err := c.Tokens.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestGetCurrentUser_UnauthorizedClearsToken(t *testing.T) {
	api, srv := newFakeAPI(t)
	store := NewMemoryTokenStore()
	c := newTestClient(t, srv, store)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx, validCred))
	api.mu.Lock()
	api.tokens = map[string]bool{} // server forgot every session
	api.mu.Unlock()

	user, err := c.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestGetCurrentUser_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusInternalServerError, "failed to get current user", nil)
	}))
	t.Cleanup(srv.Close)

	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(&StoredToken{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}))
	c := newTestClient(t, srv, store)

	user, err := c.GetCurrentUser(context.Background())
	assert.Nil(t, user)
	require.Error(t, err)
	assert.Equal(t, "failed to get current user", err.Error())

	tok, _ := store.Load()
	assert.NotNil(t, tok, "only a 401 drops the token")
}

func TestGetCurrentUser_ExpiredTokenSkipsRequest(t *testing.T) {
	api, srv := newFakeAPI(t)
	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(&StoredToken{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Minute)}))
	c := newTestClient(t, srv, store)

	user, err := c.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Zero(t, api.snapshot().meCalls)
}

func TestLogout(t *testing.T) {
	tests := []struct {
		name       string
		failLogout bool
		wantErr    bool
	}{
		{name: "success", failLogout: false, wantErr: false},
		{name: "server failure still clears", failLogout: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, srv := newFakeAPI(t)
			api.failLogout = tt.failLogout
			c := newTestClient(t, srv, nil)
			ctx := context.Background()

			require.NoError(t, c.Login(ctx, validCred))
			err := c.Logout(ctx)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, api.snapshot().logoutCalls)

			tok, err := c.Tokens.Load()
			require.NoError(t, err)
			assert.Nil(t, tok)
		})
	}
}

func TestLogout_WithoutTokenSkipsRequest(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newTestClient(t, srv, nil)

	assert.NoError(t, c.Logout(context.Background()))
	assert.Zero(t, api.snapshot().logoutCalls)
}

func TestRememberMePersistsAcrossClients(t *testing.T) {
	_, srv := newFakeAPI(t)
	path := filepath.Join(t.TempDir(), "token.json")
	ctx := context.Background()

	first := newTestClient(t, srv, NewRememberingStore(NewFileTokenStore(path)))
	cred := validCred
	cred.RememberMe = true
	require.NoError(t, first.Login(ctx, cred))

	second := newTestClient(t, srv, NewRememberingStore(NewFileTokenStore(path)))
	user, err := second.GetCurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)

	// a session-only login is gone with its process
	third := newTestClient(t, srv, NewRememberingStore(NewFileTokenStore(path)))
	require.NoError(t, third.Login(ctx, validCred))
	fourth := newTestClient(t, srv, NewRememberingStore(NewFileTokenStore(path)))
	user, err = fourth.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestSessionManagerOverClient(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := newTestClient(t, srv, nil)
	m := authcontext.NewSessionManager(c, nil)
	ctx := context.Background()

	m.Initialize(ctx)
	assert.False(t, m.State().IsAuthenticated)

	err := m.Login(ctx, "traveller@example.com", "nope", false)
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", m.State().Error)

	require.NoError(t, m.Login(ctx, "traveller@example.com", "secret", false))
	st := m.State()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "Ada Traveller", st.CurrentUser.Profile.FullName)
	assert.Empty(t, st.Error)

	m.Logout(ctx)
	assert.False(t, m.State().IsAuthenticated)
	assert.False(t, m.CheckAuthStatus(ctx))
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	assert.Error(t, err)
}
