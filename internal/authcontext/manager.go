// Package authcontext holds the application-wide "who is logged in" state.
//
// A SessionManager is created once by the application root, initialized at
// startup, and shared read-only with every component that needs the current
// user. Components observe changes through Subscribe and mutate the session
// only through Login, Logout and CheckAuthStatus.
package authcontext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tourism-portal/internal/domain/auth"
	xerrors "tourism-portal/internal/pkg/errors"

	"go.uber.org/zap"
)

// FallbackLoginError is recorded when a failed login carries no message.
const FallbackLoginError = "login failed"

// ErrNoSession is returned by Login when the remote login succeeded but the
// follow-up current-user lookup found nobody.
var ErrNoSession = errors.New("login succeeded but no session was established")

// AuthService is the remote authentication API the manager delegates to.
// GetCurrentUser returns (nil, nil) when nobody is logged in.
type AuthService interface {
	GetCurrentUser(ctx context.Context) (*auth.CurrentUser, error)
	Login(ctx context.Context, cred auth.Credential) error
	Logout(ctx context.Context) error
}

// State is an immutable snapshot of the session.
type State struct {
	CurrentUser     *auth.CurrentUser
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// Listener receives a fresh snapshot after every state change.
type Listener func(State)

type subscription struct {
	id uint64
	fn Listener
}

// SessionManager owns the current-user state.
//
// State reads and writes are serialized, but operations are not: two Login
// calls started concurrently both run to completion and the last writer wins.
// Callers that need single-flight behaviour should gate on State().IsLoading.
type SessionManager struct {
	svc    AuthService
	logger *zap.Logger

	mu          sync.RWMutex
	currentUser *auth.CurrentUser
	loading     bool
	errMsg      string

	subsMu sync.Mutex
	subs   []subscription
	nextID uint64

	initOnce sync.Once
}

// NewSessionManager returns a manager in its startup state: no user, loading.
func NewSessionManager(svc AuthService, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		svc:     svc,
		logger:  logger.Named("authcontext"),
		loading: true,
	}
}

// State returns the current snapshot.
func (m *SessionManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// CurrentUser is a shorthand for State().CurrentUser.
func (m *SessionManager) CurrentUser() *auth.CurrentUser {
	return m.State().CurrentUser
}

// IsAuthenticated is a shorthand for State().IsAuthenticated.
func (m *SessionManager) IsAuthenticated() bool {
	return m.State().IsAuthenticated
}

// Subscribe registers fn for state changes and returns a func that removes it.
// Listeners are called in registration order, outside the state lock, so they
// may call back into the manager.
func (m *SessionManager) Subscribe(fn Listener) func() {
	m.subsMu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Initialize resolves the startup state. Only the first call does any work.
func (m *SessionManager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		ok := m.CheckAuthStatus(ctx)
		m.update(func() { m.loading = false })
		m.logger.Debug("session initialized", zap.Bool("authenticated", ok))
	})
}

// CheckAuthStatus asks the auth service who is logged in and installs the
// answer. Failures are treated as "not logged in".
func (m *SessionManager) CheckAuthStatus(ctx context.Context) bool {
	user, err := m.svc.GetCurrentUser(ctx)
	if err != nil {
		m.logger.Debug("auth status check failed", zap.Error(err))
		user = nil
	}
	m.update(func() { m.currentUser = user.Clone() })
	return user != nil
}

// Login authenticates with the auth service and loads the resulting user.
// On failure the session is cleared, the message is recorded in State().Error
// and the error is returned to the caller.
func (m *SessionManager) Login(ctx context.Context, email, password string, rememberMe bool) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "email and password are required")
	}

	m.update(func() {
		m.loading = true
		m.errMsg = ""
	})

	user, err := m.login(ctx, auth.Credential{Email: email, Password: password, RememberMe: rememberMe})
	if err != nil {
		msg := errorMessage(err)
		m.update(func() {
			m.currentUser = nil
			m.errMsg = msg
			m.loading = false
		})
		m.logger.Info("login failed", zap.String("email", email), zap.Error(err))
		return err
	}

	m.update(func() {
		m.currentUser = user.Clone()
		m.loading = false
	})
	m.logger.Info("logged in", zap.Int64("user_id", user.ID), zap.Bool("remember_me", rememberMe))
	return nil
}

func (m *SessionManager) login(ctx context.Context, cred auth.Credential) (*auth.CurrentUser, error) {
	if err := m.svc.Login(ctx, cred); err != nil {
		return nil, err
	}
	// The login response is not trusted to carry the full permission set.
	user, err := m.svc.GetCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current user: %w", err)
	}
	if user == nil {
		return nil, ErrNoSession
	}
	return user, nil
}

// Logout ends the session remotely and always clears it locally.
func (m *SessionManager) Logout(ctx context.Context) {
	m.update(func() { m.loading = true })

	if err := m.svc.Logout(ctx); err != nil {
		m.logger.Warn("remote logout failed, clearing local session anyway", zap.Error(err))
	}

	m.update(func() {
		m.currentUser = nil
		m.loading = false
	})
}

// update applies fn under the write lock and then notifies subscribers.
func (m *SessionManager) update(fn func()) {
	m.mu.Lock()
	fn()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

func (m *SessionManager) snapshotLocked() State {
	return State{
		CurrentUser:     m.currentUser.Clone(),
		IsAuthenticated: m.currentUser != nil,
		IsLoading:       m.loading,
		Error:           m.errMsg,
	}
}

func (m *SessionManager) notify(s State) {
	m.subsMu.Lock()
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	m.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(s)
	}
}

func errorMessage(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return FallbackLoginError
}
