// Package authclient talks to the portal auth API on behalf of a
// SessionManager. It owns the credential carrier: a cookie jar for the
// server's session cookie and a TokenStore for the bearer token.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"tourism-portal/internal/domain/auth"

	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// Config configures a Client
type Config struct {
	BaseURL string // e.g. http://localhost:8000/api/v1
	Timeout time.Duration
	Device  string
}

// Client is the HTTP implementation of the session manager's AuthService
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenStore
	Device     string

	jar    *resettableJar
	logger *zap.Logger
}

// New creates a client. A nil tokens store keeps tokens in memory.
func New(cfg Config, tokens TokenStore, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("auth API base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid auth API base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	jar, err := newResettableJar()
	if err != nil {
		return nil, err
	}

	return &Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		Tokens: tokens,
		Device: cfg.Device,
		jar:    jar,
		logger: logger.Named("authclient"),
	}, nil
}

type loginBody struct {
	auth.Credential
	Device string `json:"device,omitempty"`
}

// Login submits credentials and stores the issued token. Remembered logins
// go to the durable side of the token store.
func (c *Client) Login(ctx context.Context, cred auth.Credential) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login", loginBody{Credential: cred, Device: c.Device}, "")
	if err != nil {
		return err
	}

	var loginResp auth.LoginResponse
	if err := parseResponse(resp, &loginResp); err != nil {
		return err
	}
	if loginResp.AccessToken == "" {
		return errors.New("login response carried no access token")
	}

	tok := &StoredToken{
		AccessToken: loginResp.AccessToken,
		ExpiresAt:   loginResp.ExpiresAt,
		Email:       cred.Email,
		RememberMe:  cred.RememberMe,
	}
	if err := c.Tokens.Save(tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	c.logger.Debug("logged in", zap.Bool("remember_me", cred.RememberMe), zap.Time("expires_at", tok.ExpiresAt))
	return nil
}

// GetCurrentUser returns (nil, nil) when no one is logged in, including when
// the server rejects the stored token.
func (c *Client) GetCurrentUser(ctx context.Context) (*auth.CurrentUser, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/me", nil, token)
	if err != nil {
		return nil, err
	}

	var user auth.CurrentUser
	if err := parseResponse(resp, &user); err != nil {
		if IsUnauthorized(err) {
			c.logger.Debug("stored token rejected, clearing it")
			c.forget()
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Logout ends the server session. The local credentials are dropped whatever
// the outcome; the request error is still returned.
func (c *Client) Logout(ctx context.Context) error {
	defer c.forget()

	token, err := c.token()
	if err != nil || token == "" {
		return err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/logout", nil, token)
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}

// token returns the stored access token, discarding it once expired
func (c *Client) token() (string, error) {
	tok, err := c.Tokens.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	if tok == nil {
		return "", nil
	}
	if tok.Expired(time.Now()) {
		c.forget()
		return "", nil
	}
	return tok.AccessToken, nil
}

func (c *Client) forget() {
	if err := c.Tokens.Clear(); err != nil {
		c.logger.Warn("failed to clear stored token", zap.Error(err))
	}
	c.jar.Reset()
}

// doRequest performs an HTTP request with authentication
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, token string) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	return resp, nil
}

// envelope is the server's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// parseResponse unwraps the envelope into target, or turns a failure into an
// *APIError carrying the server's message
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (decodeErr == nil && !env.Success) {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		switch {
		case decodeErr == nil && env.Message != "":
			apiErr.Message = env.Message
		case decodeErr == nil && env.Error != "":
			apiErr.Message = env.Error
		default:
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if target != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// resettableJar is a cookie jar that can be emptied while in use
type resettableJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newResettableJar() (*resettableJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &resettableJar{jar: jar}, nil
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

func (j *resettableJar) Reset() {
	jar, _ := cookiejar.New(nil) // only fails on a bad PublicSuffixList
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}
