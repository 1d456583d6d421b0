package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, 12*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 720*time.Hour, cfg.JWT.RememberTTL)
	assert.Equal(t, "portal_session", cfg.CookieName)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.LoginWindow)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("JWT_REMEMBER_TTL", "bogus")
	t.Setenv("SESSION_COOKIE_SECURE", "false")
	t.Setenv("SESSION_COOKIE_SAMESITE", "Strict")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 720*time.Hour, cfg.JWT.RememberTTL, "unparsable values fall back")
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, http.SameSiteStrictMode, cfg.CookieSameSite)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadPortal(t *testing.T) {
	t.Setenv("PORTAL_API_URL", "https://api.example.com/api/v1/")
	t.Setenv("PORTAL_TOKEN_FILE", "/tmp/token.json")
	t.Setenv("PORTAL_TIMEOUT", "3s")

	cfg := LoadPortal()

	assert.Equal(t, "https://api.example.com/api/v1", cfg.APIURL)
	assert.Equal(t, "/tmp/token.json", cfg.TokenFile)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "portal-cli", cfg.Device)
}
