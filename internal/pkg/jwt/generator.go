// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

type Generator struct {
	priv        *rsa.PrivateKey
	issuer      string
	audience    string
	kid         string // key id for rotation
	Ttl         time.Duration
	RememberTtl time.Duration
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience, kid string, ttl, rememberTTL time.Duration) *Generator {
	if rememberTTL < ttl {
		rememberTTL = ttl
	}
	return &Generator{
		priv:        priv,
		issuer:      issuer,
		audience:    audience,
		kid:         kid,
		Ttl:         ttl,
		RememberTtl: rememberTTL,
	}
}

// Token is a signed access token together with the values the caller needs
// to persist the matching session.
type Token struct {
	Signed    string
	JTI       string
	ExpiresAt time.Time
}

// TTLFor returns the lifetime of a token issued with the given remember flag.
func (g *Generator) TTLFor(rememberMe bool) time.Duration {
	if rememberMe {
		return g.RememberTtl
	}
	return g.Ttl
}

// GenerateAccessToken signs an RS256 access token. Remembered sessions get
// RememberTtl instead of Ttl.
func (g *Generator) GenerateAccessToken(identityID int64, roles, permissions []string, device string, rememberMe bool) (*Token, error) {
	if g.priv == nil {
		return nil, fmt.Errorf("jwt generator has nil private key")
	}

	now := time.Now()
	jti := ulid.Make().String()
	expiresAt := now.Add(g.TTLFor(rememberMe))

	claims := &Claims{
		IdentityID:     identityID,
		Roles:          roles,
		Permissions:    permissions,
		Device:         device,
		RememberMe:     rememberMe,
		SessionPurpose: PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   fmt.Sprintf("%d", identityID),
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}

	signed, err := tok.SignedString(g.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Signed: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}
