package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is stamped into every token.
const Issuer = "canonstore"

// DefaultTokenTTL applies when no ttl is configured.
const DefaultTokenTTL = 365 * 24 * time.Hour

// ErrNoSigningKey is returned when tokens are requested without a configured key.
var ErrNoSigningKey = errors.New("jwt signing key is not configured")

// Claims are the verified contents of an API token.
type Claims struct {
	ID        string    `json:"jti"`
	Admin     bool      `json:"admin"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type tokenClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS512 API tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager returns a manager for the given signing key. ttl <= 0 uses DefaultTokenTTL.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether a signing key is configured.
func (m *TokenManager) Enabled() bool {
	return m != nil && len(m.secret) > 0
}

// Issue signs a new token. ttl <= 0 uses the manager default.
func (m *TokenManager) Issue(admin bool, ttl time.Duration) (string, Claims, error) {
	if !m.Enabled() {
		return "", Claims{}, ErrNoSigningKey
	}
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.now().UTC().Truncate(time.Second)
	cl := tokenClaims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, cl).SignedString(m.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, Claims{ID: cl.ID, Admin: admin, IssuedAt: now, ExpiresAt: now.Add(ttl)}, nil
}

// Parse verifies signature, issuer and expiry of raw.
func (m *TokenManager) Parse(raw string) (Claims, error) {
	if !m.Enabled() {
		return Claims{}, ErrNoSigningKey
	}
	var out tokenClaims
	tkn, err := jwt.ParseWithClaims(raw, &out, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Claims{}, err
	}
	if !tkn.Valid {
		return Claims{}, jwt.ErrTokenInvalidClaims
	}

	claims := Claims{ID: out.ID, Admin: out.Admin}
	if out.IssuedAt != nil {
		claims.IssuedAt = out.IssuedAt.Time
	}
	if out.ExpiresAt != nil {
		claims.ExpiresAt = out.ExpiresAt.Time
	}
	return claims, nil
}

// ParseBearer verifies a "Bearer <token>" value.
func (m *TokenManager) ParseBearer(value string) (Claims, error) {
	raw := ExtractBearer(value)
	if raw == "" {
		return Claims{}, fmt.Errorf("missing bearer token")
	}
	return m.Parse(raw)
}

// ExtractBearer returns the token part of a "Bearer <token>" header value.
func ExtractBearer(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
