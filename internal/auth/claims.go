package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultAccessTokenTTL bounds exposure for the unrevokable token class.
const defaultAccessTokenTTL = 15 * time.Minute

// Claims are the typed contents of an access token.
// Required fields are sub, role, and exp; decode rejects tokens missing any.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// TokenCodec signs and verifies access tokens.
//
// The signing key is injected at construction rather than read from ambient
// state, so tests can substitute deterministic keys. Access tokens carry no
// server-side state and cannot be revoked before expiry; the short TTL is
// the accepted bound on exposure.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec creates a codec with the given HS256 signing secret and
// access token TTL. A non-positive TTL falls back to the 15-minute default.
func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed access token for a subject. The role claim is
// trusted as of issuance time; callers derive it from the admins table
// immediately before calling.
func (c *TokenCodec) Issue(userID string, role Role) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Verify validates a token's signature and expiry and returns its claims.
//
// All failure causes collapse into ErrTokenInvalid. Expiry and tamper are
// deliberately not distinguished to the caller, to avoid oracle leakage.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Role != RoleAdmin && claims.Role != RoleDefault {
		return nil, fmt.Errorf("%w: missing or unknown role", ErrTokenInvalid)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}

	return claims, nil
}
