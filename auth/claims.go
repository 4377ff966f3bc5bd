package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// ClaimsKey is the context key under which the host stores verified claims.
const ClaimsKey contextKey = "claims"

// Access is the permission a token grants on the primary.
type Access string

const (
	AccessReadWrite Access = "rw"
	AccessReadOnly  Access = "ro"
)

// Claims are carried by primary auth tokens.
type Claims struct {
	jwt.RegisteredClaims
	Access Access `json:"a"`
}

// ClaimsFromContext returns the claims the host stored under ClaimsKey.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// CanWrite reports whether the token may run statements other than reads.
func (c *Claims) CanWrite() bool {
	return c.Access == AccessReadWrite
}

// IssueToken signs a token with key. A zero ttl issues a token that never expires.
func IssueToken(key []byte, access Access, ttl time.Duration) (string, error) {
	if access != AccessReadWrite && access != AccessReadOnly {
		return "", fmt.Errorf("auth: unknown access %q", access)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)},
		Access:           access,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Verifier checks tokens signed with one HMAC key.
type Verifier struct {
	key []byte
}

func NewVerifier(key []byte) *Verifier {
	return &Verifier{key: key}
}

// Verify parses and validates a token.
func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	if claims.Access != AccessReadWrite && claims.Access != AccessReadOnly {
		return nil, errors.New("auth: token carries no access claim")
	}
	return claims, nil
}
