package auth

import (
	"fmt"
	"strings"

	"dq-agent/internal/domain"
	"dq-agent/internal/domain/ports/adapter"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier extracts the calling user's identity from a Bearer token.
// Token issuance and the identity provider behind it are out of scope;
// this only validates signature and reads the sub/username claims.
// An empty secret enables a fixed dev identity for local testing.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) IdentityFromHeader(authHeader string) (adapter.Identity, error) {
	if len(v.secret) == 0 {
		return adapter.Identity{ID: "test-user", Name: "Test User"}, nil
	}

	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return adapter.Identity{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}
	raw := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return adapter.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return adapter.Identity{}, fmt.Errorf("%w: unreadable claims", domain.ErrUnauthorized)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return adapter.Identity{}, fmt.Errorf("%w: missing sub claim", domain.ErrUnauthorized)
	}
	name, _ := claims["username"].(string)
	if name == "" {
		name = sub
	}
	return adapter.Identity{ID: sub, Name: name}, nil
}
