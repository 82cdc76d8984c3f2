// Package auth validates JWT bearer tokens and enforces Icepeak's single
// authorization rule: a token's "paths" claim lists the path prefixes it
// grants access to.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"icepeak/internal/value"
)

// ErrUnauthorized is returned when a token is missing, invalid, or does not
// grant access to the requested path.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Claims is the token payload Icepeak expects: a list of path prefixes the
// bearer may access, alongside the standard registered claims (exp, iat).
type Claims struct {
	Paths []string `json:"paths"`
	jwt.RegisteredClaims
}

// Validator verifies bearer tokens against a single HMAC secret. An empty
// secret disables authentication entirely (Authorize always succeeds) —
// suitable only for local/development use.
type Validator struct {
	secret []byte
}

// NewValidator returns a Validator using secret to verify signatures. A
// nil/empty secret disables authentication.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Enabled reports whether authentication is active.
func (v *Validator) Enabled() bool {
	return len(v.secret) > 0
}

// Authorize parses tokenString and checks that it grants access to path. It
// returns ErrUnauthorized for any failure: malformed token, bad signature,
// expiry, or no matching path prefix.
func (v *Validator) Authorize(tokenString string, path value.Path) error {
	if !v.Enabled() {
		return nil
	}
	if tokenString == "" {
		return ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrUnauthorized
	}

	for _, prefix := range claims.Paths {
		if path.HasPrefix(parsePrefix(prefix)) {
			return nil
		}
	}
	return ErrUnauthorized
}

// parsePrefix splits a claim's "/"-separated path prefix into segments, the
// same way request paths are parsed, so prefix matching compares segments
// rather than raw strings (a grant for "users/1" must not also cover
// "users/10" or "users/1-admin").
func parsePrefix(raw string) value.Path {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return value.Path{}
	}
	return value.Path(strings.Split(trimmed, "/"))
}

// Mint creates a signed token granting access to the given path prefixes,
// carrying the given registered claims (its expiry is claims.ExpiresAt).
// Used by cmd/icepeak-token.
func Mint(secret string, paths []string, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Paths:            paths,
		RegisteredClaims: claims,
	})
	return token.SignedString([]byte(secret))
}
