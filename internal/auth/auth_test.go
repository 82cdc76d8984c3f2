package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icepeak/internal/value"
)

func TestDisabledValidatorAlwaysAuthorizes(t *testing.T) {
	v := NewValidator("")
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Authorize("", value.Path{"anything"}))
}

func TestMintAndAuthorizeWithinGrantedPrefix(t *testing.T) {
	secret := "test-secret"
	token, err := Mint(secret, []string{"a/b"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	v := NewValidator(secret)
	assert.NoError(t, v.Authorize(token, value.Path{"a", "b", "c"}))
}

func TestAuthorizeOutsideGrantedPrefixFails(t *testing.T) {
	secret := "test-secret"
	token, err := Mint(secret, []string{"a/b"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	v := NewValidator(secret)
	assert.ErrorIs(t, v.Authorize(token, value.Path{"x"}), ErrUnauthorized)
}

func TestAuthorizeSiblingPathWithSharedPrefixFails(t *testing.T) {
	secret := "test-secret"
	token, err := Mint(secret, []string{"a/b"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	v := NewValidator(secret)
	// "a/bc" shares the raw string prefix "a/b" but is not under the "a/b"
	// segment, so it must not be authorized.
	assert.ErrorIs(t, v.Authorize(token, value.Path{"a", "bc"}), ErrUnauthorized)
}

func TestAuthorizeExpiredTokenFails(t *testing.T) {
	secret := "test-secret"
	token, err := Mint(secret, []string{"a"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)

	v := NewValidator(secret)
	assert.ErrorIs(t, v.Authorize(token, value.Path{"a"}), ErrUnauthorized)
}

func TestAuthorizeWrongSecretFails(t *testing.T) {
	token, err := Mint("secret-a", []string{"a"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	v := NewValidator("secret-b")
	assert.ErrorIs(t, v.Authorize(token, value.Path{"a"}), ErrUnauthorized)
}

func TestAuthorizeMissingTokenFails(t *testing.T) {
	v := NewValidator("secret")
	assert.ErrorIs(t, v.Authorize("", value.Path{"a"}), ErrUnauthorized)
}
