package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, issuer, sub string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestValidate(t *testing.T) {
	svc := NewTokenService("secret", "idp.example.com")

	claims, err := svc.Validate(signToken(t, "secret", "idp.example.com", "u1"))
	require.NoError(t, err)
	require.Equal(t, Principal("u1"), Resolve(claims))
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	svc := NewTokenService("secret", "")
	_, err := svc.Validate(signToken(t, "other-secret", "", "u1"))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	svc := NewTokenService("secret", "idp.example.com")
	_, err := svc.Validate(signToken(t, "secret", "someone-else", "u1"))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewTokenService("secret", "")
	_, err := svc.Validate("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsUnsignedAlg(t *testing.T) {
	svc := NewTokenService("secret", "")
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Validate(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}
