package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	cases := map[string]struct {
		claims jwt.MapClaims
		want   Principal
	}{
		"nil claims":      {nil, None},
		"missing subject": {jwt.MapClaims{"email": "a@b.c"}, None},
		"empty subject":   {jwt.MapClaims{"sub": ""}, None},
		"numeric subject": {jwt.MapClaims{"sub": 42}, None},
		"valid subject":   {jwt.MapClaims{"sub": "u1"}, Principal("u1")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, Resolve(tc.claims))
		})
	}
}

func TestPrincipalValid(t *testing.T) {
	require.False(t, None.Valid())
	require.True(t, Principal("u1").Valid())
}
