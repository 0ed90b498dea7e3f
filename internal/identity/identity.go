// Package identity resolves the acting principal from externally
// verified token claims. Token issuance belongs to the identity
// provider; this package only extracts the subject.
package identity

import "github.com/golang-jwt/jwt/v5"

// Principal is the resolved acting identity for an operation. The zero
// value means "no identity"; every access predicate denies it.
type Principal string

// None is the absent principal.
const None Principal = ""

// Valid reports whether a principal was resolved.
func (p Principal) Valid() bool { return p != None }

// String returns the raw subject identifier.
func (p Principal) String() string { return string(p) }

// Resolve extracts the principal from a verified claim set. It never
// fails: a nil claim set, a missing `sub`, or a non-string `sub` all
// yield None, which downstream policies treat as deny-all.
func Resolve(claims jwt.MapClaims) Principal {
	if claims == nil {
		return None
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return None
	}
	return Principal(sub)
}
