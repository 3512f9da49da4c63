package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// credentialExpired reports whether a JWT credential carries an exp claim in
// the past. The signature is not checked; the backend remains the authority.
// Opaque tokens never count as expired here.
func credentialExpired(token string, now time.Time) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
