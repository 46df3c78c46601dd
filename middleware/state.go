package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signed redirect state for login round-trips. The desired post-login
// destination travels inside a signed, self-contained token instead of
// server-side session storage, so no session affinity is needed and the
// value cannot be tampered with in transit.

type stateClaims struct {
	Redirect string `json:"redirect"`
	jwt.RegisteredClaims
}

// SignRedirectState wraps a relative redirect target in a short-lived
// signed token. Absolute URLs are rejected to rule out open redirects.
func SignRedirectState(redirect string, ttl time.Duration) (string, error) {
	if redirect == "" {
		redirect = "/dashboard"
	}
	if !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
		return "", fmt.Errorf("redirect must be a relative path")
	}

	claims := &stateClaims{
		Redirect: redirect,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// VerifyRedirectState validates a signed state token and returns the
// redirect target it carries.
func VerifyRedirectState(state string) (string, error) {
	token, err := jwt.ParseWithClaims(state, &stateClaims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	return claims.Redirect, nil
}
