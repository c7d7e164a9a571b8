// Package identity consumes the external identity provider's session token.
// The engine treats the subject id as an opaque customer key; session renewal
// is owned by the provider, not this code.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrExpired reports a token past its expiry claim.
var ErrExpired = errors.New("session token expired")

// Session is the narrow identity contract the engine reads.
type Session struct {
	SubjectID       string
	IsAuthenticated bool
	Token           string
}

// Anonymous returns an unauthenticated session.
func Anonymous() Session {
	return Session{}
}

// FromToken extracts the subject from a provider-issued JWT. Signature
// verification stays with the provider's middleware upstream; this parse only
// reads claims and rejects expired tokens.
func FromToken(token string) (Session, error) {
	if token == "" {
		return Anonymous(), nil
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("parse session token: %w", err)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if time.Now().After(exp.Time) {
			return Session{}, ErrExpired
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Session{}, fmt.Errorf("session token missing subject")
	}

	return Session{SubjectID: sub, IsAuthenticated: true, Token: token}, nil
}
