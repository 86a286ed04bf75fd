// Package auth reads backend-issued session tokens. Token issuance belongs
// to the hosted backend; this side only verifies the signature and extracts
// the identity claims.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Session is the identity carried by a verified token.
type Session struct {
	UserID    int64
	Email     string
	ExpiresAt time.Time
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 session tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Parse verifies the token and returns its session. The user id is the
// token subject.
func (v *Verifier) Parse(tokenString string) (Session, error) {
	if tokenString == "" {
		return Session{}, ErrMissingToken
	}

	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Session{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("%w: non-numeric subject %q", ErrInvalidToken, c.Subject)
	}

	session := Session{UserID: userID, Email: c.Email}
	if c.ExpiresAt != nil {
		session.ExpiresAt = c.ExpiresAt.Time
	}
	return session, nil
}

// Issue signs a session token. Only used by tests and local dev setups;
// production tokens come from the hosted backend.
func (v *Verifier) Issue(userID int64, email string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	return token.SignedString(v.secret)
}
