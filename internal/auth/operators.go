package auth

import (
	"fmt"
	"time"
)

// Operator is a configured account.
type Operator struct {
	Name         string
	PasswordHash string
}

// Authenticator checks operator credentials and signs tokens.
type Authenticator struct {
	secret    string
	ttl       time.Duration
	operators map[string]string
}

// NewAuthenticator creates an authenticator signing with secret.
func NewAuthenticator(secret string, ttl time.Duration, operators []Operator) *Authenticator {
	m := make(map[string]string, len(operators))
	for _, op := range operators {
		m[op.Name] = op.PasswordHash
	}
	return &Authenticator{secret: secret, ttl: ttl, operators: m}
}

// Enabled reports whether a signing secret is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.secret != ""
}

// Authenticate verifies name and password and returns a signed token.
func (a *Authenticator) Authenticate(name, password string) (string, error) {
	if !a.Enabled() {
		return "", ErrInvalidCredentials
	}

	hash, ok := a.operators[name]
	if !ok {
		return "", ErrInvalidCredentials
	}
	match, err := VerifyPassword(password, hash)
	if err != nil {
		return "", fmt.Errorf("verifying operator %s: %w", name, err)
	}
	if !match {
		return "", ErrInvalidCredentials
	}

	return GenerateAccessToken(name, a.secret, a.ttl)
}

// Verify parses a bearer token and returns its subject.
func (a *Authenticator) Verify(token string) (string, error) {
	if !a.Enabled() {
		return "", ErrTokenInvalid
	}
	claims, err := ParseToken(token, a.secret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// TTL returns the lifetime of issued tokens.
func (a *Authenticator) TTL() time.Duration {
	if a.ttl <= 0 {
		return DefaultTokenTTL
	}
	return a.ttl
}
