package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown operator or wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned when a token fails signature or claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned when a stored password hash cannot be decoded.
	ErrInvalidHash = errors.New("auth: invalid password hash")
)
