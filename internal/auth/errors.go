package auth

import "errors"

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned when a password exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password is too long")

	// ErrInvalidToken covers every reason a bearer token is rejected:
	// bad signature, malformed, wrong issuer, missing subject, or expired.
	ErrInvalidToken = errors.New("invalid or expired token")
)
