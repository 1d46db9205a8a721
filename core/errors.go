package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSigning is returned when the wallet refuses or fails to sign a challenge
	ErrSigning = errors.New("wallet signing failed")

	// ErrAuthRejected is returned when the identity provider rejects a login
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrRefreshFailed is returned when a refresh token can not be exchanged
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrAuthenticationRequired is returned when no usable credential is left
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrAlreadyInProgress is returned when a login is started while another one runs
	ErrAlreadyInProgress = errors.New("login already in progress")

	// ErrNotFound is returned by stores for missing or expired keys
	ErrNotFound = errors.New("not found")
)

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrChallengeExpired = errors.New("challenge outside of the accepted window")
	ErrChallengeReused  = errors.New("challenge has already been used")
)

// HTTPError is a non-success response that is not an authorization expiry
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Message)
}
