// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotLoggedIn indicates no authenticated identity is present.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoCredential indicates the session has no bearer credential.
	ErrNoCredential = errors.New("no credential")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., emp_code taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNetworkUnavailable indicates the device has no internet connectivity.
	ErrNetworkUnavailable = errors.New("network unavailable")
)
