// Package common defines shared constants and sentinel errors used across
// the service layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// ErrEmailNotConfirmed is returned on login before the confirmation link
	// has been followed, unless UnifyLoginErrors hides it.
	ErrEmailNotConfirmed = errors.New("email not confirmed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Session lifecycle errors.
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// ErrTokenReuse signals a refresh token presented after rotation.
	// The session is destroyed before this is returned.
	ErrTokenReuse = errors.New("refresh token reuse detected")

	// Linking workflow errors.
	ErrNotRequested  = errors.New("code not requested")
	ErrProtocol      = errors.New("external capability protocol violation")
	ErrExternalCall  = errors.New("external call failed")
	ErrEnqueueFailed = errors.New("enqueue failed")

	// Secret storage errors.
	ErrMalformedEnvelope = errors.New("malformed secret envelope")
	ErrMissingSecret     = errors.New("server secret not configured")
)
