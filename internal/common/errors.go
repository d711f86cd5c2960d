// Package common defines shared constants, sentinel errors, and small
// utilities used across WorldKeeper components. Callers should use
// errors.Is to match the sentinel values.
package common

import "errors"

var (
	// Credential store errors.
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("incorrect credentials")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Authorization errors.
	ErrForbidden = errors.New("forbidden")

	// Instance registry errors.
	ErrInstanceNotFound = errors.New("instance not found")
	ErrDuplicateName    = errors.New("instance name already exists")

	// Collaborator errors.
	ErrProvisionerUnavailable = errors.New("provisioner unavailable")
	ErrAmbiguousOutcome       = errors.New("remote call outcome unknown")
	ErrStoreUnavailable       = errors.New("store unavailable")

	// Generic internal flow control.
	ErrInternal = errors.New("internal error")
)
