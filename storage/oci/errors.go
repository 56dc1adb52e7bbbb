package oci

import "errors"

// Sentinel errors for registry-backed storage.
var (
	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("oci storage: unauthorized")

	// ErrForbidden is returned when access is denied.
	ErrForbidden = errors.New("oci storage: forbidden")

	// ErrInvalidReference is returned when a repository or key cannot be parsed.
	ErrInvalidReference = errors.New("oci storage: invalid reference")

	// ErrNoArchiveLayer is returned when a manifest has no layer to serve.
	ErrNoArchiveLayer = errors.New("oci storage: manifest has no archive layer")
)
