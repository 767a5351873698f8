package app

import "errors"

var (
	// ErrMissingName is returned when a registration has an empty name.
	ErrMissingName = errors.New("application name is required")

	// ErrMissingAddonID is returned when a registration has no addon ID.
	ErrMissingAddonID = errors.New("application addon ID is required")

	// ErrMissingHandler is returned when a registration has no handler.
	ErrMissingHandler = errors.New("application handler is required")

	// ErrDuplicateName is returned when the name is already registered.
	ErrDuplicateName = errors.New("application name already registered")
)
