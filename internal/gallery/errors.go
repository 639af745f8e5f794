package gallery

import "errors"

var (
	// ErrInvalidUsername is returned when the username fails the allowed
	// pattern (letters, digits, underscore, hyphen).
	ErrInvalidUsername = errors.New("username may only contain letters, digits, underscores and hyphens")

	// ErrUsernameTaken is returned when a gallery with the username exists.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrNotFound is returned when no gallery matches the given id.
	ErrNotFound = errors.New("gallery not found")

	// ErrInvalidCredentials is returned on login failure. The message is
	// shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrDirectoryCreate is returned when the upload directory could not be
	// provisioned; the registry entry is rolled back before it is reported.
	ErrDirectoryCreate = errors.New("failed to create upload directory")
)
