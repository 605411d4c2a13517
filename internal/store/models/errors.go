package models

import "errors"

// Error taxonomy exposed to callers. Store and engine code wraps these with
// fmt.Errorf("...: %w", err); the API layer maps them to status codes and
// returns only generic messages.
var (
	// ErrNotFound covers absent resources and resources not owned by the
	// caller. Expired share tokens also resolve to ErrNotFound so that the
	// public surface cannot be used to enumerate tokens.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict covers unique violations (users.email, share_links.token)
	// and name/destination collisions.
	ErrConflict = errors.New("conflict")

	// ErrTooManyDuplicates is returned when the " (N)" suffix scheme runs
	// out at N=10000.
	ErrTooManyDuplicates = errors.New("too many duplicate names")

	// ErrInvalidPath covers traversal attempts and reserved names.
	ErrInvalidPath = errors.New("invalid path")

	// ErrQuotaExceeded means an upload would exceed the user's storage
	// limit. Custom-drive users are exempt.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrIntegrity covers destructive actions on immutable rows, such as
	// deleting the primary administrator, and foreign-key violations.
	ErrIntegrity = errors.New("integrity violation")

	// ErrUnavailable is raised only when a write cannot be committed
	// because a required backend is down. Reads degrade instead.
	ErrUnavailable = errors.New("backend unavailable")
)
