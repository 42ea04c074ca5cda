package chatdb

import "errors"

var (
	// ErrDatabaseNotFound indicates the Messages database does not exist
	// at the resolved path.
	ErrDatabaseNotFound = errors.New("messages database not found")

	// ErrInvalidRange indicates a date range whose start is after its end.
	// It is raised before any query executes.
	ErrInvalidRange = errors.New("invalid date range: start is after end")
)
