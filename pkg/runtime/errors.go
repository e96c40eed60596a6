// Package runtime manages the database engines of each configured alias.
package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAlias is returned for a database alias with no configuration.
	ErrUnknownAlias = errors.New("unknown database alias")

	// ErrUnsupportedDriver is returned when a configuration names a driver
	// that is not compiled in.
	ErrUnsupportedDriver = errors.New("unsupported driver")

	// ErrNoSessionStore is returned when a query runs with a context that
	// carries no session store.
	ErrNoSessionStore = errors.New("no session store in context")

	// ErrEnginesClosed is returned after Engines.Close.
	ErrEnginesClosed = errors.New("engines closed")
)

// QueryError represents a query execution error.
type QueryError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}
