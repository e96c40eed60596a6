package mapping

import "errors"

var (
	// ErrDuplicateTable is returned when a table name is registered twice.
	ErrDuplicateTable = errors.New("table already defined")

	// ErrUnknownTable is returned when a referenced table does not exist.
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownColumn is returned when a referenced column does not exist.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrAlreadyMapped is returned when a class is mapped twice.
	ErrAlreadyMapped = errors.New("class already mapped")

	// ErrNotMapped is returned when a relationship targets an unmapped class.
	ErrNotMapped = errors.New("class not mapped")

	// ErrPropertyConflict is returned when two properties share a name on
	// one class.
	ErrPropertyConflict = errors.New("property name conflict")

	// ErrUnknownRelationship is returned by Query.Join for a name that is
	// not a relationship of any class in the query.
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrSessionClosed is returned when a closed session runs a statement.
	ErrSessionClosed = errors.New("session closed")

	// ErrNoSessionSource is returned by Class.Query on a class that was not
	// given a session source.
	ErrNoSessionSource = errors.New("class has no session source")

	// ErrNotFound is returned by Query.First when no row matches.
	ErrNotFound = errors.New("no row found")
)
