package storage

import (
	"errors"
	"fmt"
)

// Common storage errors.
var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("record not found")

	// ErrKeyExists is returned by a backend when Create targets an existing key.
	ErrKeyExists = errors.New("key already exists")

	// ErrKeyNotFound is returned by a backend Get for a missing key.
	ErrKeyNotFound = errors.New("key not found")
)

// StorageError reports a failure of the underlying persistence layer.
type StorageError struct {
	Op         string
	Collection Collection
	ID         string
	Err        error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotFoundError reports an operation that targets a nonexistent id.
type NotFoundError struct {
	Collection Collection
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", singular(e.Collection), e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold for any NotFoundError.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError names the first offending field of a record or bundle.
// Index is the position within Collection, or -1 when the error is not
// tied to a list element.
type ValidationError struct {
	Collection string
	Index      int
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Collection == "" && e.Field == "":
		return "validation: " + e.Reason
	case e.Collection == "":
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
	case e.Index < 0 && e.Field == "":
		return fmt.Sprintf("validation: %s: %s", e.Collection, e.Reason)
	case e.Index < 0:
		return fmt.Sprintf("validation: %s.%s: %s", e.Collection, e.Field, e.Reason)
	case e.Field == "":
		return fmt.Sprintf("validation: %s[%d]: %s", e.Collection, e.Index, e.Reason)
	}
	return fmt.Sprintf("validation: %s[%d].%s: %s", e.Collection, e.Index, e.Field, e.Reason)
}

func invalid(c Collection, field, reason string) *ValidationError {
	return &ValidationError{Collection: string(c), Index: -1, Field: field, Reason: reason}
}

func storageErr(op string, c Collection, id string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Collection: c, ID: id, Err: err}
}

func singular(c Collection) string {
	switch c {
	case CollectionRooms:
		return "room"
	case CollectionPlayers:
		return "player"
	case CollectionMatches:
		return "match"
	case CollectionSettings:
		return "setting"
	}
	return string(c)
}
