// Package storeerrors defines the error kinds spec.md section 6
// surfaces to callers, following the sentinel-error-plus-wrapping
// idiom in internal/storage/sqlite/errors.go from the teacher.
package storeerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Compare against these with errors.Is; StoreError
// wraps one of them with operation/object context.
var (
	ErrObjectNotFound    = errors.New("object not found")
	ErrDuplicateUID      = errors.New("duplicate uid")
	ErrConcurrentUpdate  = errors.New("anchor has a pending update cycle")
	ErrAccessDenied      = errors.New("access denied")
	ErrAliasedObject     = errors.New("object is already aliased")
	ErrCircularReference = errors.New("circular alias reference")
	ErrCanonicalObject   = errors.New("object is canonical and cannot be aliased")
	ErrConfiguration     = errors.New("invalid configuration")
)

// StoreError carries the operation name and object id alongside one
// of the sentinel errors above, so callers get a descriptive message
// while still being able to errors.Is against the sentinel.
type StoreError struct {
	Op       string
	ObjectID string
	Err      error
}

func (e *StoreError) Error() string {
	if e.ObjectID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ObjectID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap builds a StoreError. Use the sentinels above as err.
func Wrap(op, objectID string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, ObjectID: objectID, Err: err}
}
