package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateOrderNumber is returned when an order number already
// exists within the target shard.
var ErrDuplicateOrderNumber = errors.New("order number already exists")

// ErrDuplicateBarcode is returned when a (barcode, order) pair has
// already been recorded within the target shard.
var ErrDuplicateBarcode = errors.New("barcode already scanned for this order")

// ErrDuplicateUsername is returned when a username is already taken.
var ErrDuplicateUsername = errors.New("username already exists")

// ErrDuplicateDepartment is returned when a department name is already taken.
var ErrDuplicateDepartment = errors.New("department already exists")

// ErrReferentialIntegrity is returned when a delete is blocked by
// dependent records.
var ErrReferentialIntegrity = errors.New("record is still referenced")

// StorageError wraps an underlying persistence failure. Domain-rule
// violations are never wrapped in it; only connection/IO/SQL faults are.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

const pqUniqueViolation = "23505"

// uniqueViolation reports whether err is a Postgres unique-constraint
// violation on the named index/constraint. An empty name matches any
// unique violation.
func uniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
