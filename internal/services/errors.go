package services

import "errors"

// ErrAuthenticationFailed is returned when credentials do not match.
// The reason (unknown user vs wrong password) is deliberately not
// distinguished.
var ErrAuthenticationFailed = errors.New("invalid username or password")

// ErrForbidden is returned when the caller's role or department does
// not permit the operation.
var ErrForbidden = errors.New("forbidden")

// ErrDepartmentRequired is returned when an operation needs a target
// shard but the caller has no department.
var ErrDepartmentRequired = errors.New("user must belong to a department")

// ErrInvalidStatus is returned when a scan status is neither Pass nor Fail.
var ErrInvalidStatus = errors.New("invalid scan status")
