// Package errs holds the failure categories shared by the query pipeline.
//
// Component packages wrap these sentinels together with their own, more
// specific errors so callers can match either with errors.Is.
package errs

import "errors"

var (
	// ErrInvalidArgument is returned when caller input is malformed
	// (blank field specs, unparseable filter text, bad annotation arguments).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidOperation is returned when well-formed input cannot be
	// satisfied by the registered metadata (unknown members, traversing a
	// scalar, exceeding the depth limit, a store rejecting a plan).
	ErrInvalidOperation = errors.New("invalid operation")
)
