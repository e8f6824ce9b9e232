package promotion

import "errors"

var (
	// ErrNotFound: the referenced user, event or order does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: a business rule forbids the operation right now.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidArgument: the request itself is malformed, e.g. an unknown pricing tier.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransient: store or gateway I/O failed. Safe to retry.
	ErrTransient = errors.New("transient failure")
)
