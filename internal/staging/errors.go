package staging

import "errors"

var (
	// ErrPrecondition covers unreachable archives and unwritable storage.
	ErrPrecondition = errors.New("precondition failed")

	// ErrInconsistentSample marks a paired sample with only one mate on disk.
	ErrInconsistentSample = errors.New("inconsistent sample state")
)
