package allocator

import "errors"

// ErrCapacityExhausted signals that every repository is at the hard cap and no more may be created.
var ErrCapacityExhausted = errors.New("allocator: storage capacity exhausted")
