package index

import "errors"

var (
	// ErrNoChange is returned by a transform to skip the write.
	ErrNoChange = errors.New("index: no change")
	// ErrRecordNotFound signals that no record with the requested id exists in the index.
	ErrRecordNotFound = errors.New("index: record not found")
	// ErrDuplicateRecord signals an append of an id that is already indexed.
	ErrDuplicateRecord = errors.New("index: duplicate record")
	// ErrCorrupt signals an index file that is not a JSON array.
	ErrCorrupt = errors.New("index: corrupt index file")
)
