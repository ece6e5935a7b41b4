package tilestore

import "errors"

var (
	ErrStoreClosed = errors.New("tile store closed")
	// ErrCorrupt is returned when a stored blob does not decode to the
	// digest it was written with.
	ErrCorrupt = errors.New("stored tile is corrupt")
)
