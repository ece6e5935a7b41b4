package producer

import "errors"

var (
	// ErrResourceMissing is returned when the backing asset for a tile does
	// not exist.
	ErrResourceMissing = errors.New("tile resource missing")
	// ErrProducerFailure covers unreadable resources, nil tiles and panics.
	ErrProducerFailure = errors.New("tile producer failure")
	ErrInvalidNoise    = errors.New("invalid noise configuration")
	ErrInvalidScene    = errors.New("invalid scene")
)
