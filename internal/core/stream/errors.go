package stream

import "errors"

var (
	ErrNilProducer  = errors.New("producer is nil")
	ErrEngineClosed = errors.New("engine is closed")
)
