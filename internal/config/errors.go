package config

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrSchema        = errors.New("config does not match schema")
)
