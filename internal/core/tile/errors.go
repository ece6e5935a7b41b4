package tile

import "errors"

var (
	ErrHeightsSize  = errors.New("heights length does not match block size")
	ErrInvalidPatch = errors.New("invalid patch size")
)
