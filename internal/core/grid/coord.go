package grid

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned for block sizes outside 2^n+1, n in [4,10].
var ErrInvalidConfiguration = errors.New("invalid configuration")

// TileCoord addresses one tile on the XZ grid.
type TileCoord struct {
	X int `json:"x" yaml:"x"`
	Z int `json:"z" yaml:"z"`
}

func (c TileCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Less orders coordinates by X, then Z.
func (c TileCoord) Less(o TileCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Z < o.Z
}

// BlockSizes lists the accepted tile block sizes in ascending order.
var BlockSizes = []int{17, 33, 65, 129, 257, 513, 1025}

// ShiftFor returns log2(blockSize-1).
func ShiftFor(blockSize int) (uint, error) {
	switch blockSize {
	case 17:
		return 4, nil
	case 33:
		return 5, nil
	case 65:
		return 6, nil
	case 129:
		return 7, nil
	case 257:
		return 8, nil
	case 513:
		return 9, nil
	case 1025:
		return 10, nil
	}
	return 0, fmt.Errorf("%w: block size %d is not one of %v", ErrInvalidConfiguration, blockSize, BlockSizes)
}

// ValidBlockSize reports whether blockSize is accepted by ShiftFor.
func ValidBlockSize(blockSize int) bool {
	_, err := ShiftFor(blockSize)
	return err == nil
}
