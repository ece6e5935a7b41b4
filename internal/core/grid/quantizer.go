package grid

import (
	"fmt"
	"math"

	"github.com/zeusync/tilestream/internal/core/systems/physics"
)

// Quantizer converts world positions to tile coordinates and back.
//
// A tile spans blockSize-1 world units so neighbouring tiles share their edge
// samples. The viewer offset recentres the shift so the viewer sits in the
// middle of its tile rather than on a corner.
type Quantizer struct {
	blockSize int
	shift     uint
	offset    int
	scale     float64
}

// NewQuantizer validates blockSize and derives the viewer offset from the
// horizontal world scale. A scale <= 0 is treated as 1.
func NewQuantizer(blockSize int, horizontalScale float64) (Quantizer, error) {
	shift, err := ShiftFor(blockSize)
	if err != nil {
		return Quantizer{}, err
	}
	if horizontalScale <= 0 {
		horizontalScale = 1
	}
	if math.IsInf(horizontalScale, 0) || math.IsNaN(horizontalScale) {
		return Quantizer{}, fmt.Errorf("%w: horizontal scale %v", ErrInvalidConfiguration, horizontalScale)
	}
	return Quantizer{
		blockSize: blockSize,
		shift:     shift,
		offset:    int(float64((blockSize-1)/2) / horizontalScale),
		scale:     horizontalScale,
	}, nil
}

func (q Quantizer) BlockSize() int { return q.blockSize }

// Span is the world extent of one tile before scaling.
func (q Quantizer) Span() int { return 1 << q.shift }

func (q Quantizer) Shift() uint { return q.shift }

func (q Quantizer) Offset() int { return q.offset }

func (q Quantizer) HorizontalScale() float64 { return q.scale }

// ToTile floors p to the tile containing it. Y is ignored.
func (q Quantizer) ToTile(p physics.Vec3) TileCoord {
	return TileCoord{
		X: floorInt(p.X) >> q.shift,
		Z: floorInt(p.Z) >> q.shift,
	}
}

// FromTile returns the world position of c's origin corner.
func (q Quantizer) FromTile(c TileCoord) physics.Vec3 {
	return physics.Vec3{
		X: float64(c.X << q.shift),
		Z: float64(c.Z << q.shift),
	}
}

// ViewerTile maps a world position to the tile the window is centred on:
// the position is brought back to sample space, offset, then shifted.
func (q Quantizer) ViewerTile(p physics.Vec3) TileCoord {
	return TileCoord{
		X: (floorInt(p.X/q.scale) + q.offset) >> q.shift,
		Z: (floorInt(p.Z/q.scale) + q.offset) >> q.shift,
	}
}

func floorInt(v float64) int {
	return int(math.Floor(v))
}
