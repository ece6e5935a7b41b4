package grid

import "fmt"

// ViewDistance is the number of tiles kept active on each side of the
// viewer's tile. North is -Z, south is +Z, west is -X, east is +X.
type ViewDistance struct {
	North int `json:"north" yaml:"north"`
	East  int `json:"east" yaml:"east"`
	South int `json:"south" yaml:"south"`
	West  int `json:"west" yaml:"west"`
}

// Uniform returns the same distance in every direction.
func Uniform(d int) ViewDistance {
	return ViewDistance{North: d, East: d, South: d, West: d}
}

func (d ViewDistance) Validate() error {
	if d.North < 0 || d.East < 0 || d.South < 0 || d.West < 0 {
		return fmt.Errorf("%w: negative view distance %+v", ErrInvalidConfiguration, d)
	}
	return nil
}

// Count is the number of tiles in a window built from d.
func (d ViewDistance) Count() int {
	return (d.West + d.East + 1) * (d.North + d.South + 1)
}

// Window is an inclusive rectangle of tile coordinates.
type Window struct {
	Min TileCoord `json:"min"`
	Max TileCoord `json:"max"`
}

// NewWindow centres a window on the viewer's tile.
func NewWindow(center TileCoord, d ViewDistance) Window {
	return Window{
		Min: TileCoord{X: center.X - d.West, Z: center.Z - d.North},
		Max: TileCoord{X: center.X + d.East, Z: center.Z + d.South},
	}
}

func (w Window) Width() int { return w.Max.X - w.Min.X + 1 }

func (w Window) Depth() int { return w.Max.Z - w.Min.Z + 1 }

func (w Window) Count() int { return w.Width() * w.Depth() }

func (w Window) Contains(c TileCoord) bool {
	return c.X >= w.Min.X && c.X <= w.Max.X && c.Z >= w.Min.Z && c.Z <= w.Max.Z
}

func (w Window) String() string {
	return fmt.Sprintf("[%s..%s]", w.Min, w.Max)
}

// Each visits coordinates row-major: x outer, z inner, both ascending.
// Returning false stops the walk.
func (w Window) Each(fn func(c TileCoord) bool) {
	for x := w.Min.X; x <= w.Max.X; x++ {
		for z := w.Min.Z; z <= w.Max.Z; z++ {
			if !fn(TileCoord{X: x, Z: z}) {
				return
			}
		}
	}
}

// Coords returns the coordinates in Each order.
func (w Window) Coords() []TileCoord {
	out := make([]TileCoord, 0, w.Count())
	w.Each(func(c TileCoord) bool {
		out = append(out, c)
		return true
	})
	return out
}

// RingStrips returns the one-tile border around w as four strips: the top
// row and bottom row (both including the corners), then the left and right
// columns.
func (w Window) RingStrips() [4][]TileCoord {
	var strips [4][]TileCoord
	for x := w.Min.X - 1; x <= w.Max.X+1; x++ {
		strips[0] = append(strips[0], TileCoord{X: x, Z: w.Min.Z - 1})
		strips[1] = append(strips[1], TileCoord{X: x, Z: w.Max.Z + 1})
	}
	for z := w.Min.Z; z <= w.Max.Z; z++ {
		strips[2] = append(strips[2], TileCoord{X: w.Min.X - 1, Z: z})
		strips[3] = append(strips[3], TileCoord{X: w.Max.X + 1, Z: z})
	}
	return strips
}

// RingCount is the number of tiles in the border around w.
func (w Window) RingCount() int {
	return 2*(w.Width()+2) + 2*w.Depth()
}
