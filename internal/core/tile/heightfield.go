package tile

import (
	"math"

	"github.com/zeusync/tilestream/internal/core/systems/physics"
)

// Heightfield is the collision shape derived from a tile's samples.
type Heightfield struct {
	Size      int
	Heights   []float32
	Transform physics.Transform
	MinY      float64
	MaxY      float64
}

func newHeightfield(size int, heights []float32, tr physics.Transform) *Heightfield {
	hf := &Heightfield{Size: size, Heights: heights, Transform: tr}
	if len(heights) > 0 {
		lo, hi := heights[0], heights[0]
		for _, h := range heights[1:] {
			lo = min(lo, h)
			hi = max(hi, h)
		}
		hf.MinY = tr.Translation.Y + float64(lo)*tr.Scale.Y
		hf.MaxY = tr.Translation.Y + float64(hi)*tr.Scale.Y
	}
	return hf
}

// Extent is the world width covered by the field along X and Z.
func (h *Heightfield) Extent() (x, z float64) {
	span := float64(h.Size - 1)
	return span * h.Transform.Scale.X, span * h.Transform.Scale.Z
}

// Contains reports whether world (x, z) lies over the field.
func (h *Heightfield) Contains(x, z float64) bool {
	ex, ez := h.Extent()
	lx := x - h.Transform.Translation.X
	lz := z - h.Transform.Translation.Z
	return lx >= 0 && lz >= 0 && lx <= ex && lz <= ez
}

// HeightAt bilinearly interpolates the world height at world (x, z).
// ok is false outside the field.
func (h *Heightfield) HeightAt(x, z float64) (y float64, ok bool) {
	if h.Size < 2 || !h.Contains(x, z) {
		return 0, false
	}
	sx := h.Transform.Scale.X
	sz := h.Transform.Scale.Z
	if sx == 0 || sz == 0 {
		return 0, false
	}
	fx := (x - h.Transform.Translation.X) / sx
	fz := (z - h.Transform.Translation.Z) / sz
	last := h.Size - 1
	x0 := min(int(math.Floor(fx)), last-1)
	z0 := min(int(math.Floor(fz)), last-1)
	tx := fx - float64(x0)
	tz := fz - float64(z0)

	at := func(i, j int) float64 { return float64(h.Heights[j*h.Size+i]) }
	top := at(x0, z0)*(1-tx) + at(x0+1, z0)*tx
	bottom := at(x0, z0+1)*(1-tx) + at(x0+1, z0+1)*tx
	v := top*(1-tz) + bottom*tz
	return h.Transform.Translation.Y + v*h.Transform.Scale.Y, true
}
