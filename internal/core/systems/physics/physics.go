package physics

import "math"

// World-space vectors and transforms shared by the grid, tiles and the
// physics space. Y is up; tiles are laid out on the XZ plane.

type Vec3 struct{ X, Y, Z float64 }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Mul scales component-wise.
func (v Vec3) Mul(o Vec3) Vec3 { return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

// Div divides component-wise; zero divisors leave the component untouched.
func (v Vec3) Div(o Vec3) Vec3 {
	out := v
	if o.X != 0 {
		out.X /= o.X
	}
	if o.Y != 0 {
		out.Y /= o.Y
	}
	if o.Z != 0 {
		out.Z /= o.Z
	}
	return out
}

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Transform places a tile in the world: Translation is the world position of
// its (0,0) sample, Scale stretches samples horizontally (X, Z) and heights (Y).
type Transform struct {
	Translation Vec3
	Scale       Vec3
}

// Identity has unit scale and no translation.
func Identity() Transform {
	return Transform{Scale: Vec3{1, 1, 1}}
}

// Distance2 computes the planar (XZ) distance between two points.
func Distance2(a, b Vec3) float64 { return math.Hypot(b.X-a.X, b.Z-a.Z) }
