package producer

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/tile"
	"github.com/zeusync/tilestream/pkg/generic"
)

// NoiseConfig tunes the fractal sum. Each octave multiplies frequency by
// Lacunarity and amplitude by Roughness.
type NoiseConfig struct {
	Seed       uint64  `yaml:"seed" json:"seed"`
	Octaves    int     `yaml:"octaves" json:"octaves"`
	Frequency  float64 `yaml:"frequency" json:"frequency"`
	Amplitude  float64 `yaml:"amplitude" json:"amplitude"`
	Lacunarity float64 `yaml:"lacunarity" json:"lacunarity"`
	Roughness  float64 `yaml:"roughness" json:"roughness"`
	Scale      float64 `yaml:"scale" json:"scale"`
	// SmoothRadius and SmoothEffect blend each sample with the box average
	// of its neighbourhood. Radius 0 disables smoothing.
	SmoothRadius int     `yaml:"smooth_radius" json:"smooth_radius"`
	SmoothEffect float64 `yaml:"smooth_effect" json:"smooth_effect"`
}

func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		Seed:         1,
		Octaves:      8,
		Frequency:    1,
		Amplitude:    1,
		Lacunarity:   3.12,
		Roughness:    0.7,
		Scale:        0.02125,
		SmoothRadius: 1,
		SmoothEffect: 0.7,
	}
}

func (c NoiseConfig) Validate() error {
	switch {
	case c.Octaves <= 0:
		return fmt.Errorf("%w: octaves %d", ErrInvalidNoise, c.Octaves)
	case c.Scale <= 0 || c.Frequency <= 0:
		return fmt.Errorf("%w: scale %v frequency %v", ErrInvalidNoise, c.Scale, c.Frequency)
	case c.SmoothRadius < 0 || c.SmoothEffect < 0 || c.SmoothEffect > 1:
		return fmt.Errorf("%w: smoothing radius %d effect %v", ErrInvalidNoise, c.SmoothRadius, c.SmoothEffect)
	}
	return nil
}

// Noise generates terrain from fractal value noise sampled in world sample
// space, so shared tile edges always match.
type Noise struct {
	cfg     NoiseConfig
	builder *tile.Builder
	scratch *generic.Pool[[]float64]
}

func NewNoise(b *tile.Builder, cfg NoiseConfig) (*Noise, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := b.Config().BlockSize + 2*cfg.SmoothRadius
	return &Noise{
		cfg:     cfg,
		builder: b,
		scratch: generic.NewSlicePool[float64](w * w),
	}, nil
}

func (n *Noise) Produce(ctx context.Context, c grid.TileCoord) (*tile.Tile, error) {
	size := n.builder.Config().BlockSize
	r := n.cfg.SmoothRadius
	w := size + 2*r
	ox := c.X*(size-1) - r
	oz := c.Z*(size-1) - r

	buf := generic.Grow(n.scratch.Get(), w*w)
	defer n.scratch.Put(buf)

	for j := 0; j < w; j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < w; i++ {
			buf[j*w+i] = n.Sample(float64(ox+i), float64(oz+j))
		}
	}

	heights := make([]float32, size*size)
	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			v := buf[(z+r)*w+x+r]
			if r > 0 && n.cfg.SmoothEffect > 0 {
				v = v*(1-n.cfg.SmoothEffect) + boxAverage(buf, w, x+r, z+r, r)*n.cfg.SmoothEffect
			}
			heights[z*size+x] = float32(v)
		}
	}
	return n.builder.Build(c, heights)
}

// Sample returns the modulated fractal value at world sample (x, z), in [0,1].
func (n *Noise) Sample(x, z float64) float64 {
	total := 0.0
	f := n.cfg.Frequency
	a := n.cfg.Amplitude
	for o := 0; o < n.cfg.Octaves; o++ {
		s := n.cfg.Scale * f
		total += n.value(uint64(o), x*s, z*s) * a
		f *= n.cfg.Lacunarity
		a *= n.cfg.Roughness
	}
	total = clamp(total, -1, 1)
	return clamp(total*0.5+0.5, 0, 1)
}

func (n *Noise) value(octave uint64, x, z float64) float64 {
	fx, fz := math.Floor(x), math.Floor(z)
	ix, iz := int64(fx), int64(fz)
	tx, tz := fade(x-fx), fade(z-fz)

	v00 := n.lattice(octave, ix, iz)
	v10 := n.lattice(octave, ix+1, iz)
	v01 := n.lattice(octave, ix, iz+1)
	v11 := n.lattice(octave, ix+1, iz+1)
	top := v00 + (v10-v00)*tx
	bottom := v01 + (v11-v01)*tx
	return top + (bottom-top)*tz
}

// lattice hashes a grid point to [-1,1].
func (n *Noise) lattice(octave uint64, ix, iz int64) float64 {
	var b [24]byte
	binary.LittleEndian.PutUint64(b[0:], n.cfg.Seed+octave*0x9E3779B97F4A7C15)
	binary.LittleEndian.PutUint64(b[8:], uint64(ix))
	binary.LittleEndian.PutUint64(b[16:], uint64(iz))
	h := xxhash.Sum64(b[:])
	return float64(h>>11)/(1<<53)*2 - 1
}

func boxAverage(buf []float64, w, cx, cz, r int) float64 {
	sum := 0.0
	for j := cz - r; j <= cz+r; j++ {
		for i := cx - r; i <= cx+r; i++ {
			sum += buf[j*w+i]
		}
	}
	side := 2*r + 1
	return sum / float64(side*side)
}

func fade(t float64) float64 { return t * t * (3 - 2*t) }

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }
