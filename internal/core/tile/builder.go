package tile

import (
	"fmt"
	"math"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
)

// BuilderConfig describes tile geometry shared by every producer of a world.
type BuilderConfig struct {
	BlockSize int
	PatchSize int
	// HorizontalScale stretches samples along X and Z.
	HorizontalScale float64
	// VerticalScale is the world height of a sample valued 1.
	VerticalScale float64
}

func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		BlockSize:       65,
		PatchSize:       33,
		HorizontalScale: 1,
		VerticalScale:   256,
	}
}

// Builder turns height samples into placed tiles.
type Builder struct {
	cfg BuilderConfig
	q   grid.Quantizer
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.HorizontalScale <= 0 {
		cfg.HorizontalScale = 1
	}
	if cfg.VerticalScale <= 0 {
		cfg.VerticalScale = 1
	}
	q, err := grid.NewQuantizer(cfg.BlockSize, cfg.HorizontalScale)
	if err != nil {
		return nil, err
	}
	if cfg.PatchSize == 0 {
		cfg.PatchSize = cfg.BlockSize
	}
	if err = validatePatch(cfg.PatchSize, cfg.BlockSize); err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, q: q}, nil
}

func validatePatch(patch, block int) error {
	span := patch - 1
	if patch < 3 || patch > block || span&(span-1) != 0 {
		return fmt.Errorf("%w: %w: %d with block size %d", grid.ErrInvalidConfiguration, ErrInvalidPatch, patch, block)
	}
	return nil
}

func (b *Builder) Config() BuilderConfig { return b.cfg }

func (b *Builder) Quantizer() grid.Quantizer { return b.q }

// Samples is the number of heights a tile must carry.
func (b *Builder) Samples() int { return b.cfg.BlockSize * b.cfg.BlockSize }

// PatchesPerSide is the number of render patches along one tile edge.
func (b *Builder) PatchesPerSide() int {
	return (b.cfg.BlockSize - 1) / (b.cfg.PatchSize - 1)
}

// TransformFor places the tile at c in world space.
func (b *Builder) TransformFor(c grid.TileCoord) physics.Transform {
	hs := b.cfg.HorizontalScale
	return physics.Transform{
		Translation: b.q.FromTile(c).Scale(hs),
		Scale:       physics.Vec3{X: hs, Y: b.cfg.VerticalScale, Z: hs},
	}
}

// CoordOf recovers a tile's grid coordinate from its world translation.
// Unscaled translations are rounded to whole samples first so fractional
// scales do not floor a tile origin into its western or northern neighbour.
func (b *Builder) CoordOf(t *Tile) grid.TileCoord {
	hs := b.cfg.HorizontalScale
	tr := t.Transform.Translation
	shift := b.q.Shift()
	return grid.TileCoord{
		X: int(math.Round(tr.X/hs)) >> shift,
		Z: int(math.Round(tr.Z/hs)) >> shift,
	}
}

// Build takes ownership of heights and returns the placed tile with its
// collision field.
func (b *Builder) Build(c grid.TileCoord, heights []float32) (*Tile, error) {
	if len(heights) != b.Samples() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrHeightsSize, len(heights), b.Samples())
	}
	tr := b.TransformFor(c)
	return &Tile{
		Coord:     c,
		Size:      b.cfg.BlockSize,
		PatchSize: b.cfg.PatchSize,
		Heights:   heights,
		Transform: tr,
		Collision: newHeightfield(b.cfg.BlockSize, heights, tr),
	}, nil
}

// Flat returns the zero-height tile used whenever a source fails.
func (b *Builder) Flat(c grid.TileCoord) *Tile {
	t, _ := b.Build(c, make([]float32, b.Samples()))
	t.Empty = true
	return t
}
