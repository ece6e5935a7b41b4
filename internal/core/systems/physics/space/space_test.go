package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
	"github.com/zeusync/tilestream/internal/core/tile"
)

func rampTile(t *testing.T, b *tile.Builder, c grid.TileCoord) *tile.Tile {
	t.Helper()
	size := b.Config().BlockSize
	heights := make([]float32, b.Samples())
	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			heights[z*size+x] = float32(z) / float32(size-1)
		}
	}
	tl, err := b.Build(c, heights)
	require.NoError(t, err)
	return tl
}

func TestSpaceAttachDetachAndQuery(t *testing.T) {
	b, err := tile.NewBuilder(tile.BuilderConfig{BlockSize: 17, HorizontalScale: 2, VerticalScale: 8})
	require.NoError(t, err)
	s := New(b.Quantizer(), log.NewNop())

	a := rampTile(t, b, grid.TileCoord{})
	n := rampTile(t, b, grid.TileCoord{X: -1, Z: 1})
	s.Attach(a)
	s.Attach(n)
	s.Attach(nil)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []grid.TileCoord{{X: -1, Z: 1}, {X: 0, Z: 0}}, s.Coords())

	// tile (0,0) spans world [0,32) with a ramp along z up to 8
	y, ok := s.HeightAt(10, 16)
	require.True(t, ok)
	assert.InDelta(t, 4, y, 1e-6)

	y, ok = s.HeightAt(-5, 32)
	require.True(t, ok)
	assert.InDelta(t, 0, y, 1e-6)

	_, ok = s.HeightAt(100, 100)
	assert.False(t, ok)

	p := s.Ground(physics.Vec3{X: 10, Y: 0, Z: 16}, 1.5)
	assert.InDelta(t, 5.5, p.Y, 1e-6)
	p = s.Ground(physics.Vec3{X: 10, Y: 50, Z: 16}, 1.5)
	assert.Equal(t, 50.0, p.Y)

	s.Detach(a)
	s.Detach(a)
	assert.False(t, s.Has(grid.TileCoord{}))
	_, ok = s.HeightAt(10, 16)
	assert.False(t, ok)

	attached, detached := s.Counters()
	assert.EqualValues(t, 2, attached)
	assert.EqualValues(t, 1, detached)
}
