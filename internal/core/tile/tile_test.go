package tile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
)

func newTestBuilder(t *testing.T, hs float64) *Builder {
	t.Helper()
	b, err := NewBuilder(BuilderConfig{BlockSize: 17, PatchSize: 9, HorizontalScale: hs, VerticalScale: 10})
	require.NoError(t, err)
	return b
}

func TestNewBuilderValidation(t *testing.T) {
	_, err := NewBuilder(BuilderConfig{BlockSize: 100})
	require.ErrorIs(t, err, grid.ErrInvalidConfiguration)

	_, err = NewBuilder(BuilderConfig{BlockSize: 65, PatchSize: 12})
	require.ErrorIs(t, err, grid.ErrInvalidConfiguration)
	require.ErrorIs(t, err, ErrInvalidPatch)

	_, err = NewBuilder(BuilderConfig{BlockSize: 65, PatchSize: 129})
	require.ErrorIs(t, err, ErrInvalidPatch)

	b, err := NewBuilder(BuilderConfig{BlockSize: 129})
	require.NoError(t, err)
	assert.Equal(t, 129, b.Config().PatchSize)
	assert.Equal(t, 1.0, b.Config().HorizontalScale)
	assert.Equal(t, 1, b.PatchesPerSide())

	b, err = NewBuilder(DefaultBuilderConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, b.PatchesPerSide())
}

func TestBuildPlacesTile(t *testing.T) {
	b := newTestBuilder(t, 2)
	c := grid.TileCoord{X: -1, Z: 3}

	_, err := b.Build(c, make([]float32, 10))
	require.ErrorIs(t, err, ErrHeightsSize)

	tl, err := b.Build(c, make([]float32, b.Samples()))
	require.NoError(t, err)
	assert.Equal(t, physics.Vec3{X: -32, Z: 96}, tl.Transform.Translation)
	assert.Equal(t, physics.Vec3{X: 2, Y: 10, Z: 2}, tl.Transform.Scale)
	assert.Equal(t, c, b.CoordOf(tl))
	assert.False(t, tl.Empty)
	require.NotNil(t, tl.Collision)
}

func TestCoordOfFractionalScale(t *testing.T) {
	for _, hs := range []float64{0.1, 0.3, 0.7, 1.3, 2.5} {
		b := newTestBuilder(t, hs)
		for x := -40; x <= 40; x++ {
			c := grid.TileCoord{X: x, Z: -x / 2}
			tl := b.Flat(c)
			require.Equal(t, c, b.CoordOf(tl), "scale %v", hs)
		}
	}
}

func TestFlatTile(t *testing.T) {
	b := newTestBuilder(t, 1)
	tl := b.Flat(grid.TileCoord{X: 2})
	assert.True(t, tl.Empty)
	assert.Len(t, tl.Heights, 17*17)
	lo, hi := tl.Bounds()
	assert.Zero(t, lo)
	assert.Zero(t, hi)

	y, ok := tl.Collision.HeightAt(40, 8)
	require.True(t, ok)
	assert.Zero(t, y)
}

func TestHeightfieldInterpolates(t *testing.T) {
	b := newTestBuilder(t, 2)
	heights := make([]float32, b.Samples())
	// ramp along x: column i has height i/16
	for z := 0; z < 17; z++ {
		for x := 0; x < 17; x++ {
			heights[z*17+x] = float32(x) / 16
		}
	}
	tl, err := b.Build(grid.TileCoord{}, heights)
	require.NoError(t, err)

	ex, ez := tl.Collision.Extent()
	assert.Equal(t, 32.0, ex)
	assert.Equal(t, 32.0, ez)

	y, ok := tl.Collision.HeightAt(16, 5)
	require.True(t, ok)
	assert.InDelta(t, 5.0, y, 1e-6)

	y, ok = tl.Collision.HeightAt(32, 32)
	require.True(t, ok)
	assert.InDelta(t, 10.0, y, 1e-6)

	_, ok = tl.Collision.HeightAt(-0.1, 3)
	assert.False(t, ok)
	assert.InDelta(t, 10.0, tl.Collision.MaxY, 1e-6)
	assert.Equal(t, float32(0.5), tl.Height(8, 0))
	assert.Zero(t, tl.Height(17, 0))
}

func TestDigest(t *testing.T) {
	b := newTestBuilder(t, 1)
	a := b.Flat(grid.TileCoord{X: 1})
	same := b.Flat(grid.TileCoord{X: 1})
	other := b.Flat(grid.TileCoord{Z: 1})
	assert.Equal(t, a.Digest(), same.Digest())
	assert.NotEqual(t, a.Digest(), other.Digest())

	same.Heights[5] = 0.25
	assert.NotEqual(t, a.Digest(), same.Digest())
}

func TestAttachments(t *testing.T) {
	b := newTestBuilder(t, 1)
	tl := b.Flat(grid.TileCoord{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tl.SetAttachment(string(rune('a'+i)), i)
		}(i)
	}
	wg.Wait()

	v, ok := tl.Attachment("c")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Len(t, tl.AttachmentKeys(), 4)
	_, ok = tl.Attachment("missing")
	assert.False(t, ok)
}
