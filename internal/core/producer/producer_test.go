package producer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/tile"
)

func testBuilder(t *testing.T) *tile.Builder {
	t.Helper()
	b, err := tile.NewBuilder(tile.BuilderConfig{BlockSize: 17, PatchSize: 17, HorizontalScale: 1, VerticalScale: 50})
	require.NoError(t, err)
	return b
}

func encodePNG(t *testing.T, w, h int, at func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: at(x, y)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResolveFallsBackToFlat(t *testing.T) {
	b := testBuilder(t)
	c := grid.TileCoord{X: 4, Z: -2}
	boom := errors.New("boom")

	tl, err := Resolve(context.Background(), Func(func(context.Context, grid.TileCoord) (*tile.Tile, error) {
		return nil, boom
	}), b, c)
	require.ErrorIs(t, err, boom)
	assert.True(t, tl.Empty)
	assert.Equal(t, c, tl.Coord)

	tl, err = Resolve(context.Background(), Func(func(context.Context, grid.TileCoord) (*tile.Tile, error) {
		return nil, nil
	}), b, c)
	require.ErrorIs(t, err, ErrProducerFailure)
	assert.True(t, tl.Empty)

	tl, err = Resolve(context.Background(), Func(func(context.Context, grid.TileCoord) (*tile.Tile, error) {
		panic("kaboom")
	}), b, c)
	require.ErrorIs(t, err, ErrProducerFailure)
	assert.Contains(t, err.Error(), "kaboom")
	require.NotNil(t, tl)
	assert.True(t, tl.Empty)

	tl, err = Resolve(context.Background(), NewFlat(b), b, c)
	require.NoError(t, err)
	assert.Equal(t, c, tl.Coord)
}

func TestNoiseIsSeamlessAndDeterministic(t *testing.T) {
	b := testBuilder(t)
	n, err := NewNoise(b, DefaultNoiseConfig())
	require.NoError(t, err)
	ctx := context.Background()

	left, err := n.Produce(ctx, grid.TileCoord{X: 0, Z: 0})
	require.NoError(t, err)
	right, err := n.Produce(ctx, grid.TileCoord{X: 1, Z: 0})
	require.NoError(t, err)
	below, err := n.Produce(ctx, grid.TileCoord{X: 0, Z: 1})
	require.NoError(t, err)

	for i := 0; i < 17; i++ {
		assert.Equal(t, left.Height(16, i), right.Height(0, i), "row %d", i)
		assert.Equal(t, left.Height(i, 16), below.Height(i, 0), "column %d", i)
	}

	again, err := n.Produce(ctx, grid.TileCoord{})
	require.NoError(t, err)
	assert.Equal(t, left.Digest(), again.Digest())

	lo, hi := left.Bounds()
	assert.GreaterOrEqual(t, lo, float32(0))
	assert.LessOrEqual(t, hi, float32(1))
	assert.Less(t, lo, hi)

	other := DefaultNoiseConfig()
	other.Seed = 99
	n2, err := NewNoise(b, other)
	require.NoError(t, err)
	diff, err := n2.Produce(ctx, grid.TileCoord{})
	require.NoError(t, err)
	assert.NotEqual(t, left.Digest(), diff.Digest())
}

func TestNoiseHonoursContext(t *testing.T) {
	n, err := NewNoise(testBuilder(t), DefaultNoiseConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = n.Produce(ctx, grid.TileCoord{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNoiseConfigValidate(t *testing.T) {
	cfg := DefaultNoiseConfig()
	cfg.Octaves = 0
	_, err := NewNoise(testBuilder(t), cfg)
	require.ErrorIs(t, err, ErrInvalidNoise)

	cfg = DefaultNoiseConfig()
	cfg.SmoothEffect = 2
	require.ErrorIs(t, cfg.Validate(), ErrInvalidNoise)
}

func TestImageProducer(t *testing.T) {
	b := testBuilder(t)
	fsys := fstest.MapFS{
		"maps/hmap_0_0.png": {Data: encodePNG(t, 17, 17, func(x, _ int) uint8 { return uint8(x * 15) })},
		"maps/hmap_1_0.png": {Data: encodePNG(t, 8, 8, func(int, int) uint8 { return 255 })},
		"maps/hmap_2_0.png": {Data: []byte("not an image")},
	}
	p := NewImage(b, fsys, PathPattern("maps/hmap_%d_%d.png"))
	ctx := context.Background()

	tl, err := p.Produce(ctx, grid.TileCoord{})
	require.NoError(t, err)
	assert.InDelta(t, 0, tl.Height(0, 3), 1e-6)
	assert.InDelta(t, 240.0/255.0, tl.Height(16, 3), 1e-4)
	src, ok := tl.Attachment("source")
	require.True(t, ok)
	assert.Equal(t, "maps/hmap_0_0.png", src)
	format, _ := tl.Attachment("format")
	assert.Equal(t, "png", format)

	tl, err = p.Produce(ctx, grid.TileCoord{X: 1})
	require.NoError(t, err)
	require.Len(t, tl.Heights, 17*17)
	assert.InDelta(t, 1, tl.Height(8, 8), 1e-4)

	_, err = p.Produce(ctx, grid.TileCoord{X: 2})
	require.ErrorIs(t, err, ErrProducerFailure)

	_, err = p.Produce(ctx, grid.TileCoord{X: 5})
	require.ErrorIs(t, err, ErrResourceMissing)
	tl, err = Resolve(ctx, p, b, grid.TileCoord{X: 5})
	require.ErrorIs(t, err, ErrResourceMissing)
	assert.True(t, tl.Empty)
}

func TestPathResolvers(t *testing.T) {
	assert.Equal(t, "t/-1/2.png", PathPattern("t/%d/%d.png").HeightMapPath(-1, 2))
	r := PathResolverFunc(func(x, z int) string { return "custom" })
	assert.Equal(t, "custom", r.HeightMapPath(0, 0))
}

const sceneYAML = `
name: valley
tiles:
  - coord: {x: 0, z: 0}
    fill: 0.25
  - position: [32, -16]
    fill: 1
`

func TestSceneProducer(t *testing.T) {
	b := testBuilder(t)
	s, err := LoadSceneYAML(b, strings.NewReader(sceneYAML))
	require.NoError(t, err)
	assert.Equal(t, "valley", s.Name())
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(grid.TileCoord{X: 2, Z: -1}))

	ctx := context.Background()
	tl, err := s.Produce(ctx, grid.TileCoord{})
	require.NoError(t, err)
	assert.False(t, tl.Empty)
	assert.Equal(t, float32(0.25), tl.Height(3, 3))

	// produced tiles do not share the index's backing array
	tl.Heights[0] = 9
	again, _ := s.Produce(ctx, grid.TileCoord{})
	assert.Equal(t, float32(0.25), again.Heights[0])

	tl, err = s.Produce(ctx, grid.TileCoord{X: 7, Z: 7})
	require.NoError(t, err)
	assert.True(t, tl.Empty)
}

func TestSceneValidation(t *testing.T) {
	b := testBuilder(t)
	c := grid.TileCoord{}

	_, err := NewScene(b, SceneDocument{Tiles: []SceneTile{{}}})
	require.ErrorIs(t, err, ErrInvalidScene)

	_, err = NewScene(b, SceneDocument{Tiles: []SceneTile{{Coord: &c}, {Coord: &c}}})
	require.ErrorIs(t, err, ErrInvalidScene)

	_, err = NewScene(b, SceneDocument{Tiles: []SceneTile{{Coord: &c, Heights: []float32{1, 2}}}})
	require.ErrorIs(t, err, ErrInvalidScene)

	_, err = LoadSceneYAML(b, strings.NewReader("tiles: [oops"))
	require.Error(t, err)

	_, err = LoadSceneFile(b, "does/not/exist.yaml")
	require.Error(t, err)
}
