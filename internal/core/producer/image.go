package producer

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"

	pkgerrors "github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/tile"
)

// PathResolver maps a tile coordinate to the heightmap image that backs it.
type PathResolver interface {
	HeightMapPath(x, z int) string
}

// PathResolverFunc adapts a function to PathResolver.
type PathResolverFunc func(x, z int) string

func (f PathResolverFunc) HeightMapPath(x, z int) string { return f(x, z) }

// PathPattern is a fmt pattern taking x then z, e.g. "tiles/hmap_%d_%d.png".
type PathPattern string

func (p PathPattern) HeightMapPath(x, z int) string {
	return fmt.Sprintf(string(p), x, z)
}

// Image reads one heightmap image per tile from fsys. Images whose size
// differs from the block size are resampled bilinearly. Heights are the
// normalized luminance of each pixel.
type Image struct {
	fsys     fs.FS
	resolver PathResolver
	builder  *tile.Builder
}

func NewImage(b *tile.Builder, fsys fs.FS, resolver PathResolver) *Image {
	return &Image{fsys: fsys, resolver: resolver, builder: b}
}

func (p *Image) Produce(ctx context.Context, c grid.TileCoord) (*tile.Tile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := p.resolver.HeightMapPath(c.X, c.Z)
	f, err := p.fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrResourceMissing, path)
		}
		return nil, pkgerrors.Wrapf(err, "open heightmap %s", path)
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProducerFailure, pkgerrors.Wrapf(err, "decode heightmap %s", path))
	}

	size := p.builder.Config().BlockSize
	heights := Luminance(img, size)
	t, err := p.builder.Build(c, heights)
	if err != nil {
		return nil, err
	}
	t.SetAttachment("source", path)
	t.SetAttachment("format", format)
	return t, nil
}

// Luminance converts img to size*size heights in [0,1].
func Luminance(img image.Image, size int) []float32 {
	gray := image.NewGray16(image.Rect(0, 0, size, size))
	if img.Bounds().Dx() == size && img.Bounds().Dy() == size {
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	heights := make([]float32, size*size)
	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			heights[z*size+x] = float32(gray.Gray16At(x, z).Y) / 0xFFFF
		}
	}
	return heights
}
