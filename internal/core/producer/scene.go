package producer

import (
	"context"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
	"github.com/zeusync/tilestream/internal/core/tile"
)

// SceneTile is one pre-authored tile. It is addressed either by grid
// coordinate or by the world position of its origin corner. Heights holds
// block-size squared samples; when it is empty every sample is Fill.
type SceneTile struct {
	Coord    *grid.TileCoord `yaml:"coord,omitempty"`
	Position *[2]float64     `yaml:"position,omitempty"`
	Heights  []float32       `yaml:"heights,omitempty"`
	Fill     float32         `yaml:"fill,omitempty"`
}

// SceneDocument is the YAML layout read by LoadSceneYAML.
type SceneDocument struct {
	Name  string      `yaml:"name"`
	Tiles []SceneTile `yaml:"tiles"`
}

// Scene serves pre-authored tiles from an index built once at construction.
// Coordinates without an entry get a flat tile.
type Scene struct {
	name    string
	builder *tile.Builder
	index   map[grid.TileCoord][]float32
}

func NewScene(b *tile.Builder, doc SceneDocument) (*Scene, error) {
	q := b.Quantizer()
	hs := b.Config().HorizontalScale
	s := &Scene{name: doc.Name, builder: b, index: make(map[grid.TileCoord][]float32, len(doc.Tiles))}

	for i, st := range doc.Tiles {
		var c grid.TileCoord
		switch {
		case st.Coord != nil:
			c = *st.Coord
		case st.Position != nil:
			c = q.ToTile(physics.Vec3{X: st.Position[0] / hs, Z: st.Position[1] / hs})
		default:
			return nil, fmt.Errorf("%w: tile %d has neither coord nor position", ErrInvalidScene, i)
		}
		if _, dup := s.index[c]; dup {
			return nil, fmt.Errorf("%w: duplicate tile at %s", ErrInvalidScene, c)
		}

		heights := st.Heights
		switch {
		case len(heights) == 0:
			heights = make([]float32, b.Samples())
			for j := range heights {
				heights[j] = st.Fill
			}
		case len(heights) != b.Samples():
			return nil, fmt.Errorf("%w: tile %s has %d samples, want %d", ErrInvalidScene, c, len(heights), b.Samples())
		}
		s.index[c] = heights
	}
	return s, nil
}

// LoadSceneYAML decodes a SceneDocument from r and indexes it.
func LoadSceneYAML(b *tile.Builder, r io.Reader) (*Scene, error) {
	var doc SceneDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, pkgerrors.Wrap(err, "decode scene")
	}
	return NewScene(b, doc)
}

func LoadSceneFile(b *tile.Builder, path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open scene %s", path)
	}
	defer func() { _ = f.Close() }()
	return LoadSceneYAML(b, f)
}

func (s *Scene) Name() string { return s.name }

func (s *Scene) Len() int { return len(s.index) }

func (s *Scene) Has(c grid.TileCoord) bool {
	_, ok := s.index[c]
	return ok
}

func (s *Scene) Produce(_ context.Context, c grid.TileCoord) (*tile.Tile, error) {
	src, ok := s.index[c]
	if !ok {
		return s.builder.Flat(c), nil
	}
	heights := make([]float32, len(src))
	copy(heights, src)
	return s.builder.Build(c, heights)
}
