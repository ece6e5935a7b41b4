package producer

import (
	"context"
	"fmt"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/tile"
)

// Producer creates the tile for a coordinate. Implementations must be safe
// to call from many goroutines.
type Producer interface {
	Produce(ctx context.Context, c grid.TileCoord) (*tile.Tile, error)
}

// Func adapts a function to Producer.
type Func func(ctx context.Context, c grid.TileCoord) (*tile.Tile, error)

func (f Func) Produce(ctx context.Context, c grid.TileCoord) (*tile.Tile, error) {
	return f(ctx, c)
}

// Flat produces zero-height tiles everywhere.
type Flat struct {
	builder *tile.Builder
}

func NewFlat(b *tile.Builder) *Flat {
	return &Flat{builder: b}
}

func (f *Flat) Produce(_ context.Context, c grid.TileCoord) (*tile.Tile, error) {
	return f.builder.Flat(c), nil
}

// Resolve runs p and never fails to return a tile: errors, panics and nil
// results are replaced by the builder's flat tile. The returned error
// describes what went wrong so the caller can log it.
func Resolve(ctx context.Context, p Producer, b *tile.Builder, c grid.TileCoord) (t *tile.Tile, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = b.Flat(c)
			err = fmt.Errorf("%w: panic producing %s: %v", ErrProducerFailure, c, r)
		}
	}()

	t, err = p.Produce(ctx, c)
	if err != nil {
		return b.Flat(c), err
	}
	if t == nil {
		return b.Flat(c), fmt.Errorf("%w: nil tile for %s", ErrProducerFailure, c)
	}
	return t, nil
}
