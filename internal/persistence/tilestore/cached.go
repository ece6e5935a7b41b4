package tilestore

import (
	"context"
	"time"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/producer"
	"github.com/zeusync/tilestream/internal/core/tile"
	"github.com/zeusync/tilestream/pkg/concurrent"
)

var _ producer.Producer = (*Cached)(nil)

// Cached is a read-through producer: stored tiles are returned directly,
// anything else comes from the wrapped source and is saved on the way out.
// Flat fallbacks are never stored so a missing asset can appear later.
type Cached struct {
	store   *Store
	source  producer.Producer
	builder *tile.Builder
	logger  log.Log
}

func NewCached(store *Store, source producer.Producer, b *tile.Builder, logger log.Log) *Cached {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Cached{
		store:   store,
		source:  source,
		builder: b,
		logger:  logger.With(log.String("component", "tilestore")),
	}
}

func (c *Cached) Produce(ctx context.Context, coord grid.TileCoord) (*tile.Tile, error) {
	t, ok, err := c.store.Load(ctx, c.builder, coord)
	if err != nil && ctx.Err() == nil {
		c.logger.Warn("Tile store read failed", log.Stringer("coord", coord), log.Error(err))
	}
	if ok {
		return t, nil
	}

	t, err = c.source.Produce(ctx, coord)
	if err != nil || t == nil || t.Empty {
		return t, err
	}
	if ctx.Err() != nil {
		return t, nil
	}
	if err = c.store.Save(ctx, t); err != nil {
		c.logger.Warn("Tile store write failed", log.Stringer("coord", coord), log.Error(err))
	}
	return t, nil
}

// Prewarm generates and stores every tile of w that is not stored yet,
// using up to workers goroutines. Source failures are logged and skipped;
// only cancellation aborts. It returns the number of tiles written.
func (c *Cached) Prewarm(ctx context.Context, w grid.Window, workers int) (int, error) {
	started := time.Now()
	size := c.builder.Config().BlockSize
	written, err := concurrent.Map(ctx, w.Coords(), workers, func(ctx context.Context, coord grid.TileCoord) (bool, error) {
		if ok, err := c.store.Has(ctx, coord, size); err != nil || ok {
			return false, err
		}
		t, err := c.source.Produce(ctx, coord)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			c.logger.Warn("Prewarm skipped tile", log.Stringer("coord", coord), log.Error(err))
			return false, nil
		}
		if t == nil || t.Empty {
			return false, nil
		}
		return true, c.store.Save(ctx, t)
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, ok := range written {
		if ok {
			n++
		}
	}
	c.logger.Info("Tile store prewarmed",
		log.Stringer("window", w),
		log.Int("written", n),
		log.Duration("took", time.Since(started)))
	return n, nil
}
