package stream

import (
	"context"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/tile"
)

// ring holds the speculative border around the last satisfied window. It
// is owned by the engine's owner goroutine; builds write to it only through
// the mailbox.
type ring struct {
	tiles map[grid.TileCoord]*tile.Tile
	// generation identifies the build whose writes are accepted.
	generation uint64
	cancel     context.CancelFunc
}

func newRing() *ring {
	return &ring{tiles: make(map[grid.TileCoord]*tile.Tile)}
}

// interrupt cancels the running build and rejects its pending writes.
func (r *ring) interrupt() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.generation++
}

func (r *ring) take(c grid.TileCoord) (*tile.Tile, bool) {
	t, ok := r.tiles[c]
	if ok {
		delete(r.tiles, c)
	}
	return t, ok
}

func (r *ring) get(c grid.TileCoord) (*tile.Tile, bool) {
	t, ok := r.tiles[c]
	return t, ok
}

// rebuildRing clears the ring and regenerates the border of the current
// window on the pool. Strips are produced in order (top, bottom, left,
// right) and each is handed back through the mailbox once complete.
func (e *Engine) rebuildRing() {
	e.ring.interrupt()
	clear(e.ring.tiles)

	ctx, cancel := context.WithCancel(context.Background())
	e.ring.cancel = cancel
	gen := e.ring.generation
	window := e.window
	center := e.center
	strips := window.RingStrips()

	err := e.pool.Submit(func(poolCtx context.Context) {
		stop := context.AfterFunc(poolCtx, cancel)
		defer stop()

		for i, strip := range strips {
			if ctx.Err() != nil {
				e.ringInterrupted(center, window, i)
				return
			}
			done := make([]completion, 0, len(strip))
			for _, c := range strip {
				done = append(done, completion{coord: c, tile: e.generate(ctx, c)})
			}
			if ctx.Err() != nil {
				e.ringInterrupted(center, window, i)
				return
			}
			e.mailbox.post(func() { e.writeRing(gen, done) })
		}
		e.logger.Debug("Ring rebuilt", log.Stringer("center", center), log.Int("tiles", window.RingCount()))
		e.publish(EventRingRebuilt, WorldEvent{Center: center, Window: window, Ring: window.RingCount()})
	})
	if err != nil {
		cancel()
		return
	}
	e.stats.ringRebuilds.Add(1)
}

func (e *Engine) ringInterrupted(center grid.TileCoord, window grid.Window, strip int) {
	e.stats.ringInterrupts.Add(1)
	e.logger.Debug("Ring rebuild interrupted", log.Stringer("center", center), log.Int("strip", strip))
	e.publish(EventRingInterrupted, WorldEvent{Center: center, Window: window})
}

// writeRing runs on the owner goroutine.
func (e *Engine) writeRing(gen uint64, done []completion) {
	if gen != e.ring.generation {
		return
	}
	for _, c := range done {
		if _, ok := e.active[c.coord]; ok {
			continue
		}
		if e.pending.has(c.coord) {
			continue
		}
		e.ring.tiles[c.coord] = c.tile
	}
}
