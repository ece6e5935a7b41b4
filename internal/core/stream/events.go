package stream

import (
	"github.com/zeusync/tilestream/internal/core/events/bus"
	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/tile"
)

// Event types published on the bus passed with WithEventBus.
const (
	EventTileRequested   = "tile.requested"
	EventTileAttached    = "tile.attached"
	EventTileDetached    = "tile.detached"
	EventTileCacheHit    = "tile.cache_hit"
	EventTileVetoed      = "tile.vetoed"
	EventWorldLoaded     = "world.loaded"
	EventRingRebuilt     = "ring.rebuilt"
	EventRingInterrupted = "ring.interrupted"
	EventProducerFailed  = "producer.failed"
)

const eventSource = "stream"

// TileEvent is the payload of tile.* and producer.failed events.
type TileEvent struct {
	Coord  grid.TileCoord `json:"coord"`
	Digest uint64         `json:"digest,omitempty"`
	Empty  bool           `json:"empty,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// WorldEvent is the payload of world.* and ring.* events.
type WorldEvent struct {
	Center grid.TileCoord `json:"center"`
	Window grid.Window    `json:"window"`
	Active int            `json:"active"`
	Ring   int            `json:"ring,omitempty"`
}

// publishTile hashes t only when someone is listening.
func (e *Engine) publishTile(typ string, c grid.TileCoord, t *tile.Tile) {
	if e.bus == nil {
		return
	}
	ev := TileEvent{Coord: c}
	if t != nil {
		ev.Digest = t.Digest()
		ev.Empty = t.Empty
	}
	e.publish(typ, ev)
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(bus.NewEvent(typ, eventSource, data)); err != nil {
		e.logger.Debug("Event handler failed", log.String("event", typ), log.Error(err))
	}
}
