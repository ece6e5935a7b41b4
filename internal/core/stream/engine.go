package stream

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/zeusync/tilestream/internal/core/events/bus"
	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/producer"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
	"github.com/zeusync/tilestream/internal/core/tile"
	"github.com/zeusync/tilestream/internal/core/workers"
)

// Engine keeps the window of active tiles around a viewer.
//
// Update, SetViewDistance, the tile lookups and Close belong to a single
// owner goroutine. Producers run on the engine's worker pool and hand their
// tiles back through an inbox; nothing a worker does touches the active
// set or the ring directly. Stats may be read from anywhere.
type Engine struct {
	builder  *tile.Builder
	quant    grid.Quantizer
	producer producer.Producer
	listener Listener
	sink     Sink
	bus      bus.EventBus
	logger   log.Log
	pool     *workers.Pool

	// owner goroutine only
	view       grid.ViewDistance
	window     grid.Window
	center     grid.TileCoord
	last       grid.TileCoord
	started    bool
	processed  bool
	loaded     bool
	retryEvict bool
	active     map[grid.TileCoord]*tile.Tile
	vetoed     map[grid.TileCoord]struct{}
	ring       *ring

	pending *pendingSet
	inbox   *inbox
	mailbox *mailbox

	closed atomic.Bool
	stats  counters
}

type Option func(*Engine)

func WithListener(l Listener) Option {
	return func(e *Engine) {
		if l != nil {
			e.listener = l
		}
	}
}

func WithSink(s Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

func WithEventBus(b bus.EventBus) Option {
	return func(e *Engine) { e.bus = b }
}

func WithLogger(l log.Log) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New validates cfg and starts the worker pool. Block sizes outside
// 2^n+1, n in [4,10], fail with grid.ErrInvalidConfiguration.
func New(cfg Config, p producer.Producer, opts ...Option) (*Engine, error) {
	if err := cfg.View.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers %d", grid.ErrInvalidConfiguration, cfg.Workers)
	}
	builder, err := tile.NewBuilder(cfg.Tile)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNilProducer
	}

	e := &Engine{
		builder:  builder,
		quant:    builder.Quantizer(),
		producer: p,
		listener: NopListener{},
		sink:     nopSink{},
		logger:   log.Provide(),
		view:     cfg.View,
		active:   make(map[grid.TileCoord]*tile.Tile),
		vetoed:   make(map[grid.TileCoord]struct{}),
		ring:     newRing(),
		pending:  newPendingSet(),
		inbox:    newInbox(),
		mailbox:  newMailbox(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(log.String("component", "stream"))
	e.pool = workers.New(workers.Config{Size: cfg.Workers, Name: "tiles"}, e.logger)
	e.stats.window.Store(int64(cfg.View.Count()))

	bc := builder.Config()
	e.logger.Info("Streaming engine created",
		log.Int("block_size", bc.BlockSize),
		log.Int("patch_size", bc.PatchSize),
		log.Float64("horizontal_scale", bc.HorizontalScale),
		log.Float64("vertical_scale", bc.VerticalScale),
		log.Int("window_tiles", cfg.View.Count()),
		log.Int("workers", e.pool.Size()))
	return e, nil
}

// Update advances the state machine by at most one mutation for a viewer
// at the given world position.
func (e *Engine) Update(viewer physics.Vec3) Action {
	if e.closed.Load() {
		return ActionIdle
	}
	e.stats.ticks.Add(1)
	e.mailbox.run()

	center := e.quant.ViewerTile(viewer)
	if !e.started || center != e.center {
		e.moveTo(center)
	}

	var action Action
	if e.processed && center == e.last && e.pending.len() == 0 && e.inbox.len() == 0 && !e.retryEvict {
		action = ActionIdle
	} else {
		action = e.step()
	}
	e.refreshGauges()
	return action
}

func (e *Engine) moveTo(center grid.TileCoord) {
	if e.started {
		e.logger.Debug("Viewer changed tile", log.Stringer("from", e.center), log.Stringer("to", center))
	}
	e.started = true
	e.center = center
	e.window = grid.NewWindow(center, e.view)
	e.loaded = false
	e.processed = false
	clear(e.vetoed)
	e.ring.interrupt()
}

func (e *Engine) step() Action {
	if a, ok := e.evictOne(); ok {
		return a
	}

	if len(e.active) >= e.window.Count() {
		// A vetoed eviction leaves a stale tile behind; the window is full
		// but not loaded until it goes.
		if !e.loaded && !e.retryEvict {
			e.loaded = true
			e.logger.Info("World loaded", log.Stringer("center", e.center), log.Int("tiles", len(e.active)))
			e.publish(EventWorldLoaded, WorldEvent{Center: e.center, Window: e.window, Active: len(e.active)})
		}
		if c, ok := e.inbox.pop(); ok {
			e.pending.remove(c.coord)
			e.discard(c, "window full")
			return ActionDiscard
		}
	} else if c, ok := e.inbox.pop(); ok {
		return e.promote(c)
	} else if a, ok := e.scan(); ok {
		return a
	}

	if e.pending.len() == 0 && e.inbox.len() == 0 && !e.retryEvict {
		e.rebuildRing()
		e.last = e.center
		e.processed = true
		return ActionRingRebuild
	}
	return ActionWait
}

// evictOne removes the lowest out-of-window coordinate, unless the listener
// vetoes it.
func (e *Engine) evictOne() (Action, bool) {
	var (
		victim grid.TileCoord
		found  bool
	)
	for c := range e.active {
		if e.window.Contains(c) {
			continue
		}
		if !found || c.Less(victim) {
			victim, found = c, true
		}
	}
	if !found {
		e.retryEvict = false
		return ActionIdle, false
	}

	t := e.active[victim]
	if !e.listener.TileUnloaded(t) {
		e.retryEvict = true
		e.stats.evictVetoes.Add(1)
		e.logger.Debug("Tile unload vetoed", log.Stringer("coord", victim))
		return ActionIdle, false
	}
	e.retryEvict = false

	delete(e.active, victim)
	e.sink.Detach(t)
	e.stats.evictions.Add(1)
	e.publishTile(EventTileDetached, victim, t)
	return ActionEvict, true
}

func (e *Engine) promote(c completion) Action {
	e.pending.remove(c.coord)

	key := c.coord
	if placed := e.builder.CoordOf(c.tile); placed != key {
		e.logger.Warn("Tile placed away from its request",
			log.Stringer("requested", key), log.Stringer("placed", placed))
	}
	if !e.window.Contains(key) {
		e.discard(c, "outside window")
		return ActionDiscard
	}
	if _, dup := e.active[key]; dup {
		e.discard(c, "already active")
		return ActionDiscard
	}
	if !e.listener.TileLoaded(c.tile) {
		e.veto(c.coord, c.tile)
		return ActionLoadVetoed
	}

	e.activate(key, c.tile)
	e.stats.promotions.Add(1)
	return ActionPromote
}

// scan walks the window row-major and handles the first coordinate that is
// neither active, pending nor vetoed.
func (e *Engine) scan() (Action, bool) {
	action, found := ActionIdle, false
	e.window.Each(func(c grid.TileCoord) bool {
		if _, ok := e.active[c]; ok {
			return true
		}
		if _, ok := e.vetoed[c]; ok {
			return true
		}
		if e.pending.has(c) {
			return true
		}
		found = true

		if t, ok := e.ring.take(c); ok {
			if !e.listener.TileLoaded(t) {
				e.veto(c, t)
				action = ActionLoadVetoed
				return false
			}
			e.activate(c, t)
			e.stats.cacheHits.Add(1)
			e.publishTile(EventTileCacheHit, c, t)
			action = ActionCacheHit
			return false
		}

		action = e.request(c)
		return false
	})
	return action, found
}

func (e *Engine) request(c grid.TileCoord) Action {
	e.pending.add(c)
	err := e.pool.Submit(func(ctx context.Context) {
		t := e.generate(ctx, c)
		if e.closed.Load() {
			return
		}
		e.inbox.push(completion{coord: c, tile: t})
	})
	if err != nil {
		e.pending.remove(c)
		return ActionWait
	}
	e.stats.requests.Add(1)
	e.publish(EventTileRequested, TileEvent{Coord: c})
	return ActionRequest
}

// generate runs on a worker goroutine and always returns a tile.
func (e *Engine) generate(ctx context.Context, c grid.TileCoord) *tile.Tile {
	t, err := producer.Resolve(ctx, e.producer, e.builder, c)
	if err != nil && ctx.Err() == nil {
		e.stats.producerFailures.Add(1)
		e.logger.Warn("Tile producer failed, using flat tile", log.Stringer("coord", c), log.Error(err))
		e.publish(EventProducerFailed, TileEvent{Coord: c, Empty: true, Error: err.Error()})
	}
	e.ready(t)
	return t
}

func (e *Engine) ready(t *tile.Tile) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("TileReady hook panicked", log.Stringer("coord", t.Coord), log.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	e.listener.TileReady(t)
}

func (e *Engine) activate(c grid.TileCoord, t *tile.Tile) {
	e.active[c] = t
	delete(e.ring.tiles, c)
	e.sink.Attach(t)
	e.publishTile(EventTileAttached, c, t)
}

func (e *Engine) veto(c grid.TileCoord, t *tile.Tile) {
	e.vetoed[c] = struct{}{}
	e.stats.loadVetoes.Add(1)
	e.logger.Debug("Tile load vetoed", log.Stringer("coord", c))
	e.publishTile(EventTileVetoed, c, t)
}

func (e *Engine) discard(c completion, reason string) {
	e.stats.discards.Add(1)
	e.logger.Debug("Completed tile discarded", log.Stringer("coord", c.coord), log.String("reason", reason))
}

func (e *Engine) refreshGauges() {
	e.stats.active.Store(int64(len(e.active)))
	e.stats.pending.Store(int64(e.pending.len()))
	e.stats.cached.Store(int64(len(e.ring.tiles)))
	e.stats.loaded.Store(e.loaded)
}

// SetViewDistance changes the window shape. The next Update re-evaluates
// the window even if the viewer has not moved.
func (e *Engine) SetViewDistance(d grid.ViewDistance) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.view = d
	e.started = false
	e.processed = false
	e.stats.window.Store(int64(d.Count()))
	e.logger.Info("View distance changed",
		log.Int("north", d.North), log.Int("east", d.East),
		log.Int("south", d.South), log.Int("west", d.West))
	return nil
}

func (e *Engine) ViewDistance() grid.ViewDistance { return e.view }

// SetWorkers resizes the generation pool.
func (e *Engine) SetWorkers(n int) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.pool.Resize(n)
}

func (e *Engine) Workers() int { return e.pool.Size() }

// Loaded reports whether every tile of the current window is active.
func (e *Engine) Loaded() bool { return e.loaded }

// Tile returns the active tile at c.
func (e *Engine) Tile(c grid.TileCoord) (*tile.Tile, bool) {
	t, ok := e.active[c]
	return t, ok
}

// CachedTile returns the ring tile at c.
func (e *Engine) CachedTile(c grid.TileCoord) (*tile.Tile, bool) {
	return e.ring.get(c)
}

// ActiveCoords returns the active coordinates in no particular order.
func (e *Engine) ActiveCoords() []grid.TileCoord {
	out := make([]grid.TileCoord, 0, len(e.active))
	for c := range e.active {
		out = append(out, c)
	}
	return out
}

func (e *Engine) ActiveCount() int { return len(e.active) }

func (e *Engine) PendingCount() int { return e.pending.len() }

func (e *Engine) CachedCount() int { return len(e.ring.tiles) }

func (e *Engine) Window() grid.Window { return e.window }

func (e *Engine) Builder() *tile.Builder { return e.builder }

func (e *Engine) Stats() Stats { return e.stats.snapshot() }

// Close stops the worker pool. Jobs already running finish but their tiles
// are dropped; later Updates return ActionIdle.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.ring.interrupt()
	err := e.pool.Close()
	dropped := e.inbox.clear()
	e.mailbox.clear()
	e.logger.Info("Streaming engine closed",
		log.Int("active", len(e.active)),
		log.Int("dropped", dropped))
	return err
}
