package stream

import "github.com/zeusync/tilestream/internal/core/tile"

// Listener approves tile lifecycle changes.
type Listener interface {
	// TileLoaded runs on the owner goroutine before a tile becomes active.
	// Returning false discards the tile.
	TileLoaded(t *tile.Tile) bool
	// TileUnloaded runs on the owner goroutine before eviction. Returning
	// false keeps the tile for this update; eviction is retried later.
	TileUnloaded(t *tile.Tile) bool
	// TileReady runs on a worker goroutine right after generation, before
	// the tile is queued for promotion or written to the ring.
	TileReady(t *tile.Tile)
}

// Sink receives tiles entering and leaving the active set. Calls are made
// from the owner goroutine only.
type Sink interface {
	Attach(t *tile.Tile)
	Detach(t *tile.Tile)
}

// NopListener approves everything.
type NopListener struct{}

func (NopListener) TileLoaded(*tile.Tile) bool   { return true }
func (NopListener) TileUnloaded(*tile.Tile) bool { return true }
func (NopListener) TileReady(*tile.Tile)         {}

// ListenerFuncs builds a Listener from optional functions. Nil hooks approve.
type ListenerFuncs struct {
	Loaded   func(t *tile.Tile) bool
	Unloaded func(t *tile.Tile) bool
	Ready    func(t *tile.Tile)
}

func (l ListenerFuncs) TileLoaded(t *tile.Tile) bool {
	if l.Loaded == nil {
		return true
	}
	return l.Loaded(t)
}

func (l ListenerFuncs) TileUnloaded(t *tile.Tile) bool {
	if l.Unloaded == nil {
		return true
	}
	return l.Unloaded(t)
}

func (l ListenerFuncs) TileReady(t *tile.Tile) {
	if l.Ready != nil {
		l.Ready(t)
	}
}

type nopSink struct{}

func (nopSink) Attach(*tile.Tile) {}
func (nopSink) Detach(*tile.Tile) {}
