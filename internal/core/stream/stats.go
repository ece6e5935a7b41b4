package stream

import "sync/atomic"

// Stats is a point-in-time view of engine counters. It is safe to read
// from any goroutine; gauges are refreshed at the end of every Update.
type Stats struct {
	Ticks            uint64 `json:"ticks"`
	Evictions        uint64 `json:"evictions"`
	EvictVetoes      uint64 `json:"evict_vetoes"`
	Promotions       uint64 `json:"promotions"`
	CacheHits        uint64 `json:"cache_hits"`
	LoadVetoes       uint64 `json:"load_vetoes"`
	Discards         uint64 `json:"discards"`
	Requests         uint64 `json:"requests"`
	RingRebuilds     uint64 `json:"ring_rebuilds"`
	RingInterrupts   uint64 `json:"ring_interrupts"`
	ProducerFailures uint64 `json:"producer_failures"`

	Active  int  `json:"active"`
	Pending int  `json:"pending"`
	Cached  int  `json:"cached"`
	Window  int  `json:"window"`
	Loaded  bool `json:"loaded"`
}

type counters struct {
	ticks            atomic.Uint64
	evictions        atomic.Uint64
	evictVetoes      atomic.Uint64
	promotions       atomic.Uint64
	cacheHits        atomic.Uint64
	loadVetoes       atomic.Uint64
	discards         atomic.Uint64
	requests         atomic.Uint64
	ringRebuilds     atomic.Uint64
	ringInterrupts   atomic.Uint64
	producerFailures atomic.Uint64

	active  atomic.Int64
	pending atomic.Int64
	cached  atomic.Int64
	window  atomic.Int64
	loaded  atomic.Bool
}

func (c *counters) snapshot() Stats {
	return Stats{
		Ticks:            c.ticks.Load(),
		Evictions:        c.evictions.Load(),
		EvictVetoes:      c.evictVetoes.Load(),
		Promotions:       c.promotions.Load(),
		CacheHits:        c.cacheHits.Load(),
		LoadVetoes:       c.loadVetoes.Load(),
		Discards:         c.discards.Load(),
		Requests:         c.requests.Load(),
		RingRebuilds:     c.ringRebuilds.Load(),
		RingInterrupts:   c.ringInterrupts.Load(),
		ProducerFailures: c.producerFailures.Load(),
		Active:           int(c.active.Load()),
		Pending:          int(c.pending.Load()),
		Cached:           int(c.cached.Load()),
		Window:           int(c.window.Load()),
		Loaded:           c.loaded.Load(),
	}
}
