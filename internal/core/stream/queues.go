package stream

import (
	"sync"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/tile"
	"github.com/zeusync/tilestream/pkg/sequence"
)

// pendingSet holds coordinates submitted to the pool whose tiles have not
// been drained from the inbox yet.
type pendingSet struct {
	mu     sync.Mutex
	coords map[grid.TileCoord]struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{coords: make(map[grid.TileCoord]struct{})}
}

func (p *pendingSet) add(c grid.TileCoord) {
	p.mu.Lock()
	p.coords[c] = struct{}{}
	p.mu.Unlock()
}

func (p *pendingSet) remove(c grid.TileCoord) {
	p.mu.Lock()
	delete(p.coords, c)
	p.mu.Unlock()
}

func (p *pendingSet) has(c grid.TileCoord) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.coords[c]
	return ok
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.coords)
}

func (p *pendingSet) snapshot() []grid.TileCoord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]grid.TileCoord, 0, len(p.coords))
	for c := range p.coords {
		out = append(out, c)
	}
	return out
}

// completion is a finished job: the coordinate that was requested and the
// tile the producer returned for it.
type completion struct {
	coord grid.TileCoord
	tile  *tile.Tile
}

// inbox is the FIFO of completed jobs. Workers push, the owner pops.
type inbox struct {
	mu    sync.Mutex
	queue *sequence.Queue[completion]
}

func newInbox() *inbox {
	return &inbox{queue: sequence.NewQueue[completion](16)}
}

func (b *inbox) push(c completion) {
	b.mu.Lock()
	b.queue.Enqueue(c)
	b.mu.Unlock()
}

func (b *inbox) pop() (completion, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Dequeue()
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

func (b *inbox) clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Clear()
}

// mailbox defers callbacks from workers to the owner goroutine's next update.
type mailbox struct {
	mu    sync.Mutex
	queue *sequence.Queue[func()]
}

func newMailbox() *mailbox {
	return &mailbox{queue: sequence.NewQueue[func()](8)}
}

func (m *mailbox) post(fn func()) {
	m.mu.Lock()
	m.queue.Enqueue(fn)
	m.mu.Unlock()
}

// run executes every queued callback in order and returns how many ran.
func (m *mailbox) run() int {
	m.mu.Lock()
	fns := m.queue.Drain()
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (m *mailbox) clear() {
	m.mu.Lock()
	m.queue.Clear()
	m.mu.Unlock()
}
