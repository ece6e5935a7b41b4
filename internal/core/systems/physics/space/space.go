package space

import (
	"sort"
	"sync"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
	"github.com/zeusync/tilestream/internal/core/tile"
)

// Space is an in-memory collision world made of tile heightfields. The
// engine attaches and detaches from its owner goroutine; queries may come
// from anywhere.
type Space struct {
	mu     sync.RWMutex
	quant  grid.Quantizer
	bodies map[grid.TileCoord]*tile.Heightfield
	logger log.Log

	attached uint64
	detached uint64
}

func New(q grid.Quantizer, logger log.Log) *Space {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Space{
		quant:  q,
		bodies: make(map[grid.TileCoord]*tile.Heightfield),
		logger: logger.With(log.String("component", "physics")),
	}
}

func (s *Space) Attach(t *tile.Tile) {
	if t == nil || t.Collision == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bodies[t.Coord]; ok {
		s.logger.Warn("Replacing collision body", log.Stringer("coord", t.Coord))
	}
	s.bodies[t.Coord] = t.Collision
	s.attached++
}

func (s *Space) Detach(t *tile.Tile) {
	if t == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bodies[t.Coord]; !ok {
		return
	}
	delete(s.bodies, t.Coord)
	s.detached++
}

// HeightAt returns the terrain height under world (x, z). ok is false when
// no attached tile covers the point.
func (s *Space) HeightAt(x, z float64) (y float64, ok bool) {
	hs := s.quant.HorizontalScale()
	c := s.quant.ToTile(physics.Vec3{X: x / hs, Z: z / hs})

	s.mu.RLock()
	defer s.mu.RUnlock()
	if hf, found := s.bodies[c]; found {
		if y, ok = hf.HeightAt(x, z); ok {
			return y, true
		}
	}
	return 0, false
}

// Ground returns p with Y raised to clearance above the terrain, or p
// unchanged over empty space.
func (s *Space) Ground(p physics.Vec3, clearance float64) physics.Vec3 {
	if y, ok := s.HeightAt(p.X, p.Z); ok && p.Y < y+clearance {
		p.Y = y + clearance
	}
	return p
}

func (s *Space) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bodies)
}

func (s *Space) Has(c grid.TileCoord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bodies[c]
	return ok
}

// Coords returns the attached coordinates ordered by X then Z.
func (s *Space) Coords() []grid.TileCoord {
	s.mu.RLock()
	out := make([]grid.TileCoord, 0, len(s.bodies))
	for c := range s.bodies {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Counters returns the total attach and detach calls that changed the space.
func (s *Space) Counters() (attached, detached uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attached, s.detached
}
