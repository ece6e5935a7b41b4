package tile

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/tilestream/internal/core/grid"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
)

// Tile is one block of terrain. Heights are row-major (z rows, x columns),
// Size*Size samples normalized to [0,1]; Transform.Scale.Y turns them into
// world units.
//
// A tile is produced once and then owned by exactly one engine collection.
// Only the attachments map is safe for concurrent use.
type Tile struct {
	Coord     grid.TileCoord
	Size      int
	PatchSize int
	Heights   []float32
	Transform physics.Transform
	Collision *Heightfield
	// Empty marks the flat fallback produced when a source had nothing.
	Empty bool

	mu          sync.RWMutex
	attachments map[string]any
}

// Height returns the normalized sample at column x, row z.
func (t *Tile) Height(x, z int) float32 {
	if x < 0 || z < 0 || x >= t.Size || z >= t.Size {
		return 0
	}
	return t.Heights[z*t.Size+x]
}

// Bounds returns the lowest and highest normalized samples.
func (t *Tile) Bounds() (lo, hi float32) {
	if len(t.Heights) == 0 {
		return 0, 0
	}
	lo, hi = t.Heights[0], t.Heights[0]
	for _, h := range t.Heights[1:] {
		lo = min(lo, h)
		hi = max(hi, h)
	}
	return lo, hi
}

// Digest hashes the coordinate and height samples.
func (t *Tile) Digest() uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(t.Coord.X)))
	_, _ = d.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(t.Coord.Z)))
	_, _ = d.Write(buf[:])
	for _, h := range t.Heights {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(h))
		_, _ = d.Write(buf[:4])
	}
	return d.Sum64()
}

// SetAttachment stores a secondary payload, typically from a TileReady hook.
func (t *Tile) SetAttachment(key string, v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attachments == nil {
		t.attachments = make(map[string]any)
	}
	t.attachments[key] = v
}

func (t *Tile) Attachment(key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.attachments[key]
	return v, ok
}

func (t *Tile) AttachmentKeys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.attachments))
	for k := range t.attachments {
		keys = append(keys, k)
	}
	return keys
}
