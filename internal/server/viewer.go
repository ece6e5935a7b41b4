package server

import (
	"sync"
	"time"

	"github.com/zeusync/tilestream/internal/core/systems/physics"
)

// ViewerSource supplies the viewer's world position each tick. ok is false
// when no position is known yet; the server then keeps the last one.
type ViewerSource interface {
	Viewer() (pos physics.Vec3, ok bool)
}

// StaticViewer never moves.
type StaticViewer physics.Vec3

func (v StaticViewer) Viewer() (physics.Vec3, bool) { return physics.Vec3(v), true }

// Flyover moves the viewer in a straight line at a constant velocity,
// measured in world units per second from the first call.
type Flyover struct {
	start    physics.Vec3
	velocity physics.Vec3
	now      func() time.Time

	once    sync.Once
	started time.Time
}

func NewFlyover(start, velocity physics.Vec3) *Flyover {
	return &Flyover{start: start, velocity: velocity, now: time.Now}
}

func (f *Flyover) Viewer() (physics.Vec3, bool) {
	now := f.now()
	f.once.Do(func() { f.started = now })
	return f.start.Add(f.velocity.Scale(now.Sub(f.started).Seconds())), true
}
