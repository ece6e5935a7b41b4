package observer

import (
	"time"

	"github.com/zeusync/tilestream/internal/core/systems/physics"
)

// Message types on the observer socket.
const (
	TypeWelcome = "WELCOME"
	TypeEvent   = "EVENT"
	TypeStats   = "STATS"
	TypeViewer  = "VIEWER"
)

// Message is sent from the hub to observers.
type Message struct {
	Type    string    `json:"type"`
	Session string    `json:"session,omitempty"`
	Event   string    `json:"event,omitempty"`
	Source  string    `json:"source,omitempty"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data,omitempty"`
}

// ClientMessage is sent by observers. Only VIEWER is understood: Pos moves
// the viewer to a world position.
type ClientMessage struct {
	Type string     `json:"type"`
	Pos  [3]float64 `json:"pos"`
}

func (m ClientMessage) Position() physics.Vec3 {
	return physics.Vec3{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]}
}
