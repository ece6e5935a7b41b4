package stream

// Action reports the single step an Update performed.
type Action uint8

const (
	// ActionIdle: nothing to do, or the engine is closed.
	ActionIdle Action = iota
	// ActionEvict: one tile left the active set.
	ActionEvict
	// ActionPromote: one completed tile joined the active set.
	ActionPromote
	// ActionCacheHit: one ring tile joined the active set.
	ActionCacheHit
	// ActionLoadVetoed: the listener refused a tile; it was dropped.
	ActionLoadVetoed
	// ActionDiscard: a completed tile no longer fit the window and was dropped.
	ActionDiscard
	// ActionRequest: one generation job was submitted.
	ActionRequest
	// ActionRingRebuild: the ring was cleared and a rebuild started.
	ActionRingRebuild
	// ActionWait: jobs are in flight and nothing else can progress.
	ActionWait
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionEvict:
		return "evict"
	case ActionPromote:
		return "promote"
	case ActionCacheHit:
		return "cache_hit"
	case ActionLoadVetoed:
		return "load_vetoed"
	case ActionDiscard:
		return "discard"
	case ActionRequest:
		return "request"
	case ActionRingRebuild:
		return "ring_rebuild"
	case ActionWait:
		return "wait"
	}
	return "unknown"
}

// Mutates reports whether the action changed the active set, the pending
// set or the ring.
func (a Action) Mutates() bool {
	switch a {
	case ActionEvict, ActionPromote, ActionCacheHit, ActionRequest, ActionRingRebuild:
		return true
	}
	return false
}
