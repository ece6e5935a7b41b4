package generic

import "sync"

// Pool is a typed sync.Pool. An optional reset hook runs on every Put so
// values come back clean.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) T
}

func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

// NewResetPool is NewPool with a hook applied to values before they are
// returned to the pool.
func NewResetPool[T any](generate func() T, reset func(T) T) *Pool[T] {
	p := NewPool[T](generate)
	p.reset = reset
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.reset != nil {
		value = p.reset(value)
	}
	p.pool.Put(value)
}

// NewSlicePool pools slices of E. Get may return a slice of any length;
// use Grow to size it.
func NewSlicePool[E any](capacity int) *Pool[[]E] {
	return NewResetPool(
		func() []E { return make([]E, 0, capacity) },
		func(s []E) []E { return s[:0] },
	)
}

// Grow returns s resized to n, reallocating only when capacity is short.
func Grow[E any](s []E, n int) []E {
	if cap(s) < n {
		return make([]E, n)
	}
	return s[:n]
}
