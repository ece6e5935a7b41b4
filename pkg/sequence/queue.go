package sequence

// Queue is a growable FIFO ring buffer. It is not safe for concurrent use;
// callers guard it with their own lock.
type Queue[T any] struct {
	items []T
	head  int
	size  int
}

func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{items: make([]T, capacity)}
}

func (q *Queue[T]) Enqueue(value T) {
	if q.items == nil {
		q.items = make([]T, 4)
	}
	if q.size == len(q.items) {
		q.grow()
	}
	q.items[(q.head+q.size)%len(q.items)] = value
	q.size++
}

func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return v, true
}

func (q *Queue[T]) Peek() (T, bool) {
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

func (q *Queue[T]) Len() int { return q.size }

func (q *Queue[T]) IsEmpty() bool { return q.size == 0 }

// Clear drops every element and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	n := q.size
	var zero T
	for i := 0; i < q.size; i++ {
		q.items[(q.head+i)%len(q.items)] = zero
	}
	q.head, q.size = 0, 0
	return n
}

// Drain removes and returns every element in FIFO order.
func (q *Queue[T]) Drain() []T {
	out := make([]T, 0, q.size)
	for {
		v, ok := q.Dequeue()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func (q *Queue[T]) grow() {
	next := make([]T, len(q.items)*2)
	for i := 0; i < q.size; i++ {
		next[i] = q.items[(q.head+i)%len(q.items)]
	}
	q.items = next
	q.head = 0
}
