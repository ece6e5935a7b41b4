package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlicePoolResetsLength(t *testing.T) {
	p := NewSlicePool[float64](16)
	s := p.Get()
	require.GreaterOrEqual(t, cap(s), 16)
	s = Grow(s, 8)
	s[7] = 1
	p.Put(s)

	again := p.Get()
	assert.Empty(t, again)
}

func TestGrow(t *testing.T) {
	s := make([]int, 2, 4)
	g := Grow(s, 3)
	assert.Len(t, g, 3)
	assert.Equal(t, 4, cap(g))

	g = Grow(s, 10)
	assert.Len(t, g, 10)
}

func TestPoolGenerates(t *testing.T) {
	calls := 0
	p := NewPool(func() *int {
		calls++
		v := 7
		return &v
	})
	assert.Equal(t, 7, *p.Get())
	assert.GreaterOrEqual(t, calls, 1)
}
