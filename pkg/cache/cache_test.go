package cache

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	id      int
	payload [64]byte
}

func TestCache_GetAdd(t *testing.T) {
	c := New[uint32, item](10)

	a := &item{id: 1}
	c.Add(1, a)

	got, ok := c.Get(1)
	require.True(t, ok)
	require.Same(t, a, got)

	_, ok = c.Get(2)
	require.False(t, ok)

	c.Remove(1)
	_, ok = c.Get(1)
	require.False(t, ok)
	runtime.KeepAlive(a)
}

func TestCache_DoesNotKeepValuesAlive(t *testing.T) {
	c := New[uint32, item](1000)

	kept := make([]*item, 0, 5)
	for i := 0; i < 10; i++ {
		it := &item{id: i}
		c.Add(uint32(i), it)
		if i%2 == 0 {
			kept = append(kept, it)
		}
	}
	require.Equal(t, 10, c.Len())

	runtime.GC()

	require.Equal(t, 5, c.Prune())
	require.Equal(t, 5, c.Len())
	for _, it := range kept {
		got, ok := c.Get(uint32(it.id))
		require.True(t, ok)
		require.Same(t, it, got)
	}
	runtime.KeepAlive(kept)
}

func TestCache_PrunesPastMaxSize(t *testing.T) {
	c := New[uint32, item](4)

	for i := 0; i < 4; i++ {
		c.Add(uint32(i), &item{id: i})
	}
	runtime.GC()

	alive := &item{id: 100}
	c.Add(100, alive)
	require.Equal(t, 1, c.Len())

	got, ok := c.Get(100)
	require.True(t, ok)
	require.Same(t, alive, got)
	runtime.KeepAlive(alive)
}
