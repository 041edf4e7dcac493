package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestTTLCache(t *testing.T) {
	t.Run("put then get within ttl returns value", func(t *testing.T) {
		clock := newFakeClock()
		c := New[string](WithTTL(time.Hour), WithClock(clock.Now))

		c.Put("k", "v")
		clock.Advance(59 * time.Minute)

		got, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v", got)
	})

	t.Run("entry at exactly ttl is a miss and is removed", func(t *testing.T) {
		clock := newFakeClock()
		c := New[string](WithTTL(time.Hour), WithClock(clock.Now))

		c.Put("k", "v")
		clock.Advance(time.Hour)

		_, ok := c.Get("k")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("reads do not refresh age", func(t *testing.T) {
		clock := newFakeClock()
		c := New[int](WithTTL(10*time.Second), WithClock(clock.Now))

		c.Put("k", 1)
		clock.Advance(6 * time.Second)
		_, ok := c.Get("k")
		require.True(t, ok)
		clock.Advance(5 * time.Second)

		_, ok = c.Get("k")
		assert.False(t, ok)
	})

	t.Run("overwrite resets age", func(t *testing.T) {
		clock := newFakeClock()
		c := New[int](WithTTL(10*time.Second), WithClock(clock.Now))

		c.Put("k", 1)
		clock.Advance(8 * time.Second)
		c.Put("k", 2)
		clock.Advance(8 * time.Second)

		got, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, 2, got)
		assert.Equal(t, 1, c.Len())
	})
}

func TestTTLCacheEviction(t *testing.T) {
	t.Run("never exceeds capacity", func(t *testing.T) {
		c := New[int](WithCapacity(50), WithEvictBatch(10))
		for i := 0; i < 500; i++ {
			c.Put(fmt.Sprintf("k%d", i), i)
			assert.LessOrEqual(t, c.Len(), 50)
		}
	})

	t.Run("evicts the oldest batch when full", func(t *testing.T) {
		clock := newFakeClock()
		c := New[int](WithCapacity(10), WithEvictBatch(3), WithClock(clock.Now))
		for i := 0; i < 10; i++ {
			c.Put(fmt.Sprintf("k%d", i), i)
			clock.Advance(time.Second)
		}

		c.Put("new", 100)

		assert.Equal(t, 8, c.Len())
		for i := 0; i < 3; i++ {
			_, ok := c.Get(fmt.Sprintf("k%d", i))
			assert.False(t, ok, "k%d should have been evicted", i)
		}
		for i := 3; i < 10; i++ {
			_, ok := c.Get(fmt.Sprintf("k%d", i))
			assert.True(t, ok, "k%d should survive", i)
		}
		_, ok := c.Get("new")
		assert.True(t, ok)
	})

	t.Run("reading an old entry does not save it from eviction", func(t *testing.T) {
		clock := newFakeClock()
		c := New[int](WithCapacity(3), WithEvictBatch(1), WithClock(clock.Now))
		c.Put("a", 1)
		clock.Advance(time.Second)
		c.Put("b", 2)
		clock.Advance(time.Second)
		c.Put("c", 3)

		_, _ = c.Get("a")
		c.Put("d", 4)

		_, ok := c.Get("a")
		assert.False(t, ok)
		_, ok = c.Get("b")
		assert.True(t, ok)
	})

	t.Run("same timestamp falls back to insertion order", func(t *testing.T) {
		clock := newFakeClock()
		c := New[int](WithCapacity(2), WithEvictBatch(1), WithClock(clock.Now))
		c.Put("first", 1)
		c.Put("second", 2)
		c.Put("third", 3)

		_, ok := c.Get("first")
		assert.False(t, ok)
		_, ok = c.Get("second")
		assert.True(t, ok)
	})
}

func TestTTLCacheConcurrentPut(t *testing.T) {
	c := New[int](WithCapacity(100), WithEvictBatch(10))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 100)
	stats := c.Stats()
	assert.Equal(t, c.Len(), stats.Size)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key(KindEmotion, "  I Feel Sad "), Key(KindEmotion, "i feel sad"))
	assert.NotEqual(t, Key(KindEmotion, "i feel sad"), Key(KindSentiment, "i feel sad"))
	assert.Len(t, Key(KindEmotion, "x"), 64)
}
