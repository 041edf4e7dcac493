package cache

import (
	"container/heap"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL        = time.Hour
	DefaultCapacity   = 1000
	DefaultEvictBatch = 100
)

// Analysis kinds used as key discriminators.
const (
	KindEmotion   = "emotion"
	KindSentiment = "sentiment"
)

// Key derives the cache key for text analysed as kind. The text is
// lowercased and trimmed so trivially different inputs share an entry.
func Key(kind, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(kind + ":" + normalized))
	return hex.EncodeToString(sum[:])
}

type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	seq       uint64
	index     int
}

// insertionHeap orders entries by creation time, oldest first.
type insertionHeap[V any] []*entry[V]

func (h insertionHeap[V]) Len() int { return len(h) }

func (h insertionHeap[V]) Less(i, j int) bool {
	if h[i].createdAt.Equal(h[j].createdAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].createdAt.Before(h[j].createdAt)
}

func (h insertionHeap[V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *insertionHeap[V]) Push(x any) {
	e := x.(*entry[V])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *insertionHeap[V]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// TTL is a bounded key/value store whose entries expire ttl after they
// were written. When full it drops the oldest-written entries in bulk.
// Reads never refresh an entry.
type TTL[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	capacity   int
	evictBatch int
	entries    map[string]*entry[V]
	order      insertionHeap[V]
	seq        uint64
	now        func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

type Option func(*options)

type options struct {
	ttl        time.Duration
	capacity   int
	evictBatch int
	now        func() time.Time
}

func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

func WithCapacity(capacity int) Option {
	return func(o *options) { o.capacity = capacity }
}

// WithEvictBatch sets how many entries are dropped when the cache is full.
func WithEvictBatch(n int) Option {
	return func(o *options) { o.evictBatch = n }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New[V any](opts ...Option) *TTL[V] {
	o := options{
		ttl:        DefaultTTL,
		capacity:   DefaultCapacity,
		evictBatch: DefaultEvictBatch,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 1 {
		o.capacity = 1
	}
	if o.evictBatch < 1 {
		o.evictBatch = 1
	}

	return &TTL[V]{
		ttl:        o.ttl,
		capacity:   o.capacity,
		evictBatch: o.evictBatch,
		entries:    make(map[string]*entry[V], o.capacity),
		order:      make(insertionHeap[V], 0, o.capacity),
		now:        o.now,
	}
}

// Get returns the value stored under key unless it is missing or expired.
// Expired entries are removed.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().Sub(e.createdAt) >= c.ttl {
		c.remove(e)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Put stores value under key, resetting its age.
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.seq++

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.createdAt = now
		e.seq = c.seq
		heap.Fix(&c.order, e.index)
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest(c.evictBatch)
	}

	e := &entry[V]{key: key, value: value, createdAt: now, seq: c.seq}
	heap.Push(&c.order, e)
	c.entries[key] = e
}

// Len reports the number of stored entries, expired ones included.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *TTL[V]) evictOldest(n int) {
	for i := 0; i < n && c.order.Len() > 0; i++ {
		e := heap.Pop(&c.order).(*entry[V])
		delete(c.entries, e.key)
		c.evictions++
	}
}

func (c *TTL[V]) remove(e *entry[V]) {
	heap.Remove(&c.order, e.index)
	delete(c.entries, e.key)
	c.evictions++
}
