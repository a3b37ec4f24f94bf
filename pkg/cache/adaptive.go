package cache

import (
	"math"
	"sync"
	"time"
)

// AdaptiveConfig configures an AdaptiveCache. Grounded on LRU's Config
// shape, extended with the bounds and rate constants of the TTL adaptation
// law.
type AdaptiveConfig struct {
	MaxEntries     int
	MaxBytes       int64
	BaseTTL        time.Duration
	MinTTL         time.Duration
	MaxTTL         time.Duration
	AdaptationRate float64 // α, default 0.25
	Smoothing      float64 // η, default 0.5
	HotThreshold   float64 // accesses/second
	ColdThreshold  float64 // accesses/second
	Adaptive       bool
}

// DefaultAdaptiveConfig is the "default" preset.
func DefaultAdaptiveConfig() *AdaptiveConfig {
	return &AdaptiveConfig{
		MaxEntries:     10000,
		BaseTTL:        5 * time.Minute,
		MinTTL:         30 * time.Second,
		MaxTTL:         time.Hour,
		AdaptationRate: 0.25,
		Smoothing:      0.5,
		HotThreshold:   5.0,
		ColdThreshold:  0.01,
		Adaptive:       true,
	}
}

// HighHitRatePreset favors long-lived entries with aggressive hot-key extension.
func HighHitRatePreset() *AdaptiveConfig {
	c := DefaultAdaptiveConfig()
	c.BaseTTL = 30 * time.Minute
	c.MaxTTL = 4 * time.Hour
	c.AdaptationRate = 0.4
	return c
}

// MemoryConstrainedPreset favors small footprint over hit rate.
func MemoryConstrainedPreset() *AdaptiveConfig {
	c := DefaultAdaptiveConfig()
	c.MaxEntries = 500
	c.BaseTTL = time.Minute
	c.MaxTTL = 10 * time.Minute
	return c
}

// WriteHeavyPreset dampens TTL growth so churny keys expire promptly.
func WriteHeavyPreset() *AdaptiveConfig {
	c := DefaultAdaptiveConfig()
	c.AdaptationRate = 0.1
	c.BaseTTL = 2 * time.Minute
	return c
}

type adaptiveEntry[K comparable, V any] struct {
	key          K
	value        V
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  int64
	currentTTL   time.Duration
	prev, next   *adaptiveEntry[K, V]
}

func (e *adaptiveEntry[K, V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.currentTTL
}

// AdaptiveCache is a concurrency-safe mapping fingerprint -> value whose
// per-entry TTL grows for hot keys and shrinks for cold keys, grounded
// structurally on LRU's doubly-linked MRU/LRU bookkeeping (see lru.go) and
// generalized with the TTL adaptation law.
type AdaptiveCache[K comparable, V any] struct {
	mu sync.Mutex

	cache map[K]*adaptiveEntry[K, V]
	head  *adaptiveEntry[K, V]
	tail  *adaptiveEntry[K, V]

	cfg *AdaptiveConfig

	hits, misses, evictions, expiries int64
}

// NewAdaptive creates a new adaptive-TTL cache.
func NewAdaptive[K comparable, V any](cfg *AdaptiveConfig) *AdaptiveCache[K, V] {
	if cfg == nil {
		cfg = DefaultAdaptiveConfig()
	}
	return &AdaptiveCache[K, V]{
		cache: make(map[K]*adaptiveEntry[K, V]),
		cfg:   cfg,
	}
}

// Get retrieves a value, bumping its access_count/last_accessed and
// re-weighting its TTL when adaptive mode is on. Returns false if the key
// is absent or expired.
func (c *AdaptiveCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.cache[key]
	if !ok {
		c.misses++
		return zero, false
	}

	now := time.Now()
	if e.expired(now) {
		c.removeEntry(e)
		c.expiries++
		c.misses++
		return zero, false
	}

	e.accessCount++
	e.lastAccessed = now
	if c.cfg.Adaptive {
		c.reweight(e, now)
	}
	c.moveToFront(e)
	c.hits++
	return e.value, true
}

// reweight applies the TTL adaptation law from SPEC_FULL.md §4.7.
func (c *AdaptiveCache[K, V]) reweight(e *adaptiveEntry[K, V], now time.Time) {
	ageSeconds := math.Max(1, now.Sub(e.createdAt).Seconds())
	rate := float64(e.accessCount) / ageSeconds

	alpha := c.cfg.AdaptationRate
	eta := c.cfg.Smoothing
	if eta == 0 {
		eta = 0.5
	}

	var f float64
	switch {
	case rate >= c.cfg.HotThreshold:
		f = 1 + alpha*math.Log2(1+rate/c.cfg.HotThreshold)
	case rate <= c.cfg.ColdThreshold:
		denom := math.Max(rate, 1e-9)
		f = 1 - alpha*math.Log2(1+c.cfg.ColdThreshold/denom)
	default:
		f = 1
	}

	target := time.Duration(float64(c.cfg.BaseTTL) * f)
	newTTL := time.Duration(float64(e.currentTTL)*(1-eta) + float64(target)*eta)
	e.currentTTL = clampTTL(newTTL, c.cfg.MinTTL, c.cfg.MaxTTL)
}

func clampTTL(ttl, min, max time.Duration) time.Duration {
	if ttl < min {
		return min
	}
	if ttl > max {
		return max
	}
	return ttl
}

// Insert creates an entry with current_ttl = base_ttl, evicting LRU entries
// until size <= MaxEntries.
func (c *AdaptiveCache[K, V]) Insert(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, exists := c.cache[key]; exists {
		e.value = value
		e.createdAt = now
		e.lastAccessed = now
		e.accessCount = 0
		e.currentTTL = c.cfg.BaseTTL
		c.moveToFront(e)
		return
	}

	for c.cfg.MaxEntries > 0 && len(c.cache) >= c.cfg.MaxEntries {
		if c.tail == nil {
			break
		}
		c.removeEntry(c.tail)
		c.evictions++
	}

	e := &adaptiveEntry[K, V]{
		key:          key,
		value:        value,
		createdAt:    now,
		lastAccessed: now,
		currentTTL:   c.cfg.BaseTTL,
	}
	c.cache[key] = e
	c.addToFront(e)
}

// Remove deletes a key, reporting whether it was present.
func (c *AdaptiveCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeEntry(e)
	return true
}

// Len returns the current entry count (including not-yet-swept expired entries).
func (c *AdaptiveCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// TTL returns the current TTL for a key, or false if absent.
func (c *AdaptiveCache[K, V]) TTL(key K) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		return 0, false
	}
	return e.currentTTL, true
}

// CleanupExpired removes all expired entries and returns the count removed.
func (c *AdaptiveCache[K, V]) CleanupExpired() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var removed uint64
	e := c.tail
	for e != nil {
		prev := e.prev
		if e.expired(now) {
			c.removeEntry(e)
			c.expiries++
			removed++
		}
		e = prev
	}
	return removed
}

// Stats mirrors LRU.Stats' shape for consistency across cache types.
func (c *AdaptiveCache[K, V]) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return map[string]interface{}{
		"size":      len(c.cache),
		"max_size":  c.cfg.MaxEntries,
		"hits":      c.hits,
		"misses":    c.misses,
		"hit_rate":  hitRate,
		"evictions": c.evictions,
		"expiries":  c.expiries,
	}
}

func (c *AdaptiveCache[K, V]) addToFront(e *adaptiveEntry[K, V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *AdaptiveCache[K, V]) moveToFront(e *adaptiveEntry[K, V]) {
	if e == c.head {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if e == c.tail {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
}

func (c *AdaptiveCache[K, V]) removeEntry(e *adaptiveEntry[K, V]) {
	delete(c.cache, e.key)
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}
