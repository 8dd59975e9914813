// Package cache provides the tenant-scoped render cache: an LRU with a byte
// budget, per-entry TTLs taken from a page-type policy table, and full-store
// invalidation that always wins over a live TTL.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Sizer is implemented by values that know their approximate memory cost.
type Sizer interface {
	Size() int64
}

// defaultEntrySize is charged for values that are neither strings, byte
// slices nor Sizers.
const defaultEntrySize = 1024

// Manager caches rendered pages, raw and compiled templates and domain
// resolutions. It is safe for concurrent use.
type Manager struct {
	entries     map[string]*entry
	byStore     map[string]map[string]struct{}
	generations map[string]uint64
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	policy      Policy
	enabled     bool
	now         func() time.Time
	// LRU implementation
	head *entry
	tail *entry
	// Statistics tracking
	hits          int64
	misses        int64
	sets          int64
	evictions     int64
	invalidations int64
}

type entry struct {
	key       string
	storeID   string
	value     any
	size      int64
	expiresAt time.Time
	prev      *entry
	next      *entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source. Tests use it to step past TTLs.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPolicy sets the TTL policy table.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// Disabled turns every Get into a miss and every Set into a no-op. The
// development server uses it when caching gets in the way of theme work.
func Disabled() Option {
	return func(m *Manager) { m.enabled = false }
}

// NewManager creates a cache bounded to maxSize bytes.
func NewManager(maxSize int64, opts ...Option) *Manager {
	m := &Manager{
		entries:     make(map[string]*entry),
		byStore:     make(map[string]map[string]struct{}),
		generations: make(map[string]uint64),
		maxSize:     maxSize,
		policy:      DefaultPolicy(),
		enabled:     true,
		now:         time.Now,
	}

	// Initialize LRU doubly-linked list with dummy head and tail
	m.head = &entry{}
	m.tail = &entry{}
	m.head.next = m.tail
	m.tail.prev = m.head

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Policy returns the TTL policy in use.
func (m *Manager) Policy() Policy {
	return m.policy
}

// GetPageTTL returns the rendered-page TTL for a page type. Zero means the
// page is never cached.
func (m *Manager) GetPageTTL(pageType string) time.Duration {
	return m.policy.PageTTL(pageType)
}

// Get retrieves a live value.
func (m *Manager) Get(key Key) (any, bool) {
	if !m.enabled {
		atomic.AddInt64(&m.misses, 1)
		return nil, false
	}

	k := key.String()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, ok := m.entries[k]
	if !ok {
		atomic.AddInt64(&m.misses, 1)
		return nil, false
	}

	if !m.now().Before(e.expiresAt) {
		m.removeLocked(e)
		atomic.AddInt64(&m.misses, 1)
		return nil, false
	}

	m.moveToFront(e)
	atomic.AddInt64(&m.hits, 1)
	return e.value, true
}

// Set stores a value for ttl. A ttl of zero or less stores nothing, so
// page types configured with TTL=0 are never served from cache.
func (m *Manager) Set(key Key, value any, ttl time.Duration) bool {
	if !m.enabled || ttl <= 0 {
		return false
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.setLocked(key, value, ttl)
	return true
}

// Generation returns the invalidation generation of a store. Callers capture
// it before doing work and hand it to SetIfGeneration afterwards.
func (m *Manager) Generation(storeID string) uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.generations[storeID]
}

// SetIfGeneration stores a value only if the key's store has not been
// invalidated since gen was read. A render that started before a theme
// publish therefore cannot write its stale output back.
func (m *Manager) SetIfGeneration(key Key, value any, ttl time.Duration, gen uint64) bool {
	if !m.enabled || ttl <= 0 {
		return false
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.generations[key.StoreID] != gen {
		return false
	}

	m.setLocked(key, value, ttl)
	return true
}

func (m *Manager) setLocked(key Key, value any, ttl time.Duration) {
	k := key.String()
	size := sizeOf(k, value)
	expiresAt := m.now().Add(ttl)

	if existing, ok := m.entries[k]; ok {
		m.currentSize += size - existing.size
		existing.value = value
		existing.size = size
		existing.expiresAt = expiresAt
		m.moveToFront(existing)
		atomic.AddInt64(&m.sets, 1)
		m.evictIfNeeded(0)
		return
	}

	m.evictIfNeeded(size)

	e := &entry{
		key:       k,
		storeID:   key.StoreID,
		value:     value,
		size:      size,
		expiresAt: expiresAt,
	}

	m.entries[k] = e
	m.currentSize += size
	m.addToFront(e)
	if key.StoreID != "" {
		keys, ok := m.byStore[key.StoreID]
		if !ok {
			keys = make(map[string]struct{})
			m.byStore[key.StoreID] = keys
		}
		keys[k] = struct{}{}
	}
	atomic.AddInt64(&m.sets, 1)
}

// Delete removes a single key.
func (m *Manager) Delete(key Key) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, ok := m.entries[key.String()]
	if !ok {
		return false
	}
	m.removeLocked(e)
	return true
}

// InvalidateStore flushes every entry owned by a store regardless of TTL and
// bumps the store generation. It returns the number of entries removed.
func (m *Manager) InvalidateStore(storeID string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.generations[storeID]++

	removed := 0
	for k := range m.byStore[storeID] {
		if e, ok := m.entries[k]; ok {
			m.removeLocked(e)
			removed++
		}
	}
	delete(m.byStore, storeID)

	atomic.AddInt64(&m.invalidations, int64(removed))
	return removed
}

// Clear drops every entry and resets statistics. Generations survive so
// in-flight renders still cannot write back.
func (m *Manager) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for storeID := range m.byStore {
		m.generations[storeID]++
	}
	m.entries = make(map[string]*entry)
	m.byStore = make(map[string]map[string]struct{})
	m.currentSize = 0
	m.head.next = m.tail
	m.tail.prev = m.head

	atomic.StoreInt64(&m.hits, 0)
	atomic.StoreInt64(&m.misses, 0)
	atomic.StoreInt64(&m.sets, 0)
	atomic.StoreInt64(&m.evictions, 0)
	atomic.StoreInt64(&m.invalidations, 0)
}

// PurgeExpired removes every expired entry and returns how many were dropped.
func (m *Manager) PurgeExpired() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	purged := 0
	for _, e := range m.entries {
		if !now.Before(e.expiresAt) {
			m.removeLocked(e)
			purged++
		}
	}
	return purged
}

// StartJanitor purges expired entries every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.PurgeExpired()
			}
		}
	}()
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries       int     `json:"entries"`
	Size          int64   `json:"size"`
	MaxSize       int64   `json:"max_size"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Sets          int64   `json:"sets"`
	Evictions     int64   `json:"evictions"`
	Invalidations int64   `json:"invalidations"`
	HitRate       float64 `json:"hit_rate"`
}

// Stats returns cache statistics.
func (m *Manager) Stats() Stats {
	m.mutex.Lock()
	count := len(m.entries)
	size := m.currentSize
	m.mutex.Unlock()

	hits := atomic.LoadInt64(&m.hits)
	misses := atomic.LoadInt64(&m.misses)
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return Stats{
		Entries:       count,
		Size:          size,
		MaxSize:       m.maxSize,
		Hits:          hits,
		Misses:        misses,
		Sets:          atomic.LoadInt64(&m.sets),
		Evictions:     atomic.LoadInt64(&m.evictions),
		Invalidations: atomic.LoadInt64(&m.invalidations),
		HitRate:       rate,
	}
}

// evictIfNeeded evicts least recently used entries until newSize fits.
func (m *Manager) evictIfNeeded(newSize int64) {
	for m.currentSize+newSize > m.maxSize && m.tail.prev != m.head {
		lru := m.tail.prev
		m.removeLocked(lru)
		atomic.AddInt64(&m.evictions, 1)
	}
}

func (m *Manager) removeLocked(e *entry) {
	m.removeFromList(e)
	delete(m.entries, e.key)
	m.currentSize -= e.size
	if keys, ok := m.byStore[e.storeID]; ok {
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(m.byStore, e.storeID)
		}
	}
}

// LRU doubly-linked list operations
func (m *Manager) addToFront(e *entry) {
	e.prev = m.head
	e.next = m.head.next
	m.head.next.prev = e
	m.head.next = e
}

func (m *Manager) removeFromList(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (m *Manager) moveToFront(e *entry) {
	m.removeFromList(e)
	m.addToFront(e)
}

func sizeOf(key string, value any) int64 {
	base := int64(len(key))
	switch v := value.(type) {
	case string:
		return base + int64(len(v))
	case []byte:
		return base + int64(len(v))
	case Sizer:
		return base + v.Size()
	default:
		return base + defaultEntrySize
	}
}
