package pagecache

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxEntries caps a MemoryStore created without an explicit limit.
	DefaultMaxEntries = 300
	// cullFraction of the entries, soonest to expire first, is dropped when full.
	cullFraction = 3
)

// Store is a key-value store whose entries expire after a TTL.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Clear()
}

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is an in-process Store. Expired entries are swept on Set once
// the oldest one is due, and the number of entries is capped.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]entry
	now        func() time.Time
	maxEntries int
	// earliest is the soonest expiry among entries; zero when empty.
	earliest time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock lets tests drive expiry.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), now: now, maxEntries: DefaultMaxEntries}
}

// WithMaxEntries changes the entry cap; n <= 0 keeps the current one.
func (s *MemoryStore) WithMaxEntries(n int) *MemoryStore {
	if n > 0 {
		s.mu.Lock()
		s.maxEntries = n
		s.mu.Unlock()
	}
	return s
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.earliest.IsZero() && !now.Before(s.earliest) {
		s.sweep(now)
	}
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.cull()
	}

	expires := now.Add(ttl)
	s.entries[key] = entry{value: value, expires: expires}
	if s.earliest.IsZero() || expires.Before(s.earliest) {
		s.earliest = expires
	}
}

// sweep drops expired entries and recomputes earliest. Caller holds mu.
func (s *MemoryStore) sweep(now time.Time) {
	s.earliest = time.Time{}
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
			continue
		}
		if s.earliest.IsZero() || e.expires.Before(s.earliest) {
			s.earliest = e.expires
		}
	}
}

// cull drops a share of the live entries, soonest to expire first. Caller holds mu.
func (s *MemoryStore) cull() {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.entries[keys[i]].expires.Before(s.entries[keys[j]].expires)
	})
	n := len(keys) / cullFraction
	if n == 0 {
		n = 1
	}
	for _, k := range keys[:n] {
		delete(s.entries, k)
	}
	s.earliest = time.Time{}
	if n < len(keys) {
		s.earliest = s.entries[keys[n]].expires
	}
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	s.earliest = time.Time{}
}

// Len counts live and not yet evicted entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
