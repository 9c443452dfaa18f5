package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry is a single cached upstream response together with the time it was written.
type Entry struct {
	Key       string
	Value     any
	WrittenAt time.Time
}

// Stats describes the current contents of a Store.
type Stats struct {
	Count       int        `json:"count"`
	Keys        []string   `json:"keys"`
	OldestWrite *time.Time `json:"oldestWriteTimestamp"`
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock used to stamp and age entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is an in-memory key/value map that remembers when each key was last written.
// It carries no freshness policy of its own; callers decide what an entry's age means.
// A Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// New creates an empty Store
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value stored under key and how long ago it was written.
func (s *Store) Get(key string) (any, time.Duration, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, 0, false
	}
	return entry.Value, s.now().Sub(entry.WrittenAt), true
}

// Set stores value under key, replacing both the value and its write timestamp.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.entries[key] = Entry{
		Key:       key,
		Value:     value,
		WrittenAt: s.now(),
	}
	s.mu.Unlock()
}

// Clear drops every entry
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
}

// Stats reports the number of entries, their keys in sorted order and the
// oldest write timestamp (nil when the store is empty).
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Count: len(s.entries),
		Keys:  make([]string, 0, len(s.entries)),
	}
	for key, entry := range s.entries {
		stats.Keys = append(stats.Keys, key)
		if stats.OldestWrite == nil || entry.WrittenAt.Before(*stats.OldestWrite) {
			written := entry.WrittenAt
			stats.OldestWrite = &written
		}
	}
	sort.Strings(stats.Keys)

	return stats
}
