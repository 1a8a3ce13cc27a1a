// Package cache provides the short-lived in-memory store for aggregated
// records responses, keyed by a hash of the query parameters.
package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rld-labs/dashrelay/upstream"
)

type entry struct {
	payload    *upstream.RecordsResponse
	size       int
	insertedAt time.Time
}

// Memory is a thread-safe TTL cache. The TTL is supplied per lookup so
// filtered and unfiltered queries can age differently against the same
// store. Expired entries are deleted lazily by the read that finds
// them; there is no background sweep.
//
// The cache is unbounded: no entry cap and no eviction under memory
// pressure. Acceptable only because upstream volumes are small — a
// known scaling risk, kept as the documented behavior.
type Memory struct {
	mu    sync.Mutex
	items map[string]*entry
}

// NewMemory creates an empty cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]*entry)}
}

// Get returns the payload stored under key if it is younger than ttl.
// An expired entry is removed as a side effect and reported as a miss.
func (m *Memory) Get(key string, ttl time.Duration) (*upstream.RecordsResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if time.Since(e.insertedAt) >= ttl {
		delete(m.items, key)
		return nil, false
	}
	return e.payload, true
}

// Set stores payload under key, overwriting any previous entry. Stored
// payloads are treated as immutable; the cache never mutates them.
func (m *Memory) Set(key string, payload *upstream.RecordsResponse) {
	size := 0
	if data, err := json.Marshal(payload); err == nil {
		size = len(data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = &entry{
		payload:    payload,
		size:       size,
		insertedAt: time.Now(),
	}
}

// Clear removes all entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*entry)
}

// Len returns the number of entries currently stored, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Stats describes the cache contents for the introspection endpoint.
type Stats struct {
	TotalEntries   int      `json:"total_entries"`
	TotalSizeBytes int      `json:"total_size_bytes"`
	Keys           []string `json:"cache_keys"`
}

// Stats reports entry count, approximate byte size, and the key list.
// Sizes are the JSON-encoded payload lengths recorded at insert time.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Keys: make([]string, 0, len(m.items))}
	for key, e := range m.items {
		s.TotalEntries++
		s.TotalSizeBytes += e.size
		s.Keys = append(s.Keys, key)
	}
	sort.Strings(s.Keys)
	return s
}
