// SPDX-License-Identifier: MIT

package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry is one cached value. A zero expiration means the entry never expires.
type entry struct {
	value   []byte
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Memory is the in-process cache engine. When full it evicts expired entries
// first, then the entry closest to expiring.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxEntries int
	janitor    *janitor

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// NewMemory creates an in-memory cache. maxEntries <= 0 means unbounded;
// sweepInterval <= 0 disables the background sweep.
func NewMemory(maxEntries int, sweepInterval time.Duration) *Memory {
	c := &Memory{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
	}
	if sweepInterval > 0 {
		c.janitor = newJanitor(sweepInterval, func() { c.sweep() })
	}
	return c
}

// Get retrieves a value from the cache.
func (c *Memory) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || e.expired(time.Now()) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores a value, evicting if the cache is at capacity.
func (c *Memory) Set(key string, value []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = &entry{value: value, expires: expires}
	c.mu.Unlock()

	c.sets.Add(1)
}

// Delete removes one entry.
func (c *Memory) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *Memory) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Stats returns cache counters.
func (c *Memory) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		Entries:   size,
	}
}

// Close stops the background sweep.
func (c *Memory) Close() error {
	if c.janitor != nil {
		c.janitor.stopOnce()
	}
	return nil
}

// sweep removes all expired entries.
func (c *Memory) sweep() {
	now := time.Now()
	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()
	c.evictions.Add(int64(removed))
}

// evictOneLocked frees one slot: an expired entry goes first, otherwise the
// entry with the nearest expiration. Entries without expiration are evicted
// only when nothing expiring exists. Callers hold the write lock.
func (c *Memory) evictOneLocked() {
	now := time.Now()
	var victim string
	var victimExpires time.Time
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			c.evictions.Add(1)
			return
		}
		switch {
		case victim == "":
			victim, victimExpires = key, e.expires
		case victimExpires.IsZero() && !e.expires.IsZero():
			victim, victimExpires = key, e.expires
		case !e.expires.IsZero() && e.expires.Before(victimExpires):
			victim, victimExpires = key, e.expires
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.evictions.Add(1)
	}
}

// janitor runs a sweep function at a fixed interval until stopped.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func newJanitor(interval time.Duration, sweep func()) *janitor {
	j := &janitor{
		interval: interval,
		stop:     make(chan struct{}),
	}
	go j.run(sweep)
	return j
}

func (j *janitor) run(sweep func()) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-j.stop:
			return
		}
	}
}

func (j *janitor) stopOnce() {
	j.once.Do(func() { close(j.stop) })
}
