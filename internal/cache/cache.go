// SPDX-License-Identifier: MIT

// Package cache provides the read-through content tiers for fetched viewer
// assets: in-memory, Redis, on-disk, or disabled. Values are raw asset bytes;
// keys are resolved asset URLs.
package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Cache is a thread-safe content cache with per-entry TTL. A ttl of zero or
// less stores the entry without expiration.
type Cache interface {
	// Get retrieves a value. Returns false if absent or expired.
	Get(key string) ([]byte, bool)
	// Set stores a value with the given TTL.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes one entry.
	Delete(key string)
	// Clear removes all entries.
	Clear()
	// Stats returns cache counters.
	Stats() Stats
	// Close releases backend resources and stops background sweeps.
	Close() error
}

// Stats holds cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Entries   int
}

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendDisk   = "disk"
)

// DefaultSweepInterval is how often the memory and disk engines remove
// expired entries when the config does not say otherwise.
const DefaultSweepInterval = time.Minute

// Config selects and parameterizes a cache backend.
type Config struct {
	Backend       string
	MaxEntries    int
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SweepInterval time.Duration
}

// New builds the configured cache backend. An empty backend means disabled.
func New(cfg Config, logger zerolog.Logger) (Cache, error) {
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	switch cfg.Backend {
	case "", BackendNone:
		return NewNoop(), nil
	case BackendMemory:
		return NewMemory(cfg.MaxEntries, sweep), nil
	case BackendRedis:
		return NewRedis(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
	case BackendDisk:
		return NewDisk(cfg.Dir, sweep, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Noop is a cache that stores nothing; it backs the "none" backend.
type Noop struct{}

// NewNoop returns a cache that never hits.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(string) ([]byte, bool)         { return nil, false }
func (*Noop) Set(string, []byte, time.Duration) {}
func (*Noop) Delete(string)                     {}
func (*Noop) Clear()                            {}
func (*Noop) Stats() Stats                      { return Stats{} }
func (*Noop) Close() error                      { return nil }
