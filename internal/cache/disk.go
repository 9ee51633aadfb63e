// SPDX-License-Identifier: MIT

package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const (
	diskFileExt    = ".cache"
	diskHeaderSize = 8
	diskFileMode   = 0o600
	diskDirMode    = 0o750
)

// Disk is a filesystem-backed cache engine that survives restarts. Each
// entry is one file named by the key hash: an 8-byte big-endian expiration
// (unix nanoseconds, zero for none) followed by the asset bytes. Writes are
// atomic, so a crash never leaves a torn entry.
type Disk struct {
	dir     string
	logger  zerolog.Logger
	janitor *janitor

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// NewDisk creates the cache directory if needed and starts the expiry sweep.
// sweepInterval <= 0 disables the sweep.
func NewDisk(dir string, sweepInterval time.Duration, logger zerolog.Logger) (*Disk, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk cache directory not set")
	}
	if err := os.MkdirAll(dir, diskDirMode); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	c := &Disk{dir: dir, logger: logger}
	if sweepInterval > 0 {
		c.janitor = newJanitor(sweepInterval, func() { c.sweep() })
	}
	return c, nil
}

// Get reads one entry from disk.
func (c *Disk) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("key", key).Msg("disk cache read failed")
		}
		c.misses.Add(1)
		return nil, false
	}
	if len(data) < diskHeaderSize {
		c.misses.Add(1)
		c.remove(key)
		return nil, false
	}

	expires := int64(binary.BigEndian.Uint64(data[:diskHeaderSize]))
	if expires != 0 && time.Now().UnixNano() > expires {
		c.misses.Add(1)
		c.remove(key)
		c.evictions.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return data[diskHeaderSize:], true
}

// Set writes one entry atomically.
func (c *Disk) Set(key string, value []byte, ttl time.Duration) {
	var expires int64
	if ttl > 0 {
		expires = time.Now().Add(ttl).UnixNano()
	}

	buf := make([]byte, diskHeaderSize+len(value))
	binary.BigEndian.PutUint64(buf[:diskHeaderSize], uint64(expires))
	copy(buf[diskHeaderSize:], value)

	if err := renameio.WriteFile(c.path(key), buf, diskFileMode); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("disk cache write failed")
		return
	}
	c.sets.Add(1)
}

// Delete removes one entry.
func (c *Disk) Delete(key string) {
	c.remove(key)
}

// Clear removes every cache file in the directory.
func (c *Disk) Clear() {
	names, err := c.list()
	if err != nil {
		c.logger.Warn().Err(err).Msg("disk cache clear failed")
		return
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("file", name).Msg("disk cache remove failed")
		}
	}
}

// Stats returns cache counters. Entries counts the files on disk.
func (c *Disk) Stats() Stats {
	entries := 0
	if names, err := c.list(); err == nil {
		entries = len(names)
	}
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
	}
}

// Close stops the background sweep.
func (c *Disk) Close() error {
	if c.janitor != nil {
		c.janitor.stopOnce()
	}
	return nil
}

// sweep removes expired entries by reading only each file's header.
func (c *Disk) sweep() {
	names, err := c.list()
	if err != nil {
		return
	}
	now := time.Now().UnixNano()
	removed := 0
	for _, name := range names {
		full := filepath.Join(c.dir, name)
		expires, err := readExpiry(full)
		if err != nil {
			continue
		}
		if expires != 0 && now > expires {
			if os.Remove(full) == nil {
				removed++
			}
		}
	}
	c.evictions.Add(int64(removed))
}

func (c *Disk) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+diskFileExt)
}

func (c *Disk) remove(key string) {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Err(err).Str("key", key).Msg("disk cache remove failed")
	}
}

func (c *Disk) list() ([]string, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if !d.IsDir() && strings.HasSuffix(d.Name(), diskFileExt) {
			names = append(names, d.Name())
		}
	}
	return names, nil
}

func readExpiry(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var header [diskHeaderSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(header[:])), nil
}
