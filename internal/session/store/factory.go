// SPDX-License-Identifier: MIT

package store

import (
	"errors"
	"fmt"
	"path/filepath"
)

// SQLitePath returns the database file location for a data directory.
func SQLitePath(dir string) string {
	return filepath.Join(dir, "folio.db")
}

// Open creates a Store for the configured backend. The sqlite and badger
// engines require a data directory; memory is the default.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		if dir == "" {
			return nil, errors.New("sqlite store requires a data directory")
		}
		return NewSqlite(SQLitePath(dir))
	case "badger":
		if dir == "" {
			return nil, errors.New("badger store requires a data directory")
		}
		return NewBadger(dir)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
