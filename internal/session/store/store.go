// SPDX-License-Identifier: MIT

// Package store persists session lifecycle history. Engines: memory for
// tests and single-process runs, sqlite for durable single-node deployments,
// badger for write-heavy embedded key-value storage.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("session record not found")

// SessionRecord is the stored snapshot of one session.
type SessionRecord struct {
	SessionID     string `json:"sessionId"`
	DocID         string `json:"docId"`
	State         string `json:"state"`
	LastError     string `json:"lastError,omitempty"`
	Recoverable   bool   `json:"recoverable,omitempty"`
	CreatedAtUnix int64  `json:"createdAtUnix"`
	UpdatedAtUnix int64  `json:"updatedAtUnix"`
}

// TransitionRecord is one lifecycle edge in a session's history.
type TransitionRecord struct {
	SessionID string `json:"sessionId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Cause     string `json:"cause"`
	AtUnix    int64  `json:"atUnix"`
}

// Store is the system of record for session lifecycle history.
//
// GetSession and UpdateSession return ErrNotFound for unknown ids;
// DeleteSession is idempotent and also drops the session's transition
// history. Transitions returns rows in append order.
type Store interface {
	PutSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateSession(ctx context.Context, id string, fn func(*SessionRecord) error) (*SessionRecord, error)
	ListSessions(ctx context.Context) ([]*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error

	AppendTransition(ctx context.Context, tr TransitionRecord) error
	Transitions(ctx context.Context, sessionID string) ([]TransitionRecord, error)

	Close() error
}
