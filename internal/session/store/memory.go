// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Store for tests and single-process runs. Not
// durable.
type Memory struct {
	mu          sync.RWMutex
	sessions    map[string]*SessionRecord
	transitions map[string][]TransitionRecord
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]*SessionRecord),
		transitions: make(map[string][]TransitionRecord),
	}
}

func (m *Memory) PutSession(ctx context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.sessions[rec.SessionID] = &cp
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) UpdateSession(ctx context.Context, id string, fn func(*SessionRecord) error) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.sessions[id] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		cp := *rec
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAtUnix != list[j].CreatedAtUnix {
			return list[i].CreatedAtUnix < list[j].CreatedAtUnix
		}
		return list[i].SessionID < list[j].SessionID
	})
	return list, nil
}

func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.transitions, id)
	return nil
}

func (m *Memory) AppendTransition(ctx context.Context, tr TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[tr.SessionID] = append(m.transitions[tr.SessionID], tr)
	return nil
}

func (m *Memory) Transitions(ctx context.Context, sessionID string) ([]TransitionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.transitions[sessionID]
	out := make([]TransitionRecord, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) Close() error { return nil }
