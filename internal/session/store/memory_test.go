// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sync"
	"testing"
)

func TestMemory_Conformance(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		m := NewMemory()
		t.Cleanup(func() { _ = m.Close() })
		return m
	})
}

func TestMemory_ConcurrentWriters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			rec := &SessionRecord{SessionID: id, State: "initializing", CreatedAtUnix: int64(n)}
			if err := m.PutSession(ctx, rec); err != nil {
				t.Errorf("PutSession: %v", err)
			}
			for j := 0; j < 20; j++ {
				if err := m.AppendTransition(ctx, TransitionRecord{SessionID: id, From: "a", To: "b", Cause: "fault"}); err != nil {
					t.Errorf("AppendTransition: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	list, err := m.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 8 {
		t.Fatalf("len = %d, want 8", len(list))
	}
	for _, rec := range list {
		trs, err := m.Transitions(ctx, rec.SessionID)
		if err != nil {
			t.Fatalf("Transitions: %v", err)
		}
		if len(trs) != 20 {
			t.Errorf("session %s has %d transitions, want 20", rec.SessionID, len(trs))
		}
	}
}
