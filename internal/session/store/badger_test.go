// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"testing"
)

func TestBadger_Conformance(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		b, err := NewBadger(t.TempDir())
		if err != nil {
			t.Fatalf("NewBadger failed: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestBadger_RequiresDirectory(t *testing.T) {
	if _, err := NewBadger(""); err == nil {
		t.Fatal("expected an error for an empty directory")
	}
}

// Transition order must survive a close and reopen; the sequence backing the
// row keys may not restart from zero.
func TestBadger_AppendOrderSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger failed: %v", err)
	}
	for _, cause := range []string{"config_valid", "bundle_ready"} {
		if err := b.AppendTransition(ctx, TransitionRecord{SessionID: "sess-1", Cause: cause}); err != nil {
			t.Fatalf("AppendTransition failed: %v", err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b2, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b2.Close()

	for _, cause := range []string{"embedded", "document_loaded"} {
		if err := b2.AppendTransition(ctx, TransitionRecord{SessionID: "sess-1", Cause: cause}); err != nil {
			t.Fatalf("AppendTransition after reopen failed: %v", err)
		}
	}

	got, err := b2.Transitions(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	want := []string{"config_valid", "bundle_ready", "embedded", "document_loaded"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, cause := range want {
		if got[i].Cause != cause {
			t.Errorf("transition[%d].Cause = %s, want %s", i, got[i].Cause, cause)
		}
	}
}
