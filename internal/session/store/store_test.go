// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"testing"
)

// runStoreTests exercises the Store contract against one engine.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := open(t)
		rec := &SessionRecord{
			SessionID:     "sess-1",
			DocID:         "doc-1",
			State:         "initializing",
			CreatedAtUnix: 100,
			UpdatedAtUnix: 100,
		}
		if err := s.PutSession(ctx, rec); err != nil {
			t.Fatalf("PutSession failed: %v", err)
		}
		rec.State = "mutated-after-put"

		got, err := s.GetSession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.State != "initializing" {
			t.Errorf("stored state = %q, want %q (store must copy records)", got.State, "initializing")
		}
		if got.DocID != "doc-1" || got.CreatedAtUnix != 100 {
			t.Errorf("unexpected record: %+v", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetSession(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := open(t)
		if err := s.PutSession(ctx, &SessionRecord{SessionID: "sess-1", State: "initializing", CreatedAtUnix: 1, UpdatedAtUnix: 1}); err != nil {
			t.Fatalf("PutSession failed: %v", err)
		}
		if err := s.PutSession(ctx, &SessionRecord{SessionID: "sess-1", State: "ready", CreatedAtUnix: 1, UpdatedAtUnix: 2}); err != nil {
			t.Fatalf("PutSession overwrite failed: %v", err)
		}
		got, err := s.GetSession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.State != "ready" || got.UpdatedAtUnix != 2 {
			t.Errorf("overwrite not applied: %+v", got)
		}
	})

	t.Run("UpdateSession", func(t *testing.T) {
		s := open(t)
		if err := s.PutSession(ctx, &SessionRecord{SessionID: "sess-1", State: "loading_assets", CreatedAtUnix: 5, UpdatedAtUnix: 5}); err != nil {
			t.Fatalf("PutSession failed: %v", err)
		}
		updated, err := s.UpdateSession(ctx, "sess-1", func(rec *SessionRecord) error {
			rec.State = "error"
			rec.LastError = "asset fetch exhausted"
			rec.Recoverable = true
			rec.UpdatedAtUnix = 9
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}
		if updated.State != "error" || !updated.Recoverable {
			t.Errorf("update result: %+v", updated)
		}

		got, err := s.GetSession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.LastError != "asset fetch exhausted" || !got.Recoverable || got.UpdatedAtUnix != 9 {
			t.Errorf("update not persisted: %+v", got)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := open(t)
		if _, err := s.UpdateSession(ctx, "nope", func(*SessionRecord) error { return nil }); !errors.Is(err, ErrNotFound) {
			t.Fatalf("UpdateSession(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateCallbackErrorDiscardsChanges", func(t *testing.T) {
		s := open(t)
		if err := s.PutSession(ctx, &SessionRecord{SessionID: "sess-1", State: "ready", CreatedAtUnix: 1, UpdatedAtUnix: 1}); err != nil {
			t.Fatalf("PutSession failed: %v", err)
		}
		sentinel := errors.New("refused")
		if _, err := s.UpdateSession(ctx, "sess-1", func(rec *SessionRecord) error {
			rec.State = "error"
			return sentinel
		}); !errors.Is(err, sentinel) {
			t.Fatalf("UpdateSession = %v, want callback error", err)
		}
		got, err := s.GetSession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.State != "ready" {
			t.Errorf("state = %q after failed update, want %q", got.State, "ready")
		}
	})

	t.Run("ListSessionsOrdered", func(t *testing.T) {
		s := open(t)
		for _, rec := range []*SessionRecord{
			{SessionID: "sess-c", CreatedAtUnix: 30, State: "ready"},
			{SessionID: "sess-a", CreatedAtUnix: 10, State: "ready"},
			{SessionID: "sess-b", CreatedAtUnix: 10, State: "error"},
		} {
			if err := s.PutSession(ctx, rec); err != nil {
				t.Fatalf("PutSession failed: %v", err)
			}
		}
		list, err := s.ListSessions(ctx)
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("len = %d, want 3", len(list))
		}
		wantOrder := []string{"sess-a", "sess-b", "sess-c"}
		for i, want := range wantOrder {
			if list[i].SessionID != want {
				t.Errorf("list[%d] = %s, want %s", i, list[i].SessionID, want)
			}
		}
	})

	t.Run("TransitionsAppendOrder", func(t *testing.T) {
		s := open(t)
		edges := []TransitionRecord{
			{SessionID: "sess-1", From: "initializing", To: "loading_assets", Cause: "config_valid", AtUnix: 1},
			{SessionID: "sess-1", From: "loading_assets", To: "assets_ready", Cause: "bundle_ready", AtUnix: 1},
			{SessionID: "sess-1", From: "assets_ready", To: "loading_document", Cause: "embedded", AtUnix: 1},
			{SessionID: "sess-2", From: "initializing", To: "error", Cause: "fault", AtUnix: 2},
		}
		for _, tr := range edges {
			if err := s.AppendTransition(ctx, tr); err != nil {
				t.Fatalf("AppendTransition failed: %v", err)
			}
		}

		got, err := s.Transitions(ctx, "sess-1")
		if err != nil {
			t.Fatalf("Transitions failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		for i, tr := range got {
			if tr.From != edges[i].From || tr.To != edges[i].To || tr.Cause != edges[i].Cause {
				t.Errorf("transition[%d] = %+v, want %+v", i, tr, edges[i])
			}
		}

		other, err := s.Transitions(ctx, "sess-2")
		if err != nil {
			t.Fatalf("Transitions failed: %v", err)
		}
		if len(other) != 1 || other[0].To != "error" {
			t.Errorf("sess-2 transitions: %+v", other)
		}
	})

	t.Run("TransitionsEmpty", func(t *testing.T) {
		s := open(t)
		got, err := s.Transitions(ctx, "nope")
		if err != nil {
			t.Fatalf("Transitions failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no transitions, got %d", len(got))
		}
	})

	t.Run("DeleteCascadesAndIsIdempotent", func(t *testing.T) {
		s := open(t)
		if err := s.PutSession(ctx, &SessionRecord{SessionID: "sess-1", State: "ready", CreatedAtUnix: 1, UpdatedAtUnix: 1}); err != nil {
			t.Fatalf("PutSession failed: %v", err)
		}
		if err := s.AppendTransition(ctx, TransitionRecord{SessionID: "sess-1", From: "a", To: "b", Cause: "fault", AtUnix: 1}); err != nil {
			t.Fatalf("AppendTransition failed: %v", err)
		}

		if err := s.DeleteSession(ctx, "sess-1"); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		if _, err := s.GetSession(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSession after delete = %v, want ErrNotFound", err)
		}
		trs, err := s.Transitions(ctx, "sess-1")
		if err != nil {
			t.Fatalf("Transitions failed: %v", err)
		}
		if len(trs) != 0 {
			t.Errorf("transitions survived delete: %+v", trs)
		}

		if err := s.DeleteSession(ctx, "sess-1"); err != nil {
			t.Errorf("second delete errored: %v", err)
		}
	})
}
