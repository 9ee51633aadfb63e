// SPDX-License-Identifier: MIT

package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var allStates = []State{
	StateInitializing,
	StateLoadingAssets,
	StateAssetsReady,
	StateLoadingDocument,
	StateReady,
	StateError,
}

var allCauses = []Cause{
	CauseConfigValid,
	CauseBundleReady,
	CauseEmbedded,
	CauseDocumentLoaded,
	CauseFault,
	CauseReinitialize,
}

func TestTransitionTable_Coverage(t *testing.T) {
	allowed := map[State]map[Cause]struct{}{}
	for _, tr := range transitionsTable {
		if _, ok := allowed[tr.From]; !ok {
			allowed[tr.From] = map[Cause]struct{}{}
		}
		if _, exists := allowed[tr.From][tr.Cause]; exists {
			t.Fatalf("duplicate transition: %s + %v", tr.From, tr.Cause)
		}
		allowed[tr.From][tr.Cause] = struct{}{}
	}

	for _, state := range allStates {
		for _, cause := range allCauses {
			tr, ok := TransitionFor(state, cause)
			if _, want := allowed[state][cause]; want {
				require.True(t, ok, "missing transition for %s + %v", state, cause)
				require.Equal(t, state, tr.From, "transition for %s + %v reports wrong origin", state, cause)
				require.NotEmpty(t, tr.To, "transition for %s + %v has no target", state, cause)
			} else {
				require.False(t, ok, "unexpected transition for %s + %v", state, cause)
			}
		}
	}
}

func TestTransitionFor_HappyPath(t *testing.T) {
	steps := []struct {
		cause Cause
		want  State
	}{
		{CauseConfigValid, StateLoadingAssets},
		{CauseBundleReady, StateAssetsReady},
		{CauseEmbedded, StateLoadingDocument},
		{CauseDocumentLoaded, StateReady},
	}

	state := StateInitializing
	for _, step := range steps {
		tr, ok := TransitionFor(state, step.cause)
		require.True(t, ok, "no transition for %s + %v", state, step.cause)
		require.Equal(t, step.want, tr.To)
		state = tr.To
	}
	require.Equal(t, StateReady, state)
}

func TestTransitionFor_FaultReachableFromEveryState(t *testing.T) {
	for _, state := range allStates {
		tr, ok := TransitionFor(state, CauseFault)
		require.True(t, ok, "fault must be legal from %s", state)
		require.Equal(t, StateError, tr.To)
	}
}

func TestTransitionFor_RecoveryOnlyFromError(t *testing.T) {
	tr, ok := TransitionFor(StateError, CauseReinitialize)
	require.True(t, ok)
	require.Equal(t, StateInitializing, tr.To)

	for _, state := range allStates {
		if state == StateError {
			continue
		}
		_, ok := TransitionFor(state, CauseReinitialize)
		require.False(t, ok, "reinitialize must be refused from %s", state)
	}
}

func TestCause_String(t *testing.T) {
	require.Equal(t, "config_valid", CauseConfigValid.String())
	require.Equal(t, "document_loaded", CauseDocumentLoaded.String())
	require.Equal(t, "fault", CauseFault.String())
	require.Equal(t, "reinitialize", CauseReinitialize.String())
	require.Equal(t, "unknown", CauseUnknown.String())
	require.Equal(t, "unknown", Cause(97).String())
}
