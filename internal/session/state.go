// SPDX-License-Identifier: MIT

// Package session owns the viewer session lifecycle: a table-driven state
// machine that coordinates asset loading, the embedded runtime and the
// message bridge behind one public control surface.
package session

// State is the client-visible lifecycle of a viewer session.
type State string

const (
	StateInitializing    State = "initializing"
	StateLoadingAssets   State = "loading_assets"
	StateAssetsReady     State = "assets_ready"
	StateLoadingDocument State = "loading_document"
	StateReady           State = "ready"
	StateError           State = "error"
)

// Cause is the domain event that drives a lifecycle transition.
type Cause int

const (
	CauseUnknown Cause = iota
	CauseConfigValid
	CauseBundleReady
	CauseEmbedded
	CauseDocumentLoaded
	CauseFault
	CauseReinitialize
)

var causeNames = map[Cause]string{
	CauseUnknown:        "unknown",
	CauseConfigValid:    "config_valid",
	CauseBundleReady:    "bundle_ready",
	CauseEmbedded:       "embedded",
	CauseDocumentLoaded: "document_loaded",
	CauseFault:          "fault",
	CauseReinitialize:   "reinitialize",
}

func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Transition is a single allowed edge in the session state machine.
type Transition struct {
	From  State
	To    State
	Cause Cause
}

var transitionsTable = []Transition{
	// Happy path
	{From: StateInitializing, To: StateLoadingAssets, Cause: CauseConfigValid},
	{From: StateLoadingAssets, To: StateAssetsReady, Cause: CauseBundleReady},
	{From: StateAssetsReady, To: StateLoadingDocument, Cause: CauseEmbedded},
	{From: StateLoadingDocument, To: StateReady, Cause: CauseDocumentLoaded},

	// Faults land in error from anywhere, including error itself.
	{From: StateInitializing, To: StateError, Cause: CauseFault},
	{From: StateLoadingAssets, To: StateError, Cause: CauseFault},
	{From: StateAssetsReady, To: StateError, Cause: CauseFault},
	{From: StateLoadingDocument, To: StateError, Cause: CauseFault},
	{From: StateReady, To: StateError, Cause: CauseFault},
	{From: StateError, To: StateError, Cause: CauseFault},

	// Recovery
	{From: StateError, To: StateInitializing, Cause: CauseReinitialize},
}

// TransitionFor returns the allowed transition for a state and cause.
func TransitionFor(from State, cause Cause) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Cause == cause {
			return tr, true
		}
	}
	return Transition{}, false
}
