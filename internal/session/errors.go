// SPDX-License-Identifier: MIT

package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCommand marks a navigation or zoom argument rejected locally,
	// before anything is dispatched to the runtime.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrInvalidConfig marks a session configuration rejected during
	// initialization, before any network work starts.
	ErrInvalidConfig = errors.New("invalid session configuration")

	// ErrDisposed is returned by operations on a disposed controller.
	ErrDisposed = errors.New("session disposed")

	// ErrAlreadyInitialized is returned when Initialize is called on a
	// session that has left the initializing state.
	ErrAlreadyInitialized = errors.New("session already initialized")

	// ErrNotInErrorState is returned when Reinitialize is called on a
	// session that has nothing to recover from.
	ErrNotInErrorState = errors.New("session not in error state")
)

// Fault codes, used as metrics labels and history annotations.
const (
	FaultConfig    = "config_invalid"
	FaultAssetLoad = "asset_load_failed"
	FaultEmbed     = "embed_failed"
	FaultViewer    = "viewer_error"
)

// Fault is the last recorded session error together with its recovery hint.
// It stays queryable until the next successful transition or reinitialize.
type Fault struct {
	Code        string
	Err         error
	Recoverable bool
	At          time.Time
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %v", f.Code, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// RemoteError is a fault reported by the embedded viewer runtime over the
// bridge. It is surfaced to the host and never retried automatically.
type RemoteError struct {
	Message string
	Code    string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("viewer error %s: %s", e.Code, e.Message)
	}
	return "viewer error: " + e.Message
}
