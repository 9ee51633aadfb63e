// SPDX-License-Identifier: MIT

package assets

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for asset fetching and bundle loading. Callers match with
// errors.Is; the rich error types below carry the detail.
var (
	// ErrTimeout marks a fetch that exceeded the per-request timeout.
	ErrTimeout = errors.New("asset fetch timed out")

	// ErrUpstreamStatus marks a non-2xx response from the asset host.
	ErrUpstreamStatus = errors.New("asset host returned error status")

	// ErrContentType marks a response whose Content-Type does not match the
	// asset kind.
	ErrContentType = errors.New("asset content type mismatch")

	// ErrTransport marks a network-level fetch failure.
	ErrTransport = errors.New("asset fetch transport error")

	// ErrHostDenied marks a resolved URL whose host is outside the allowlist.
	ErrHostDenied = errors.New("asset host not allowed")

	// ErrLoadInProgress is returned when a bundle load is requested while one
	// is already running.
	ErrLoadInProgress = errors.New("bundle load already in progress")

	// ErrNotReady is returned when the document is requested before the
	// bundle reached the loaded state.
	ErrNotReady = errors.New("bundle not loaded")
)

// FetchError describes a single failed fetch of one URL.
type FetchError struct {
	Sentinel error
	URL      string
	Status   int
	Detail   string
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Sentinel)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel so errors.Is works; the wrapped cause is
// reachable through Cause.
func (e *FetchError) Unwrap() error {
	return e.Sentinel
}

// Cause returns the underlying transport or context error, if any.
func (e *FetchError) Cause() error {
	return e.Err
}

// LoadFailure is the terminal error of one asset load after every primary
// attempt and every fallback mirror failed. Attempts counts primary attempts
// only; fallback tries are reported separately.
type LoadFailure struct {
	Asset          string
	Attempts       int
	FallbacksTried int
	Cause          error
}

func (e *LoadFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "load asset %s: %d attempt", e.Asset, e.Attempts)
	if e.Attempts != 1 {
		b.WriteString("s")
	}
	if e.FallbacksTried > 0 {
		fmt.Fprintf(&b, ", %d fallback", e.FallbacksTried)
		if e.FallbacksTried != 1 {
			b.WriteString("s")
		}
	}
	b.WriteString(" failed")
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the last underlying error, so errors.Is can distinguish
// timeout from upstream status from transport failures.
func (e *LoadFailure) Unwrap() error {
	return e.Cause
}
