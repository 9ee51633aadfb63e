// SPDX-License-Identifier: MIT
package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldDocID         = "doc_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Asset fields
	FieldAsset    = "asset"
	FieldAttempt  = "attempt"
	FieldFallback = "fallback"

	// Bridge fields
	FieldMessageType = "message_type"
	FieldDirection   = "direction"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
	FieldURL     = "url"
)
