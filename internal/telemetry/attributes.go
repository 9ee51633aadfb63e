// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the folio service.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Asset loading attributes
	AssetNameKey     = "asset.name"
	AssetKindKey     = "asset.kind"
	AssetURLKey      = "asset.url"
	AssetAttemptKey  = "asset.attempt"
	AssetFallbackKey = "asset.fallback"

	// Session attributes
	SessionIDKey    = "session.id"
	SessionStateKey = "session.state"
	DocumentIDKey   = "doc.id"

	// Bridge attributes
	BridgeMessageTypeKey = "bridge.message_type"
	BridgeDirectionKey   = "bridge.direction"

	// Page streaming attributes
	PageNumberKey = "page.number"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// AssetAttributes creates asset-fetch span attributes.
func AssetAttributes(name, kind, url string, attempt int, fallback bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AssetNameKey, name),
		attribute.String(AssetKindKey, kind),
		attribute.String(AssetURLKey, url),
		attribute.Int(AssetAttemptKey, attempt),
		attribute.Bool(AssetFallbackKey, fallback),
	}
}

// SessionAttributes creates session-related span attributes.
func SessionAttributes(sessionID, state, docID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(SessionStateKey, state))
	}
	if docID != "" {
		attrs = append(attrs, attribute.String(DocumentIDKey, docID))
	}
	return attrs
}

// BridgeAttributes creates bridge message span attributes.
func BridgeAttributes(messageType, direction string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(BridgeMessageTypeKey, messageType),
		attribute.String(BridgeDirectionKey, direction),
	}
}

// PageAttributes creates page streaming span attributes.
func PageAttributes(docID string, page int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DocumentIDKey, docID),
		attribute.Int(PageNumberKey, page),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
