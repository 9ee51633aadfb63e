// SPDX-License-Identifier: MIT

package bridge

import "encoding/json"

// UnknownType tags events whose wire type was not recognized.
const UnknownType = "UNKNOWN"

// Event is one decoded message from the embedded runtime. The variant set is
// closed; unrecognized or malformed input decodes to Unknown, never to an
// error.
type Event interface {
	EventType() string
}

// DocumentLoaded reports that the runtime finished loading a document.
type DocumentLoaded struct {
	DocID     string `json:"docId"`
	PageCount int    `json:"pageCount"`
	Title     string `json:"title,omitempty"`
}

func (DocumentLoaded) EventType() string { return EventDocumentLoaded }

// PageChanged reports the page the runtime currently displays.
type PageChanged struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

func (PageChanged) EventType() string { return EventPageChanged }

// ZoomChanged reports the runtime zoom level.
type ZoomChanged struct {
	ZoomLevel float64 `json:"zoomLevel"`
}

func (ZoomChanged) EventType() string { return EventZoomChanged }

// LoadingChanged reports runtime-side loading activity.
type LoadingChanged struct {
	IsLoading bool    `json:"isLoading"`
	Progress  float64 `json:"progress"`
}

func (LoadingChanged) EventType() string { return EventLoadingChanged }

// ViewerError reports a failure inside the embedded runtime.
type ViewerError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (ViewerError) EventType() string { return EventError }

// Unknown is the catch-all for unrecognized types and malformed payloads.
// Type is the wire type when one could be read, empty otherwise; Raw holds
// the undecodable bytes for diagnostics.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Unknown) EventType() string { return UnknownType }

/// DecodeEvent maps raw wire bytes to an event. The mapping is total:
// anything unreadable becomes Unknown.
func DecodeEvent(data []byte) Event {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Unknown{Raw: data}
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope maps a parsed envelope to an event. Missing payloads decode
// to the variant's zero value; malformed payloads become Unknown carrying
// the wire type.
func DecodeEnvelope(env Envelope) Event {
	payload := env.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	switch env.Type {
	case EventDocumentLoaded:
		var e DocumentLoaded
		if err := json.Unmarshal(payload, &e); err != nil {
			return Unknown{Type: env.Type, Raw: env.Payload}
		}
		return e
	case EventPageChanged:
		var e PageChanged
		if err := json.Unmarshal(payload, &e); err != nil {
			return Unknown{Type: env.Type, Raw: env.Payload}
		}
		return e
	case EventZoomChanged:
		var e ZoomChanged
		if err := json.Unmarshal(payload, &e); err != nil {
			return Unknown{Type: env.Type, Raw: env.Payload}
		}
		return e
	case EventLoadingChanged:
		var e LoadingChanged
		if err := json.Unmarshal(payload, &e); err != nil {
			return Unknown{Type: env.Type, Raw: env.Payload}
		}
		return e
	case EventError:
		var e ViewerError
		if err := json.Unmarshal(payload, &e); err != nil {
			return Unknown{Type: env.Type, Raw: env.Payload}
		}
		return e
	default:
		return Unknown{Type: env.Type, Raw: env.Payload}
	}
}

// EventEnvelope renders an event back into its wire envelope. Used by the
// runtime side of an in-process pair and by tests.
func EventEnvelope(ev Event) (Envelope, error) {
	if u, ok := ev.(Unknown); ok {
		return Envelope{Type: u.Type, Payload: u.Raw}, nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: ev.EventType(), Payload: payload}, nil
}
