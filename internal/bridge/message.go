// SPDX-License-Identifier: MIT

// Package bridge carries the message protocol between the host and the
// embedded viewer runtime: typed commands out, a broadcast stream of decoded
// events in. Delivery is fire-and-forget with at-most-once semantics; the
// runtime re-announces its state on load, so nothing is queued.
package bridge

import "encoding/json"

// Envelope is the wire format in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command types sent to the embedded runtime.
const (
	CommandLoadDocument     = "LOAD_DOCUMENT"
	CommandSetPage          = "SET_PAGE"
	CommandSetZoom          = "SET_ZOOM"
	CommandQueryCurrentPage = "QUERY_CURRENT_PAGE"
	CommandQueryPageCount   = "QUERY_PAGE_COUNT"
)

// Event types received from the embedded runtime.
const (
	EventDocumentLoaded = "DOCUMENT_LOADED"
	EventPageChanged    = "PAGE_CHANGED"
	EventZoomChanged    = "ZOOM_CHANGED"
	EventLoadingChanged = "LOADING_CHANGED"
	EventError          = "ERROR"
)

type loadDocumentPayload struct {
	DocID      string `json:"docId"`
	APIBaseURL string `json:"apiBaseUrl"`
}

type setPagePayload struct {
	PageNumber int `json:"pageNumber"`
}

type setZoomPayload struct {
	ZoomLevel float64 `json:"zoomLevel"`
}

// LoadDocumentCommand tells the runtime to load one document from the
// backend page API.
func LoadDocumentCommand(docID, apiBaseURL string) Envelope {
	return command(CommandLoadDocument, loadDocumentPayload{DocID: docID, APIBaseURL: apiBaseURL})
}

// SetPageCommand navigates the runtime to a page.
func SetPageCommand(pageNumber int) Envelope {
	return command(CommandSetPage, setPagePayload{PageNumber: pageNumber})
}

// SetZoomCommand changes the runtime zoom level.
func SetZoomCommand(zoomLevel float64) Envelope {
	return command(CommandSetZoom, setZoomPayload{ZoomLevel: zoomLevel})
}

// QueryCurrentPageCommand asks the runtime to re-announce its current page.
func QueryCurrentPageCommand() Envelope {
	return Envelope{Type: CommandQueryCurrentPage}
}

// QueryPageCountCommand asks the runtime to re-announce its page count.
func QueryPageCountCommand() Envelope {
	return Envelope{Type: CommandQueryPageCount}
}

// command marshals a known payload struct; marshaling these cannot fail.
func command(msgType string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{Type: msgType}
	}
	return Envelope{Type: msgType, Payload: data}
}

// Encode renders the envelope to its wire bytes.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
