// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/foliostream/folio/internal/assets"
	"github.com/foliostream/folio/internal/log"
	"github.com/foliostream/folio/internal/metrics"
	"github.com/foliostream/folio/internal/telemetry"
)

// handleViewerDocument serves the generated viewer HTML for one session.
// Browsers land here from the viewerUrl in the session snapshot.
func (s *Server) handleViewerDocument(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeNotFound(w)
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		telemetry.SessionAttributes(ctl.ID(), string(ctl.State()), ctl.DocID())...)

	doc, err := ctl.Document()
	if err != nil {
		if errors.Is(err, assets.ErrNotReady) {
			writeServiceUnavailable(w, 1, errors.New("viewer assets still loading"))
			return
		}
		log.FromContext(r.Context()).Error().Err(err).
			Str("event", "api.document_render_failed").
			Str("session_id", ctl.ID()).
			Msg("viewer document rendering failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "document rendering failed"})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// The document embeds per-session state, never let intermediaries keep it.
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// handleViewerPage proxies one page image from the backend. The viewer
// document references pages relative to its own origin so the browser never
// talks to the backend directly.
func (s *Server) handleViewerPage(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeNotFound(w)
		return
	}

	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		writeError(w, errors.New("page must be a positive integer"))
		return
	}
	if count := ctl.PageCount(); count > 0 && page > count {
		writeNotFound(w)
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.PageAttributes(ctl.DocID(), page)...)

	pg, err := s.backend.StreamPage(r.Context(), ctl.DocID(), page)
	if err != nil {
		status := upstreamStatus(err)
		metrics.IncPageProxyRequest(status)
		log.FromContext(r.Context()).Warn().Err(err).
			Str("event", "api.page_proxy_failed").
			Str("session_id", ctl.ID()).
			Int("page", page).
			Int("status", status).
			Msg("page fetch from backend failed")
		if status == http.StatusNotFound {
			writeNotFound(w)
			return
		}
		writeJSON(w, status, map[string]string{"error": "page unavailable"})
		return
	}
	defer func() { _ = pg.Body.Close() }()

	if pg.ContentType != "" {
		w.Header().Set("Content-Type", pg.ContentType)
	}
	if pg.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(pg.ContentLength, 10))
	}
	// Page images are immutable per document, let the browser keep them a bit.
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, pg.Body)
	metrics.IncPageProxyRequest(http.StatusOK)
	metrics.AddPageProxyBytes(written)
	if err != nil {
		log.FromContext(r.Context()).Debug().Err(err).
			Str("event", "api.page_stream_aborted").
			Str("session_id", ctl.ID()).
			Int("page", page).
			Int64("bytes", written).
			Msg("page stream ended early")
	}
}
