// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/foliostream/folio/internal/session"
)

// maxBodyBytes caps management request bodies. Session commands are tiny.
const maxBodyBytes = 1 << 20

// decodeJSON strictly decodes one JSON object from the request body.
func decodeJSON(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleCreateSession starts a new viewer session. The response carries the
// initial snapshot; asset loading and document readiness progress in the
// background and are observed via GET or the session history.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	req.DocID = strings.TrimSpace(req.DocID)
	if req.DocID == "" {
		writeError(w, errors.New("docId is required"))
		return
	}
	// Titles are compared byte-wise in snapshots and history records.
	req.Title = norm.NFC.String(strings.TrimSpace(req.Title))
	if req.InitialPage < 0 {
		writeError(w, errors.New("initialPage cannot be negative"))
		return
	}
	if req.InitialZoom < 0 {
		writeError(w, errors.New("initialZoom must be positive"))
		return
	}

	ctl, err := s.factory(req)
	if err != nil {
		if errors.Is(err, session.ErrInvalidConfig) {
			writeError(w, err)
			return
		}
		s.logger.Error().Err(err).
			Str("event", "api.session_create_failed").
			Str("doc_id", req.DocID).
			Msg("session factory failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session creation failed"})
		return
	}
	s.registry.Add(ctl)

	// Initialization outlives the HTTP request: the client gets the snapshot
	// now and polls (or subscribes) for readiness.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), initializeTimeout)
		defer cancel()
		if err := ctl.Initialize(ctx); err != nil {
			s.logger.Warn().Err(err).
				Str("event", "api.session_init_failed").
				Str("session_id", ctl.ID()).
				Msg("session initialization failed")
		}
	}()

	s.logger.Info().
		Str("event", "api.session_created").
		Str("session_id", ctl.ID()).
		Str("doc_id", req.DocID).
		Msg("session created")

	w.Header().Set("Location", "/api/v1/sessions/"+ctl.ID())
	writeJSON(w, http.StatusCreated, snapshot(ctl))
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	ctls := s.registry.List()
	out := make([]SessionResponse, 0, len(ctls))
	for _, ctl := range ctls {
		out = append(out, snapshot(ctl))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, snapshot(ctl))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ctl, ok := s.registry.Remove(id)
	if !ok {
		writeNotFound(w)
		return
	}
	ctl.Dispose()
	s.logger.Info().
		Str("event", "api.session_deleted").
		Str("session_id", id).
		Msg("session disposed")
	w.WriteHeader(http.StatusNoContent)
}

// handleNavigatePage dispatches a page command. 202: the command was sent to
// the runtime, the page change itself is confirmed by a later viewer event.
func (s *Server) handleNavigatePage(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeNotFound(w)
		return
	}
	var req struct {
		Page int `json:"page"`
	}
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := ctl.NavigateToPage(req.Page); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snapshot(ctl))
}

func (s *Server) handleSetZoom(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeNotFound(w)
		return
	}
	var req struct {
		Zoom float64 `json:"zoom"`
	}
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := ctl.SetZoom(req.Zoom); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snapshot(ctl))
}

// handleReinitialize restarts a failed session. Only sessions in the error
// state can be recovered; anything else conflicts.
func (s *Server) handleReinitialize(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeNotFound(w)
		return
	}

	// Advisory check so callers get a clear 409. Reinitialize revalidates
	// under the controller lock, a concurrent transition is still safe.
	if st := ctl.State(); st != session.StateError {
		writeConflict(w, errors.New("session not in error state: "+string(st)))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), initializeTimeout)
		defer cancel()
		if err := ctl.Reinitialize(ctx); err != nil {
			s.logger.Warn().Err(err).
				Str("event", "api.session_reinit_failed").
				Str("session_id", ctl.ID()).
				Msg("session reinitialization failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, snapshot(ctl))
}

// handleSessionHistory returns the recorded lifecycle transitions.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeServiceUnavailable(w, 0, errors.New("session history store not configured"))
		return
	}
	id := chi.URLParam(r, "sessionID")
	rec, err := s.history.GetSession(r.Context(), id)
	if err != nil {
		writeNotFound(w)
		return
	}
	trs, err := s.history.Transitions(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).
			Str("event", "api.history_read_failed").
			Str("session_id", id).
			Msg("transition lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     rec,
		"transitions": trs,
	})
}
