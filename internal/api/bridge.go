// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/foliostream/folio/internal/bridge"
	"github.com/foliostream/folio/internal/log"
)

var bridgeUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOriginOrEmpty,
}

// sameOriginOrEmpty accepts requests without an Origin header (non-browser
// runtimes) and browser requests whose origin host matches the request host.
func sameOriginOrEmpty(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.EqualFold(trimmed, r.Host)
}

// handleBridge upgrades the connection and couples the socket to the
// session's bridge. The socket carries JSON envelopes both ways: commands
// out to the runtime, viewer events back in. One runtime per session; a
// reconnect replaces the previous transport.
func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	ctl, ok := s.registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeNotFound(w)
		return
	}

	logger := log.FromContext(r.Context()).With().
		Str("component", "api").
		Str("session_id", ctl.ID()).
		Logger()

	conn, err := bridgeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logger.Warn().Err(err).
			Str("event", "api.bridge_upgrade_failed").
			Msg("websocket upgrade failed")
		return
	}

	t := bridge.NewWSTransport(conn)
	ctl.AttachRuntime(t)
	defer ctl.DetachRuntimeIf(t)
	defer func() { _ = t.Close() }()

	logger.Info().
		Str("event", "api.bridge_connected").
		Str("remote_addr", r.RemoteAddr).
		Msg("runtime connected")

	if err := t.ReadPump(r.Context(), ctl.HandleInbound); err != nil {
		logger.Debug().Err(err).
			Str("event", "api.bridge_closed").
			Msg("bridge connection ended")
		return
	}
	logger.Info().
		Str("event", "api.bridge_disconnected").
		Msg("runtime disconnected")
}
