// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/foliostream/folio/internal/auth"
	"github.com/foliostream/folio/internal/log"
)

// authMiddleware enforces API token authentication on the management surface.
//
// The token is re-read from the config holder on every request so a hot
// reload takes effect without dropping live sessions. An empty token fails
// closed: the daemon refuses management calls rather than running open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.apiToken()

		if token == "" {
			log.FromContext(r.Context()).Error().
				Str("event", "auth.fail_closed").
				Msg("FOLIO_API_TOKEN not set, denying management access")
			writeUnauthorized(w)
			return
		}

		reqToken := auth.ExtractToken(r)
		logger := log.FromContext(r.Context()).With().Str("component", "auth").Logger()

		if reqToken == "" {
			logger.Warn().Str("event", "auth.missing_header").Msg("authorization header missing")
			writeUnauthorized(w)
			return
		}

		if !auth.AuthorizeToken(reqToken, token) {
			logger.Warn().Str("event", "auth.invalid_token").Msg("invalid api token")
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) apiToken() string {
	if s.holder != nil {
		return s.holder.Get().Server.APIToken
	}
	return s.cfg.Server.APIToken
}
