// SPDX-License-Identifier: MIT

// Package api exposes the folio HTTP surface: session management under
// /api/v1, the public viewer under /viewer and the health probes.
package api

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/foliostream/folio/internal/backend"
	"github.com/foliostream/folio/internal/config"
	"github.com/foliostream/folio/internal/health"
	"github.com/foliostream/folio/internal/log"
	"github.com/foliostream/folio/internal/ratelimit"
	"github.com/foliostream/folio/internal/session"
	"github.com/foliostream/folio/internal/session/store"
)

// initializeTimeout bounds the background work of one session creation:
// asset loading across all fallbacks plus the embed. Document readiness is
// not part of it, a remote runtime may connect much later.
const initializeTimeout = 2 * time.Minute

// SessionFactory builds a controller for one create request. The daemon
// wires it with the asset loader, bridge, history store and the runtime
// flavor of the deployment. The factory assigns the session its id.
type SessionFactory func(req CreateSessionRequest) (*session.Controller, error)

// Deps carries the server's collaborators.
type Deps struct {
	Registry *session.Registry
	Factory  SessionFactory
	Backend  *backend.Client
	History  store.Store    // nil disables the history endpoint
	Health   *health.Manager
	Limiter  *ratelimit.Limiter
	Holder   *config.Holder // nil freezes cfg for the process lifetime
}

// Server handles the folio management and viewer routes.
type Server struct {
	cfg      config.AppConfig
	holder   *config.Holder
	registry *session.Registry
	factory  SessionFactory
	backend  *backend.Client
	history  store.Store
	health   *health.Manager
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger
}

// New creates the API server. Registry, Factory and Backend are required;
// missing Health and Limiter fall back to standalone defaults so tests can
// construct a server from just the core deps.
func New(cfg config.AppConfig, deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, errors.New("api: session registry is required")
	}
	if deps.Factory == nil {
		return nil, errors.New("api: session factory is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("api: backend client is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(cfg.Version)
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(viewerLimits(cfg))
	}

	return &Server{
		cfg:      cfg,
		holder:   deps.Holder,
		registry: deps.Registry,
		factory:  deps.Factory,
		backend:  deps.Backend,
		history:  deps.History,
		health:   deps.Health,
		limiter:  deps.Limiter,
		logger:   log.WithComponent("api"),
	}, nil
}

// viewerLimits derives the per-IP viewer budget from the server config and
// keeps the package defaults for everything else.
func viewerLimits(cfg config.AppConfig) ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	if cfg.Server.ViewerRate > 0 {
		rl.PerIPRate = rate.Limit(cfg.Server.ViewerRate)
	}
	if cfg.Server.ViewerBurst > 0 {
		rl.PerIPBurst = cfg.Server.ViewerBurst
	}
	return rl
}

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	DocID       string  `json:"docId"`
	Title       string  `json:"title,omitempty"`
	InitialPage int     `json:"initialPage,omitempty"`
	InitialZoom float64 `json:"initialZoom,omitempty"`
}

// FaultResponse describes a session fault on the wire.
type FaultResponse struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// SessionResponse is the wire snapshot of one session.
type SessionResponse struct {
	SessionID   string         `json:"sessionId"`
	DocID       string         `json:"docId"`
	State       string         `json:"state"`
	CurrentPage int            `json:"currentPage"`
	PageCount   int            `json:"pageCount"`
	Zoom        float64        `json:"zoom"`
	Title       string         `json:"title,omitempty"`
	ViewerURL   string         `json:"viewerUrl"`
	Error       *FaultResponse `json:"error,omitempty"`
}

// snapshot captures the controller state for a response body.
func snapshot(ctl *session.Controller) SessionResponse {
	resp := SessionResponse{
		SessionID:   ctl.ID(),
		DocID:       ctl.DocID(),
		State:       string(ctl.State()),
		CurrentPage: ctl.CurrentPage(),
		PageCount:   ctl.PageCount(),
		Zoom:        ctl.Zoom(),
		Title:       ctl.Title(),
		ViewerURL:   "/viewer/" + ctl.ID(),
	}
	if f := ctl.LastError(); f != nil {
		resp.Error = &FaultResponse{
			Code:        f.Code,
			Message:     f.Err.Error(),
			Recoverable: f.Recoverable,
		}
	}
	return resp
}
