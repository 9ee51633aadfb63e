// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/foliostream/folio/internal/assets"
	"github.com/foliostream/folio/internal/backend"
	"github.com/foliostream/folio/internal/bridge"
	"github.com/foliostream/folio/internal/config"
	"github.com/foliostream/folio/internal/ratelimit"
	"github.com/foliostream/folio/internal/session"
	"github.com/foliostream/folio/internal/session/store"
)

const testToken = "test-token"

func serveViewerAsset(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, ".css"):
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, ".folio-viewer { height: 100%; }")
	case strings.HasSuffix(r.URL.Path, ".js"):
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = io.WriteString(w, "window.folio = { boot: function () {} };")
	default:
		http.NotFound(w, r)
	}
}

// serveBackend implements the page API consumed by folio: document info and
// page images keyed by document id.
func serveBackend(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/info"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"pageCount": 12, "title": "Quarterly Report"}`)
	case strings.Contains(r.URL.Path, "/page/"):
		if strings.HasSuffix(r.URL.Path, "/page/404") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	default:
		http.NotFound(w, r)
	}
}

type apiHarness struct {
	server   *Server
	ts       *httptest.Server
	registry *session.Registry
	history  *store.Memory
	cdn      *httptest.Server
	upstream *httptest.Server
}

type harnessOptions struct {
	cdnHandler      http.HandlerFunc
	upstreamHandler http.HandlerFunc
	limiter         *ratelimit.Limiter
	mutateCfg       func(*config.AppConfig)
}

func newAPIHarness(t *testing.T, opts harnessOptions) *apiHarness {
	t.Helper()

	if opts.cdnHandler == nil {
		opts.cdnHandler = serveViewerAsset
	}
	if opts.upstreamHandler == nil {
		opts.upstreamHandler = serveBackend
	}

	h := &apiHarness{
		registry: session.NewRegistry(),
		history:  store.NewMemory(),
	}
	h.cdn = httptest.NewServer(opts.cdnHandler)
	t.Cleanup(h.cdn.Close)
	h.upstream = httptest.NewServer(opts.upstreamHandler)
	t.Cleanup(h.upstream.Close)

	cfg := config.AppConfig{Version: "test"}
	cfg.Server.APIToken = testToken
	cfg.Server.RateLimitRPM = 10000
	if opts.mutateCfg != nil {
		opts.mutateCfg(&cfg)
	}

	client, err := backend.New(h.upstream.URL, backend.Options{Timeout: 2 * time.Second})
	require.NoError(t, err)

	assetCfg := assets.LoadConfig{
		BaseURL:      h.cdn.URL,
		VersionTag:   assets.VersionTagLocal,
		FetchTimeout: 2 * time.Second,
		MaxAttempts:  1,
	}
	factory := func(req CreateSessionRequest) (*session.Controller, error) {
		id := uuid.NewString()
		loader := assets.NewLoader(assetCfg, assets.NewHTTPFetcher(2*time.Second, nil))
		return session.New(session.Config{
			SessionID:   id,
			DocID:       req.DocID,
			APIBaseURL:  h.upstream.URL,
			Title:       req.Title,
			InitialPage: req.InitialPage,
			InitialZoom: req.InitialZoom,
			BridgePath:  "/viewer/" + id + "/bridge",
			PagePath:    "/viewer/" + id + "/page",
			Assets:      assetCfg,
		}, session.Deps{
			Bundle:  assets.NewBundle(loader, nil),
			Bridge:  bridge.New(zerolog.Nop()),
			History: h.history,
		})
	}

	srv, err := New(cfg, Deps{
		Registry: h.registry,
		Factory:  factory,
		Backend:  client,
		History:  h.history,
		Limiter:  opts.limiter,
	})
	require.NoError(t, err)
	h.server = srv

	h.ts = httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		h.ts.Close()
		h.registry.Shutdown()
	})
	return h
}

// request performs one HTTP call against the test server and decodes the
// JSON body into out when out is non-nil.
func (h *apiHarness) request(t *testing.T, method, path, token string, body any, out any) *http.Response {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("X-API-Token", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

// createSession creates a session over the API and returns its snapshot.
func (h *apiHarness) createSession(t *testing.T, docID string) SessionResponse {
	t.Helper()
	var snap SessionResponse
	res := h.request(t, http.MethodPost, "/api/v1/sessions", testToken,
		CreateSessionRequest{DocID: docID}, &snap)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.NotEmpty(t, snap.SessionID)
	return snap
}

// snapshotOf fetches a session snapshot without failing the test, so it can
// run inside polling loops.
func (h *apiHarness) snapshotOf(id string) (SessionResponse, int) {
	var snap SessionResponse
	req, err := http.NewRequest(http.MethodGet, h.ts.URL+"/api/v1/sessions/"+id, nil)
	if err != nil {
		return snap, 0
	}
	req.Header.Set("X-API-Token", testToken)
	res, err := h.ts.Client().Do(req)
	if err != nil {
		return snap, 0
	}
	defer func() { _ = res.Body.Close() }()
	_ = json.NewDecoder(res.Body).Decode(&snap)
	return snap, res.StatusCode
}

// waitSessionState polls the management API until the session reports the
// wanted state.
func (h *apiHarness) waitSessionState(t *testing.T, id, want string) SessionResponse {
	t.Helper()
	var last SessionResponse
	require.Eventually(t, func() bool {
		snap, code := h.snapshotOf(id)
		last = snap
		return code == http.StatusOK && snap.State == want
	}, 3*time.Second, 20*time.Millisecond, "session never reached %s", want)
	return last
}

func TestNewRequiresCoreDeps(t *testing.T) {
	client, err := backend.New("http://backend.test", backend.Options{})
	require.NoError(t, err)

	_, err = New(config.AppConfig{}, Deps{})
	require.Error(t, err)

	_, err = New(config.AppConfig{}, Deps{Registry: session.NewRegistry()})
	require.Error(t, err)

	_, err = New(config.AppConfig{}, Deps{
		Registry: session.NewRegistry(),
		Factory: func(CreateSessionRequest) (*session.Controller, error) {
			return nil, nil
		},
	})
	require.Error(t, err)

	srv, err := New(config.AppConfig{}, Deps{
		Registry: session.NewRegistry(),
		Factory: func(CreateSessionRequest) (*session.Controller, error) {
			return nil, nil
		},
		Backend: client,
	})
	require.NoError(t, err)
	require.NotNil(t, srv)
}

func TestServiceBanner(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	var banner map[string]string
	res := h.request(t, http.MethodGet, "/", "", nil, &banner)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "folio", banner["service"])
	require.Equal(t, "test", banner["version"])
}

func TestHealthEndpointsArePublic(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	res := h.request(t, http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = h.request(t, http.MethodGet, "/readyz", "", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
}
