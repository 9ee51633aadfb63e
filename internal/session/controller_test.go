// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/foliostream/folio/internal/assets"
	"github.com/foliostream/folio/internal/bridge"
	"github.com/foliostream/folio/internal/session/store"
)

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

func testCDN(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		serveViewerAsset(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// scriptedViewer plays the embedded runtime on the far side of an in-process
// transport pair: it records every command it receives and answers the way
// the real viewer script does.
type scriptedViewer struct {
	host    *bridge.Endpoint
	runtime *bridge.Endpoint

	mu        sync.Mutex
	received  []bridge.Envelope
	page      int
	zoom      float64
	pageCount int
}

func newScriptedViewer(pageCount int) *scriptedViewer {
	host, runtime := bridge.NewPair()
	v := &scriptedViewer{
		host:      host,
		runtime:   runtime,
		page:      1,
		zoom:      1,
		pageCount: pageCount,
	}
	runtime.OnMessage(v.handle)
	return v
}

func (v *scriptedViewer) handle(data []byte) {
	var env bridge.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	v.mu.Lock()
	v.received = append(v.received, env)
	count := v.pageCount
	v.mu.Unlock()

	switch env.Type {
	case bridge.CommandLoadDocument:
		var p struct {
			DocID string `json:"docId"`
		}
		_ = json.Unmarshal(env.Payload, &p)
		v.emit(bridge.DocumentLoaded{DocID: p.DocID, PageCount: count, Title: "Scripted Document"})
	case bridge.CommandSetPage:
		var p struct {
			PageNumber int `json:"pageNumber"`
		}
		_ = json.Unmarshal(env.Payload, &p)
		v.mu.Lock()
		v.page = p.PageNumber
		v.mu.Unlock()
		v.emit(bridge.PageChanged{CurrentPage: p.PageNumber, TotalPages: count})
	case bridge.CommandSetZoom:
		var p struct {
			ZoomLevel float64 `json:"zoomLevel"`
		}
		_ = json.Unmarshal(env.Payload, &p)
		v.mu.Lock()
		v.zoom = p.ZoomLevel
		v.mu.Unlock()
		v.emit(bridge.ZoomChanged{ZoomLevel: p.ZoomLevel})
	case bridge.CommandQueryCurrentPage, bridge.CommandQueryPageCount:
		v.mu.Lock()
		page := v.page
		v.mu.Unlock()
		v.emit(bridge.PageChanged{CurrentPage: page, TotalPages: count})
	}
}

func (v *scriptedViewer) emit(ev bridge.Event) {
	env, err := bridge.EventEnvelope(ev)
	if err != nil {
		return
	}
	_ = v.runtime.Send(context.Background(), env)
}

// navigate simulates the user flipping pages inside the viewer UI.
func (v *scriptedViewer) navigate(page int) {
	v.mu.Lock()
	v.page = page
	count := v.pageCount
	v.mu.Unlock()
	v.emit(bridge.PageChanged{CurrentPage: page, TotalPages: count})
}

// setPage moves the viewer without announcing it, so only a query reveals it.
func (v *scriptedViewer) setPage(page int) {
	v.mu.Lock()
	v.page = page
	v.mu.Unlock()
}

func (v *scriptedViewer) emitError(message, code string) {
	v.emit(bridge.ViewerError{Message: message, Code: code})
}

func (v *scriptedViewer) commands() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	types := make([]string, len(v.received))
	for i, env := range v.received {
		types[i] = env.Type
	}
	return types
}

func (v *scriptedViewer) sent() []bridge.Envelope {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]bridge.Envelope, len(v.received))
	copy(out, v.received)
	return out
}

type harness struct {
	ctrl    *Controller
	bridge  *bridge.Bridge
	history *store.Memory
	cdnHits atomic.Int64
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{history: store.NewMemory()}
	srv := testCDN(t, &h.cdnHits)

	cfg := Config{
		SessionID:  "sess-1",
		DocID:      "doc-1",
		APIBaseURL: "http://backend.test/api/v1",
		Assets: assets.LoadConfig{
			BaseURL:      srv.URL,
			VersionTag:   assets.VersionTagLocal,
			FetchTimeout: 2 * time.Second,
			MaxAttempts:  1,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	loader := assets.NewLoader(cfg.Assets, assets.NewHTTPFetcher(2*time.Second, nil))
	h.bridge = bridge.New(zerolog.Nop())

	ctrl, err := New(cfg, Deps{
		Bundle:  assets.NewBundle(loader, nil),
		Bridge:  h.bridge,
		History: h.history,
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	t.Cleanup(ctrl.Dispose)
	return h
}

func (h *harness) connectViewer(t *testing.T, pageCount int) *scriptedViewer {
	t.Helper()
	v := newScriptedViewer(pageCount)
	t.Cleanup(func() {
		_ = v.host.Close()
		_ = v.runtime.Close()
	})
	v.host.OnMessage(h.bridge.HandleRaw)
	h.ctrl.AttachRuntime(v.host)
	return v
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		2*time.Second, 10*time.Millisecond, "session never reached %s, now %s", want, c.State())
}

func collectUpdates(t *testing.T, ch <-chan Update, n int) []Update {
	t.Helper()
	out := make([]Update, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case u, ok := <-ch:
			if !ok {
				t.Fatalf("updates channel closed after %d of %d updates", len(out), n)
			}
			out = append(out, u)
		case <-deadline:
			t.Fatalf("timed out waiting for update %d of %d", len(out)+1, n)
		}
	}
	return out
}

func requireClosed(t *testing.T, ch <-chan Update) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("updates channel still open")
		}
	}
}

func TestController_FullLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	updates, stop := h.ctrl.Events()
	defer stop()
	viewer := h.connectViewer(t, 12)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	got := collectUpdates(t, updates, 4)
	states := make([]State, len(got))
	for i, u := range got {
		states[i] = u.State
	}
	require.Equal(t, []State{StateLoadingAssets, StateAssetsReady, StateLoadingDocument, StateReady}, states)

	loaded, ok := got[3].Event.(bridge.DocumentLoaded)
	require.True(t, ok, "ready update must carry the document event, got %T", got[3].Event)
	assert.Equal(t, "doc-1", loaded.DocID)
	assert.Equal(t, 12, loaded.PageCount)
	assert.NoError(t, got[3].Err)

	assert.Equal(t, 12, h.ctrl.PageCount())
	assert.Equal(t, "Scripted Document", h.ctrl.Title())
	assert.Nil(t, h.ctrl.LastError())
	require.NotEmpty(t, viewer.commands())
	assert.Equal(t, bridge.CommandLoadDocument, viewer.commands()[0])
}

func TestController_InitialPresentationFollowsReady(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.InitialPage = 3
		c.InitialZoom = 1.5
	})
	viewer := h.connectViewer(t, 12)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	require.Eventually(t, func() bool { return len(viewer.commands()) >= 3 },
		2*time.Second, 10*time.Millisecond)
	sent := viewer.sent()
	require.Equal(t,
		[]string{bridge.CommandLoadDocument, bridge.CommandSetPage, bridge.CommandSetZoom},
		[]string{sent[0].Type, sent[1].Type, sent[2].Type},
		"presentation commands must follow readiness, page before zoom")
	assert.JSONEq(t, `{"pageNumber":3}`, string(sent[1].Payload))
	assert.JSONEq(t, `{"zoomLevel":1.5}`, string(sent[2].Payload))

	require.Eventually(t, func() bool { return h.ctrl.CurrentPage() == 3 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.ctrl.Zoom() == 1.5 },
		2*time.Second, 10*time.Millisecond)
}

func TestController_DefaultPresentationSendsNoExtraCommands(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 8)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{bridge.CommandLoadDocument}, viewer.commands(),
		"first page at default zoom needs no follow-up commands")

	require.NoError(t, h.ctrl.NavigateToPage(2))
	require.Eventually(t, func() bool { return len(viewer.commands()) == 2 },
		2*time.Second, 10*time.Millisecond)
	sent := viewer.sent()
	assert.Equal(t, bridge.CommandSetPage, sent[1].Type)
	assert.JSONEq(t, `{"pageNumber":2}`, string(sent[1].Payload))
}

func TestController_ValidationFailsFast(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.DocID = "" })
	updates, stop := h.ctrl.Events()
	defer stop()

	err := h.ctrl.Initialize(context.Background())
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Equal(t, StateError, h.ctrl.State())

	fault := h.ctrl.LastError()
	require.NotNil(t, fault)
	assert.Equal(t, FaultConfig, fault.Code)
	assert.False(t, fault.Recoverable, "a rejected configuration cannot be recovered by retrying")

	u := collectUpdates(t, updates, 1)[0]
	assert.Equal(t, StateError, u.State)
	assert.ErrorIs(t, u.Err, ErrInvalidConfig)

	assert.Zero(t, h.cdnHits.Load(), "no asset fetch may start on invalid configuration")
}

func TestController_AssetFailureFaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, func(c *Config) {
		c.Assets.BaseURL = srv.URL
		c.Assets.MaxAttempts = 2
		c.Assets.RetryDelay = time.Millisecond
	})
	updates, stop := h.ctrl.Events()
	defer stop()

	err := h.ctrl.Initialize(context.Background())
	require.Error(t, err)
	var failure *assets.LoadFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, assets.StyleAssetName, failure.Asset)
	assert.Equal(t, 2, failure.Attempts)
	assert.Zero(t, failure.FallbacksTried)

	require.Equal(t, StateError, h.ctrl.State())
	fault := h.ctrl.LastError()
	require.NotNil(t, fault)
	assert.Equal(t, FaultAssetLoad, fault.Code)
	assert.True(t, fault.Recoverable)

	got := collectUpdates(t, updates, 2)
	assert.Equal(t, StateLoadingAssets, got[0].State)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, StateError, got[1].State)
	assert.Error(t, got[1].Err)

	select {
	case u, ok := <-updates:
		if ok {
			t.Fatalf("fault must be announced exactly once, got extra update %+v", u)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestController_InitializeTwiceRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.connectViewer(t, 3)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	require.ErrorIs(t, h.ctrl.Initialize(context.Background()), ErrAlreadyInitialized)
}

func TestController_CommandsOutsideReadyAreSilent(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 3)

	require.NoError(t, h.ctrl.NavigateToPage(2))
	require.NoError(t, h.ctrl.SetZoom(2))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, viewer.commands(), "nothing may reach the runtime before ready")
	assert.Equal(t, 1, h.ctrl.CurrentPage())
}

func TestController_InvalidCommandArgumentsRejected(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 3)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	require.ErrorIs(t, h.ctrl.NavigateToPage(0), ErrInvalidCommand)
	require.ErrorIs(t, h.ctrl.NavigateToPage(-1), ErrInvalidCommand)
	require.ErrorIs(t, h.ctrl.SetZoom(0), ErrInvalidCommand)
	require.ErrorIs(t, h.ctrl.SetZoom(-0.5), ErrInvalidCommand)
	require.ErrorIs(t, h.ctrl.SetZoom(math.NaN()), ErrInvalidCommand)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{bridge.CommandLoadDocument}, viewer.commands(),
		"rejected arguments must never be dispatched")
}

func TestController_NavigationRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	h.connectViewer(t, 10)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	require.NoError(t, h.ctrl.NavigateToPage(4))
	require.Eventually(t, func() bool { return h.ctrl.CurrentPage() == 4 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.ctrl.SetZoom(2))
	require.Eventually(t, func() bool { return h.ctrl.Zoom() == 2 },
		2*time.Second, 10*time.Millisecond)
}

func TestController_CurrentPageQueriesRuntime(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 12)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	// The viewer moved on without announcing it. The host still reports the
	// old observation but the query it fires brings the fresh one in.
	viewer.setPage(5)
	require.Equal(t, 1, h.ctrl.CurrentPage())
	require.Eventually(t, func() bool { return h.ctrl.CurrentPage() == 5 },
		2*time.Second, 20*time.Millisecond)
}

func TestController_ViewerNavigationObserved(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 12)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	viewer.navigate(7)
	require.Eventually(t, func() bool { return h.ctrl.CurrentPage() == 7 },
		2*time.Second, 10*time.Millisecond)
	require.Equal(t, StateReady, h.ctrl.State())
}

func TestController_RuntimeEventsReachSubscribers(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 6)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	updates, stop := h.ctrl.Events()
	defer stop()

	viewer.emit(bridge.LoadingChanged{IsLoading: true, Progress: 0.4})
	u := collectUpdates(t, updates, 1)[0]
	require.Equal(t, StateReady, u.State)
	loading, ok := u.Event.(bridge.LoadingChanged)
	require.True(t, ok, "expected LoadingChanged, got %T", u.Event)
	assert.True(t, loading.IsLoading)
	assert.InDelta(t, 0.4, loading.Progress, 1e-9)
}

func TestController_MalformedRuntimeMessageIgnored(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 6)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	require.NoError(t, viewer.runtime.SendRaw([]byte("{not json")))
	viewer.navigate(2)
	require.Eventually(t, func() bool { return h.ctrl.CurrentPage() == 2 },
		2*time.Second, 10*time.Millisecond)
	require.Equal(t, StateReady, h.ctrl.State())
	require.Nil(t, h.ctrl.LastError())
}

func TestController_ViewerErrorFaultsWithoutTeardown(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 12)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	viewer.emitError("render crashed", "E_RENDER")
	waitState(t, h.ctrl, StateError)

	fault := h.ctrl.LastError()
	require.NotNil(t, fault)
	assert.Equal(t, FaultViewer, fault.Code)
	assert.True(t, fault.Recoverable)
	var remote *RemoteError
	require.ErrorAs(t, fault.Err, &remote)
	assert.Equal(t, "E_RENDER", remote.Code)
	assert.Equal(t, "render crashed", remote.Message)

	require.True(t, h.bridge.Attached(), "a viewer fault must not tear the transport down")

	// Recovery reuses the surviving transport.
	require.NoError(t, h.ctrl.Reinitialize(context.Background()))
	waitState(t, h.ctrl, StateReady)
	assert.Nil(t, h.ctrl.LastError())
}

func TestController_ReinitializeRejectedWhenHealthy(t *testing.T) {
	h := newHarness(t, nil)
	h.connectViewer(t, 3)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	require.ErrorIs(t, h.ctrl.Reinitialize(context.Background()), ErrNotInErrorState)
	require.Equal(t, StateReady, h.ctrl.State())
}

func TestController_DisposeIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.connectViewer(t, 3)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)

	updates, stop := h.ctrl.Events()
	defer stop()

	h.ctrl.Dispose()
	h.ctrl.Dispose()

	requireClosed(t, updates)
	require.ErrorIs(t, h.ctrl.Initialize(context.Background()), ErrDisposed)
	require.ErrorIs(t, h.ctrl.Reinitialize(context.Background()), ErrDisposed)
	require.ErrorIs(t, h.ctrl.NavigateToPage(2), ErrDisposed)
	require.ErrorIs(t, h.ctrl.SetZoom(2), ErrDisposed)

	late, lateStop := h.ctrl.Events()
	defer lateStop()
	requireClosed(t, late)
}

func TestController_AttachRuntimeReplaysLoadDocument(t *testing.T) {
	h := newHarness(t, nil)

	// No runtime is connected yet: the load command is dropped and the
	// session parks in loading_document.
	require.NoError(t, h.ctrl.Initialize(context.Background()))
	require.Equal(t, StateLoadingDocument, h.ctrl.State())

	viewer := h.connectViewer(t, 5)
	waitState(t, h.ctrl, StateReady)

	require.NotEmpty(t, viewer.commands())
	assert.Equal(t, bridge.CommandLoadDocument, viewer.commands()[0])
	assert.Equal(t, 5, h.ctrl.PageCount())
}

func TestController_HistoryRecords(t *testing.T) {
	h := newHarness(t, nil)
	viewer := h.connectViewer(t, 12)

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	waitState(t, h.ctrl, StateReady)
	viewer.emitError("render crashed", "")
	waitState(t, h.ctrl, StateError)

	ctx := context.Background()
	rec, err := h.history.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", rec.DocID)
	assert.Equal(t, string(StateError), rec.State)
	assert.True(t, rec.Recoverable)
	assert.Contains(t, rec.LastError, "render crashed")

	trs, err := h.history.Transitions(ctx, "sess-1")
	require.NoError(t, err)
	causes := make([]string, len(trs))
	for i, tr := range trs {
		causes[i] = tr.Cause
	}
	assert.Equal(t, []string{"config_valid", "bundle_ready", "embedded", "document_loaded", "fault"}, causes)
	assert.Equal(t, string(StateLoadingDocument), trs[3].From)
	assert.Equal(t, string(StateReady), trs[3].To)
}

func TestController_TeardownLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(serveViewerAsset))
	defer srv.Close()

	cfg := Config{
		SessionID:  "leak-check",
		DocID:      "doc-9",
		APIBaseURL: "http://backend.test/api/v1",
		Assets: assets.LoadConfig{
			BaseURL:      srv.URL,
			VersionTag:   assets.VersionTagLocal,
			FetchTimeout: 2 * time.Second,
			MaxAttempts:  1,
		},
	}
	loader := assets.NewLoader(cfg.Assets, assets.NewHTTPFetcher(2*time.Second, nil))
	br := bridge.New(zerolog.Nop())
	ctrl, err := New(cfg, Deps{
		Bundle:  assets.NewBundle(loader, nil),
		Bridge:  br,
		History: store.NewMemory(),
	})
	require.NoError(t, err)

	viewer := newScriptedViewer(4)
	defer viewer.runtime.Close()
	defer viewer.host.Close()
	viewer.host.OnMessage(br.HandleRaw)
	ctrl.AttachRuntime(viewer.host)

	updates, stop := ctrl.Events()
	require.NoError(t, ctrl.Initialize(context.Background()))
	waitState(t, ctrl, StateReady)
	stop()
	requireClosed(t, updates)

	ctrl.Dispose()
}
