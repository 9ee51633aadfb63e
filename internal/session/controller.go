// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/foliostream/folio/internal/assets"
	"github.com/foliostream/folio/internal/bridge"
	"github.com/foliostream/folio/internal/log"
	"github.com/foliostream/folio/internal/metrics"
	"github.com/foliostream/folio/internal/session/store"
	"github.com/foliostream/folio/internal/validate"
)

const (
	updateBuffer   = 16
	historyTimeout = 2 * time.Second
)

// Config is the immutable per-session configuration.
type Config struct {
	SessionID   string
	DocID       string
	APIBaseURL  string // handed to the runtime with LOAD_DOCUMENT
	Title       string
	InitialPage int     // 0 means first page
	InitialZoom float64 // 0 means 1.0
	BridgePath  string  // where the runtime reaches the bridge
	PagePath    string  // where page images are served
	Assets      assets.LoadConfig
}

// EmbedFunc starts the embedded runtime with the generated viewer document.
// A nil EmbedFunc means the runtime embeds itself later, as a remote browser
// does when it fetches the document and connects the bridge transport.
type EmbedFunc func(ctx context.Context, document string) error

// HistoryStore records session lifecycle for later inspection. All methods
// are best-effort from the controller's point of view.
type HistoryStore interface {
	PutSession(ctx context.Context, rec *store.SessionRecord) error
	UpdateSession(ctx context.Context, id string, fn func(*store.SessionRecord) error) (*store.SessionRecord, error)
	AppendTransition(ctx context.Context, tr store.TransitionRecord) error
}

// Deps wires the controller's collaborators. Bundle and Bridge are required;
// History and Embed may be nil.
type Deps struct {
	Bundle  *assets.Bundle
	Bridge  *bridge.Bridge
	History HistoryStore
	Embed   EmbedFunc
}

// Update is delivered to Events subscribers on every state change and viewer
// event. Err is set exactly once per fault.
type Update struct {
	State State
	Event bridge.Event // triggering viewer event, nil for host-side transitions
	Err   error
}

// Controller is the top-level state machine for one viewer session.
type Controller struct {
	cfg     Config
	bundle  *assets.Bundle
	bridge  *bridge.Bridge
	history HistoryStore
	embed   EmbedFunc
	logger  zerolog.Logger

	mu          sync.Mutex
	state       State
	fault       *Fault
	currentPage int
	pageCount   int
	zoom        float64
	title       string
	subs        map[chan Update]struct{}
	stopEvents  func()
	pumpDone    chan struct{}
	disposed    bool
	initAt      time.Time
}

// New creates a controller in the initializing state. A missing SessionID is
// filled with a fresh uuid.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Bundle == nil || deps.Bridge == nil {
		return nil, errors.New("session: bundle and bridge are required")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	c := &Controller{
		cfg:     cfg,
		bundle:  deps.Bundle,
		bridge:  deps.Bridge,
		history: deps.History,
		embed:   deps.Embed,
		logger:  log.WithComponent("session").With().Str("session_id", cfg.SessionID).Logger(),
		state:   StateInitializing,
		subs:    make(map[chan Update]struct{}),
	}
	c.currentPage = c.effectiveInitialPage()
	c.zoom = c.effectiveInitialZoom()

	metrics.IncSessionsActive()
	c.recordCreated()
	c.logger.Debug().
		Str("event", "session.created").
		Str("doc_id", cfg.DocID).
		Msg("session created")
	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.cfg.SessionID }

// DocID returns the document this session views.
func (c *Controller) DocID() string { return c.cfg.DocID }

// Initialize validates the configuration, loads the asset bundle, embeds the
// runtime and requests the document. Readiness is reported asynchronously
// through Events once the runtime confirms.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state != StateInitializing {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("initialize in state %s: %w", st, ErrAlreadyInitialized)
	}
	c.initAt = time.Now()
	c.mu.Unlock()

	if err := c.validateConfig(); err != nil {
		c.fail(FaultConfig, false, err, nil)
		return err
	}
	if !c.advance(CauseConfigValid) {
		return c.interrupted()
	}

	c.startPump()

	if err := c.bundle.LoadAll(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		c.fail(FaultAssetLoad, true, err, nil)
		return err
	}
	if !c.advance(CauseBundleReady) {
		return c.interrupted()
	}

	if c.embed != nil {
		doc, err := c.Document()
		if err == nil {
			err = c.embed(ctx, doc)
		}
		if err != nil {
			c.fail(FaultEmbed, true, err, nil)
			return err
		}
	}
	if !c.advance(CauseEmbedded) {
		return c.interrupted()
	}

	c.bridge.Send(ctx, bridge.LoadDocumentCommand(c.cfg.DocID, c.cfg.APIBaseURL))
	c.logger.Info().
		Str("event", "session.document_requested").
		Str("doc_id", c.cfg.DocID).
		Msg("document load requested")
	return nil
}

// startPump subscribes to bridge events and consumes them until the
// subscription is stopped or the bridge closes.
func (c *Controller) startPump() {
	c.mu.Lock()
	sub, stop := c.bridge.Subscribe()
	c.stopEvents = stop
	done := make(chan struct{})
	c.pumpDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for ev := range sub {
			c.handleEvent(ev)
		}
	}()
}

func (c *Controller) handleEvent(ev bridge.Event) {
	switch e := ev.(type) {
	case bridge.DocumentLoaded:
		c.onDocumentLoaded(e)
	case bridge.PageChanged:
		c.mu.Lock()
		if !c.disposed {
			c.currentPage = e.CurrentPage
			if e.TotalPages > 0 {
				c.pageCount = e.TotalPages
			}
			c.notifyLocked(Update{State: c.state, Event: ev})
		}
		c.mu.Unlock()
	case bridge.ZoomChanged:
		c.mu.Lock()
		if !c.disposed {
			c.zoom = e.ZoomLevel
			c.notifyLocked(Update{State: c.state, Event: ev})
		}
		c.mu.Unlock()
	case bridge.LoadingChanged:
		c.mu.Lock()
		if !c.disposed {
			c.notifyLocked(Update{State: c.state, Event: ev})
		}
		c.mu.Unlock()
	case bridge.ViewerError:
		c.fail(FaultViewer, true, &RemoteError{Message: e.Message, Code: e.Code}, ev)
	case bridge.Unknown:
		c.logger.Debug().
			Str("event", "session.unknown_event").
			Str("type", e.Type).
			Msg("unrecognized viewer event ignored")
	}
}

func (c *Controller) onDocumentLoaded(e bridge.DocumentLoaded) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.pageCount = e.PageCount
	if e.Title != "" {
		c.title = e.Title
	}
	wasLoading := c.state == StateLoadingDocument
	if wasLoading {
		c.transitionLocked(CauseDocumentLoaded)
	}
	c.notifyLocked(Update{State: c.state, Event: e})
	c.mu.Unlock()

	if !wasLoading {
		return
	}
	// Non-default presentation follows readiness, page before zoom.
	if page := c.effectiveInitialPage(); page != 1 {
		c.bridge.Send(context.Background(), bridge.SetPageCommand(page))
	}
	if zoom := c.effectiveInitialZoom(); zoom != 1.0 {
		c.bridge.Send(context.Background(), bridge.SetZoomCommand(zoom))
	}
}

// NavigateToPage asks the viewer to show page n. Outside the ready state the
// request is a no-op; an invalid page number is rejected without dispatch.
func (c *Controller) NavigateToPage(n int) error {
	if n < 1 {
		return fmt.Errorf("navigate to page %d: %w", n, ErrInvalidCommand)
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	ready := c.state == StateReady
	c.mu.Unlock()
	if !ready {
		return nil
	}
	c.bridge.Send(context.Background(), bridge.SetPageCommand(n))
	return nil
}

// SetZoom asks the viewer to apply the zoom level. Outside the ready state
// the request is a no-op; a non-positive level is rejected without dispatch.
func (c *Controller) SetZoom(level float64) error {
	if level <= 0 || math.IsNaN(level) {
		return fmt.Errorf("set zoom %v: %w", level, ErrInvalidCommand)
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	ready := c.state == StateReady
	c.mu.Unlock()
	if !ready {
		return nil
	}
	c.bridge.Send(context.Background(), bridge.SetZoomCommand(level))
	return nil
}

// CurrentPage returns the last page number observed from the viewer and, when
// ready, queries the runtime so the next observation is fresh.
func (c *Controller) CurrentPage() int {
	c.mu.Lock()
	page := c.currentPage
	ready := c.state == StateReady && !c.disposed
	c.mu.Unlock()
	if ready {
		c.bridge.Send(context.Background(), bridge.QueryCurrentPageCommand())
	}
	return page
}

// PageCount returns the last page count observed from the viewer and, when
// ready, queries the runtime so the next observation is fresh.
func (c *Controller) PageCount() int {
	c.mu.Lock()
	count := c.pageCount
	ready := c.state == StateReady && !c.disposed
	c.mu.Unlock()
	if ready {
		c.bridge.Send(context.Background(), bridge.QueryPageCountCommand())
	}
	return count
}

// Zoom returns the last zoom level observed from the viewer.
func (c *Controller) Zoom() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// Title returns the document title reported by the viewer, if any.
func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.title != "" {
		return c.title
	}
	return c.cfg.Title
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the fault that put the session into the error state, or
// nil. The value is a snapshot.
func (c *Controller) LastError() *Fault {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fault == nil {
		return nil
	}
	f := *c.fault
	return &f
}

// Events returns a stream of session updates. Slow subscribers lose updates
// rather than blocking the controller. stop is idempotent.
func (c *Controller) Events() (<-chan Update, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		ch := make(chan Update)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Update, updateBuffer)
	c.subs[ch] = struct{}{}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.mu.Lock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
			c.mu.Unlock()
		})
	}
	return ch, stop
}

// Document renders the embeddable viewer document from the loaded bundle.
func (c *Controller) Document() (string, error) {
	c.mu.Lock()
	p := assets.DocumentParams{
		Title:       c.cfg.Title,
		SessionID:   c.cfg.SessionID,
		DocID:       c.cfg.DocID,
		PageCount:   c.pageCount,
		InitialPage: c.effectiveInitialPage(),
		InitialZoom: c.effectiveInitialZoom(),
		BridgePath:  c.cfg.BridgePath,
		PagePath:    c.cfg.PagePath,
	}
	c.mu.Unlock()
	return c.bundle.BuildDocument(p)
}

// AttachRuntime connects a live transport for the embedded runtime. When the
// session is still waiting on the document, the load command is replayed so a
// late-connecting runtime can catch up.
func (c *Controller) AttachRuntime(t bridge.Transport) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	replay := c.state == StateLoadingDocument
	c.mu.Unlock()

	c.bridge.Attach(t)
	if replay {
		c.bridge.Send(context.Background(), bridge.LoadDocumentCommand(c.cfg.DocID, c.cfg.APIBaseURL))
	}
}

// DetachRuntime disconnects the runtime transport, keeping the session alive.
func (c *Controller) DetachRuntime() {
	c.bridge.Detach()
}

// DetachRuntimeIf disconnects only when t is still the attached transport.
func (c *Controller) DetachRuntimeIf(t bridge.Transport) {
	c.bridge.DetachIf(t)
}

// HandleInbound feeds one raw runtime message into the session's bridge.
// Wire transports call it from their read loop.
func (c *Controller) HandleInbound(data []byte) {
	c.bridge.HandleRaw(data)
}

// Reinitialize recovers a failed session: the bridge subscription is torn
// down, the asset bundle reset and the lifecycle restarted from scratch.
func (c *Controller) Reinitialize(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.state != StateError {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("reinitialize in state %s: %w", st, ErrNotInErrorState)
	}
	stop, done := c.stopEvents, c.pumpDone
	c.stopEvents, c.pumpDone = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
	c.bundle.Reset()

	c.mu.Lock()
	c.transitionLocked(CauseReinitialize)
	c.currentPage = c.effectiveInitialPage()
	c.pageCount = 0
	c.zoom = c.effectiveInitialZoom()
	c.title = ""
	c.notifyLocked(Update{State: c.state})
	c.mu.Unlock()

	return c.Initialize(ctx)
}

// Dispose tears the session down. Safe to call more than once.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	stop, done := c.stopEvents, c.pumpDone
	c.stopEvents, c.pumpDone = nil, nil
	for ch := range c.subs {
		close(ch)
	}
	c.subs = make(map[chan Update]struct{})
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
	c.bundle.Reset()
	c.bridge.Close()
	metrics.DecSessionsActive()
	c.logger.Info().Str("event", "session.disposed").Msg("session disposed")
}

func (c *Controller) validateConfig() error {
	v := validate.New()
	v.NotEmpty("docId", c.cfg.DocID)
	v.BaseURL("apiBaseUrl", c.cfg.APIBaseURL)
	v.BaseURL("assets.baseUrl", c.cfg.Assets.BaseURL)
	for i, fb := range c.cfg.Assets.FallbackBaseURLs {
		v.BaseURL(fmt.Sprintf("assets.fallbackBaseUrls[%d]", i), fb)
	}
	if c.cfg.Assets.MaxAttempts < 1 {
		v.AddError("assets.maxAttempts", "must be at least 1", c.cfg.Assets.MaxAttempts)
	}
	if c.cfg.Assets.RetryDelay < 0 {
		v.AddError("assets.retryDelay", "cannot be negative", c.cfg.Assets.RetryDelay)
	}
	if c.cfg.InitialPage < 0 {
		v.AddError("initialPage", "cannot be negative", c.cfg.InitialPage)
	}
	if c.cfg.InitialZoom < 0 || math.IsNaN(c.cfg.InitialZoom) {
		v.AddError("initialZoom", "must be positive", c.cfg.InitialZoom)
	}
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// advance applies cause and reports whether the lifecycle actually moved.
func (c *Controller) advance(cause Cause) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return false
	}
	if !c.transitionLocked(cause) {
		return false
	}
	c.notifyLocked(Update{State: c.state})
	return true
}

// interrupted explains why an advance was refused mid-initialization.
func (c *Controller) interrupted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if c.fault != nil {
		return c.fault.Err
	}
	return fmt.Errorf("initialization interrupted in state %s", c.state)
}

// fail records the fault, moves to the error state and notifies exactly once.
func (c *Controller) fail(code string, recoverable bool, err error, ev bridge.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.fault = &Fault{Code: code, Err: err, Recoverable: recoverable, At: time.Now()}
	metrics.IncSessionError(code)
	c.logger.Error().
		Err(err).
		Str("event", "session.fault").
		Str("code", code).
		Bool("recoverable", recoverable).
		Msg("session fault")
	c.transitionLocked(CauseFault)
	c.notifyLocked(Update{State: c.state, Event: ev, Err: err})
}

// transitionLocked applies the table edge for cause. Illegal edges are logged
// and refused. A successful transition out of the error state clears the
// recorded fault.
func (c *Controller) transitionLocked(cause Cause) bool {
	tr, ok := TransitionFor(c.state, cause)
	if !ok {
		c.logger.Warn().
			Str("event", "session.transition_refused").
			Str("state", string(c.state)).
			Str("cause", cause.String()).
			Msg("illegal lifecycle transition refused")
		return false
	}

	from := c.state
	c.state = tr.To
	if tr.To != StateError {
		c.fault = nil
	}
	metrics.IncSessionTransition(string(from), string(tr.To))
	if tr.To == StateReady && !c.initAt.IsZero() {
		metrics.ObserveSessionReady(time.Since(c.initAt))
	}
	c.logger.Info().
		Str("event", "session.transition").
		Str("from", string(from)).
		Str("to", string(tr.To)).
		Str("cause", cause.String()).
		Msg("lifecycle transition")
	c.recordTransitionLocked(from, tr.To, cause)
	return true
}

func (c *Controller) notifyLocked(u Update) {
	for ch := range c.subs {
		select {
		case ch <- u:
		default:
			c.logger.Warn().
				Str("event", "session.subscriber_dropped").
				Str("state", string(u.State)).
				Msg("slow subscriber missed an update")
		}
	}
}

func (c *Controller) effectiveInitialPage() int {
	if c.cfg.InitialPage < 1 {
		return 1
	}
	return c.cfg.InitialPage
}

func (c *Controller) effectiveInitialZoom() float64 {
	if c.cfg.InitialZoom <= 0 || math.IsNaN(c.cfg.InitialZoom) {
		return 1.0
	}
	return c.cfg.InitialZoom
}

func (c *Controller) recordCreated() {
	if c.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	now := time.Now().Unix()
	rec := &store.SessionRecord{
		SessionID:     c.cfg.SessionID,
		DocID:         c.cfg.DocID,
		State:         string(StateInitializing),
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	if err := c.history.PutSession(ctx, rec); err != nil {
		c.logger.Warn().
			Err(err).
			Str("event", "session.history_write_failed").
			Msg("session record not created")
	}
}

func (c *Controller) recordTransitionLocked(from, to State, cause Cause) {
	if c.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	now := time.Now().Unix()

	if err := c.history.AppendTransition(ctx, store.TransitionRecord{
		SessionID: c.cfg.SessionID,
		From:      string(from),
		To:        string(to),
		Cause:     cause.String(),
		AtUnix:    now,
	}); err != nil {
		c.logger.Warn().
			Err(err).
			Str("event", "session.history_write_failed").
			Msg("transition not recorded")
	}

	if _, err := c.history.UpdateSession(ctx, c.cfg.SessionID, func(rec *store.SessionRecord) error {
		rec.State = string(to)
		rec.UpdatedAtUnix = now
		if c.fault != nil {
			rec.LastError = c.fault.Err.Error()
			rec.Recoverable = c.fault.Recoverable
		} else {
			rec.LastError = ""
			rec.Recoverable = false
		}
		return nil
	}); err != nil {
		c.logger.Warn().
			Err(err).
			Str("event", "session.history_write_failed").
			Msg("session record not updated")
	}
}
