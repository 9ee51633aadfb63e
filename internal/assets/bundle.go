// SPDX-License-Identifier: MIT

package assets

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/foliostream/folio/internal/log"
	"github.com/foliostream/folio/internal/metrics"
)

// BundleState is the lifecycle of one asset bundle.
type BundleState string

const (
	// BundleInitial means no load has started, or the bundle was reset.
	BundleInitial BundleState = "initial"
	// BundleLoading means a load is running.
	BundleLoading BundleState = "loading"
	// BundleLoaded means every asset is in memory.
	BundleLoaded BundleState = "loaded"
	// BundleError means the last load failed.
	BundleError BundleState = "error"
)

const watchBuffer = 16

// Bundle owns the asset set of one session: it loads the assets strictly in
// order, tracks lifecycle state, and broadcasts progress to watchers. All
// methods are safe for concurrent use.
type Bundle struct {
	loader *Loader
	specs  []Spec
	logger zerolog.Logger

	mu      sync.Mutex
	state   BundleState
	content map[string]string
	err     error
	loaded  int
	current string
	gen     uint64
	cancel  context.CancelFunc

	watchers map[chan Progress]struct{}
}

// NewBundle builds a bundle over the given loader. A nil spec slice means the
// default viewer bundle; an explicitly empty slice stays empty and loads
// trivially.
func NewBundle(loader *Loader, specs []Spec) *Bundle {
	if specs == nil {
		specs = DefaultBundle()
	}
	return &Bundle{
		loader:   loader,
		specs:    specs,
		logger:   log.WithComponent("assets"),
		state:    BundleInitial,
		watchers: make(map[chan Progress]struct{}),
	}
}

// State returns the current lifecycle state.
func (b *Bundle) State() BundleState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready reports whether every asset is loaded and the viewer document can be
// generated.
func (b *Bundle) Ready() bool {
	return b.State() == BundleLoaded
}

// Err returns the terminal error of the last failed load, nil otherwise.
func (b *Bundle) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Content returns the loaded text of one asset by name.
func (b *Bundle) Content(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.content[name]
	return c, ok
}

// Specs returns the bundle's asset specs in load order.
func (b *Bundle) Specs() []Spec {
	out := make([]Spec, len(b.specs))
	copy(out, b.specs)
	return out
}

// Progress returns the current load progress snapshot.
func (b *Bundle) Progress() Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Progress{Loaded: b.loaded, Total: len(b.specs), CurrentAsset: b.current, Err: b.err}
}

// Watch subscribes to progress observations, starting with the current
// snapshot so a late subscriber is never behind. The returned stop function
// removes the subscription and closes the channel. A slow watcher loses
// intermediate observations rather than stalling the load.
func (b *Bundle) Watch() (<-chan Progress, func()) {
	ch := make(chan Progress, watchBuffer)
	b.mu.Lock()
	ch <- Progress{Loaded: b.loaded, Total: len(b.specs), CurrentAsset: b.current, Err: b.err}
	b.watchers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, stop
}

// LoadAll loads every asset of the bundle in order and blocks until the
// bundle is loaded, the load fails, or the context is done. While a load is
// running concurrent calls return ErrLoadInProgress; on an already loaded
// bundle it is a no-op. A load started after Reset supersedes this one and
// its outcome is discarded.
func (b *Bundle) LoadAll(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case BundleLoading:
		b.mu.Unlock()
		return ErrLoadInProgress
	case BundleLoaded:
		b.mu.Unlock()
		return nil
	}
	gen := b.gen
	b.state = BundleLoading
	b.err = nil
	b.loaded = 0
	b.current = ""
	b.content = make(map[string]string, len(b.specs))
	lctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	total := len(b.specs)
	b.mu.Unlock()
	defer cancel()

	start := time.Now()
	b.logger.Info().
		Str(log.FieldEvent, "assets.bundle_load_started").
		Int("total", total).
		Msg("bundle load started")
	b.emit(Progress{Loaded: 0, Total: total})

	for i, spec := range b.specs {
		if !b.markCurrent(gen, spec.Name) {
			return context.Canceled
		}

		content, err := b.loader.Load(lctx, spec)
		if err != nil {
			return b.finishError(gen, start, spec.Name, i, total, err)
		}
		if !b.storeAsset(gen, spec.Name, content) {
			return context.Canceled
		}
		b.logger.Debug().
			Str(log.FieldEvent, "assets.bundle_asset_loaded").
			Str(log.FieldAsset, spec.Name).
			Int("loaded", i+1).
			Int("total", total).
			Msg("bundle asset loaded")
		b.emit(Progress{Loaded: i + 1, Total: total, CurrentAsset: spec.Name})
	}

	if !b.finishLoaded(gen) {
		return context.Canceled
	}
	metrics.ObserveBundleLoad(true, time.Since(start))
	b.logger.Info().
		Str(log.FieldEvent, "assets.bundle_loaded").
		Int("total", total).
		Dur("duration", time.Since(start)).
		Msg("bundle loaded")
	return nil
}

// Reset cancels any in-flight load, discards loaded content, and returns the
// bundle to its initial state. Watchers stay subscribed.
func (b *Bundle) Reset() {
	b.mu.Lock()
	b.gen++
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.state = BundleInitial
	b.err = nil
	b.content = nil
	b.loaded = 0
	b.current = ""
	b.mu.Unlock()

	b.logger.Debug().
		Str(log.FieldEvent, "assets.bundle_reset").
		Msg("bundle reset")
}

// markCurrent records the asset being loaded. Returns false when the load
// generation has been superseded by Reset.
func (b *Bundle) markCurrent(gen uint64, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return false
	}
	b.current = name
	return true
}

func (b *Bundle) storeAsset(gen uint64, name, content string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return false
	}
	b.content[name] = content
	b.loaded++
	return true
}

func (b *Bundle) finishLoaded(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return false
	}
	b.state = BundleLoaded
	b.cancel = nil
	return true
}

func (b *Bundle) finishError(gen uint64, start time.Time, asset string, loaded, total int, cause error) error {
	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return context.Canceled
	}
	b.state = BundleError
	b.err = cause
	b.cancel = nil
	b.mu.Unlock()

	metrics.ObserveBundleLoad(false, time.Since(start))
	b.logger.Error().
		Str(log.FieldEvent, "assets.bundle_load_failed").
		Str(log.FieldAsset, asset).
		Int("loaded", loaded).
		Int("total", total).
		Err(cause).
		Msg("bundle load failed")
	b.emit(Progress{Loaded: loaded, Total: total, CurrentAsset: asset, Err: cause})
	return cause
}

// emit delivers one observation to every watcher, dropping it for watchers
// whose buffer is full. Sends happen under the mutex so a concurrent stop
// cannot close a channel mid-send; they never block.
func (b *Bundle) emit(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.watchers {
		select {
		case ch <- p:
		default:
		}
	}
}
