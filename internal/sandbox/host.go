// SPDX-License-Identifier: MIT

// Package sandbox runs the viewer behavior script in an embedded goja VM when
// no browser is involved. The VM plays the runtime side of a bridge transport
// pair: the script talks to the host through a small folioHost binding and the
// session controller attaches the other end like any remote transport.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/foliostream/folio/internal/bridge"
	"github.com/foliostream/folio/internal/log"
)

// ErrClosed is returned by Run when the host was closed underneath it.
var ErrClosed = errors.New("sandbox: host closed")

const hostQueueSize = 64

// Host owns one goja VM and the runtime side of an in-process transport pair.
// Exactly one goroutine, the one inside Run, touches the VM; inbound bridge
// messages are queued and dispatched there.
type Host struct {
	vm      *goja.Runtime
	hostEnd *bridge.Endpoint
	vmEnd   *bridge.Endpoint
	logger  zerolog.Logger

	jobs      chan func()
	closed    chan struct{}
	closeOnce sync.Once

	// onMessage is only read and written on the Run goroutine.
	onMessage goja.Callable
}

// New builds a host with a fresh VM and the folioHost binding installed. The
// script is not loaded until Run.
func New() (*Host, error) {
	hostEnd, vmEnd := bridge.NewPair()
	h := &Host{
		vm:      goja.New(),
		hostEnd: hostEnd,
		vmEnd:   vmEnd,
		logger:  log.WithComponent("sandbox"),
		jobs:    make(chan func(), hostQueueSize),
		closed:  make(chan struct{}),
	}
	if err := h.bind(); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("sandbox: install bindings: %w", err)
	}
	h.vmEnd.OnMessage(h.enqueueInbound)
	return h, nil
}

// Transport returns the side of the pair a session bridge attaches to.
func (h *Host) Transport() bridge.Transport {
	return h.hostEnd
}

// OnEvent registers the receiver for raw event envelopes the script emits.
// Typically this is Bridge.HandleRaw.
func (h *Host) OnEvent(fn func([]byte)) {
	h.hostEnd.OnMessage(fn)
}

// Run compiles and executes the viewer script, then serves bridge messages
// until ctx is done or the host is closed. It blocks and must only be called
// once; the calling goroutine becomes the VM owner.
func (h *Host) Run(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-h.closed:
		return ErrClosed
	default:
	}

	prg, err := goja.Compile("viewer.js", script, false)
	if err != nil {
		return fmt.Errorf("sandbox: compile viewer script: %w", err)
	}

	watch := make(chan struct{})
	defer close(watch)
	defer h.vm.ClearInterrupt()
	go func() {
		select {
		case <-ctx.Done():
			h.vm.Interrupt(ctx.Err())
		case <-h.closed:
			h.vm.Interrupt(ErrClosed)
		case <-watch:
		}
	}()

	if _, err := h.vm.RunProgram(prg); err != nil {
		return h.scriptError(err)
	}
	h.logger.Debug().
		Str(log.FieldEvent, "sandbox.script_loaded").
		Msg("viewer script loaded")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.closed:
			return nil
		case job := <-h.jobs:
			job()
		}
	}
}

// Close stops the host and closes both pair endpoints. Safe to call more than
// once; a blocked script is interrupted through the Run watcher.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		_ = h.hostEnd.Close()
		_ = h.vmEnd.Close()
	})
	return nil
}

func (h *Host) bind() error {
	hostObj := h.vm.NewObject()
	if err := hostObj.Set("send", h.jsSend); err != nil {
		return err
	}
	if err := hostObj.Set("onMessage", h.jsOnMessage); err != nil {
		return err
	}
	return h.vm.Set("folioHost", hostObj)
}

// jsSend implements folioHost.send(type, payloadJSON). The payload must be a
// JSON text; anything else drops the message rather than corrupting the wire.
func (h *Host) jsSend(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		return goja.Undefined()
	}
	msgType := call.Arguments[0].String()

	var payload json.RawMessage
	if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) && !goja.IsNull(call.Arguments[1]) {
		raw := call.Arguments[1].String()
		if !json.Valid([]byte(raw)) {
			h.logger.Warn().
				Str(log.FieldEvent, "sandbox.invalid_payload").
				Str(log.FieldMessageType, msgType).
				Msg("script payload is not valid JSON, message dropped")
			return goja.Undefined()
		}
		payload = json.RawMessage(raw)
	}

	if err := h.vmEnd.Send(context.Background(), bridge.Envelope{Type: msgType, Payload: payload}); err != nil {
		h.logger.Warn().
			Str(log.FieldEvent, "sandbox.send_failed").
			Str(log.FieldMessageType, msgType).
			Err(err).
			Msg("script message dropped")
	}
	return goja.Undefined()
}

// jsOnMessage implements folioHost.onMessage(fn). The last registration wins,
// matching how the browser runtime rebinds its listener on reload.
func (h *Host) jsOnMessage(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		panic(h.vm.NewTypeError("folioHost.onMessage requires a function"))
	}
	cb, ok := goja.AssertFunction(call.Arguments[0])
	if !ok {
		panic(h.vm.NewTypeError("folioHost.onMessage requires a function"))
	}
	h.onMessage = cb
	return goja.Undefined()
}

// enqueueInbound runs on the pair's pump goroutine and hands the message to
// the VM goroutine. A full queue drops the message, like every transport here.
func (h *Host) enqueueInbound(data []byte) {
	select {
	case h.jobs <- func() { h.dispatch(data) }:
	default:
		h.logger.Warn().
			Str(log.FieldEvent, "sandbox.queue_full").
			Msg("inbound message dropped, script is falling behind")
	}
}

// dispatch invokes the script's handler with (type, payloadJSON). Runs on the
// VM goroutine.
func (h *Host) dispatch(data []byte) {
	if h.onMessage == nil {
		h.logger.Debug().
			Str(log.FieldEvent, "sandbox.no_handler").
			Msg("message dropped, script registered no handler")
		return
	}
	var env bridge.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Debug().
			Str(log.FieldEvent, "sandbox.malformed_message").
			Err(err).
			Msg("malformed inbound message dropped")
		return
	}
	payload := string(env.Payload)
	if payload == "" {
		payload = "{}"
	}
	if _, err := h.onMessage(goja.Undefined(), h.vm.ToValue(env.Type), h.vm.ToValue(payload)); err != nil {
		h.logger.Warn().
			Str(log.FieldEvent, "sandbox.handler_failed").
			Str(log.FieldMessageType, env.Type).
			Err(err).
			Msg("script handler failed")
	}
}

// scriptError unwraps an interrupt back to its cause so callers see the
// context error, not a goja internal.
func (h *Host) scriptError(err error) error {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		if cause := interrupted.Unwrap(); cause != nil {
			return cause
		}
		return context.Canceled
	}
	return fmt.Errorf("sandbox: viewer script: %w", err)
}
