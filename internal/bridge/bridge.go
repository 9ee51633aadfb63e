// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/foliostream/folio/internal/log"
	"github.com/foliostream/folio/internal/metrics"
)

// Transport delivers one encoded envelope to the embedded runtime.
type Transport interface {
	Send(ctx context.Context, env Envelope) error
}

const subscriberBuffer = 32

// Bridge owns one session's message channel: commands go out through the
// attached transport, decoded events fan out to subscribers. A session has
// exactly one bridge; the transport comes and goes with the runtime
// connection. All methods are safe for concurrent use.
type Bridge struct {
	logger zerolog.Logger

	mu        sync.Mutex
	transport Transport
	subs      map[chan Event]struct{}
	closed    bool
}

// New creates a bridge with no transport attached.
func New(logger zerolog.Logger) *Bridge {
	return &Bridge{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Attach connects the runtime transport. A previously attached transport is
// closed and replaced; a reconnecting runtime displaces its stale
// predecessor.
func (b *Bridge) Attach(t Transport) {
	b.mu.Lock()
	old := b.transport
	b.transport = t
	b.mu.Unlock()

	if old != nil && old != t {
		if c, ok := old.(io.Closer); ok {
			_ = c.Close()
		}
	}
	if old == nil && t != nil {
		metrics.IncBridgeTransport()
	}
	b.logger.Debug().
		Str(log.FieldEvent, "bridge.transport_attached").
		Msg("runtime transport attached")
}

// Detach disconnects the runtime transport. Subsequent sends are dropped.
func (b *Bridge) Detach() {
	b.mu.Lock()
	had := b.transport != nil
	b.transport = nil
	b.mu.Unlock()

	if had {
		metrics.DecBridgeTransport()
	}
	b.logger.Debug().
		Str(log.FieldEvent, "bridge.transport_detached").
		Msg("runtime transport detached")
}

// DetachIf disconnects only when t is still the attached transport. A wire
// handler that lost a reconnect race must not tear down its successor.
func (b *Bridge) DetachIf(t Transport) {
	if t == nil {
		return
	}
	b.mu.Lock()
	if b.transport != t {
		b.mu.Unlock()
		return
	}
	b.transport = nil
	b.mu.Unlock()

	metrics.DecBridgeTransport()
	b.logger.Debug().
		Str(log.FieldEvent, "bridge.transport_detached").
		Msg("runtime transport detached")
}

// Attached reports whether a runtime transport is currently connected.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transport != nil
}

// Send delivers a command to the embedded runtime, at most once. With no
// transport attached the command is dropped silently; the runtime announces
// its state on load, so the caller needs no signal. A transport failure is
// likewise a drop, not an error.
func (b *Bridge) Send(ctx context.Context, env Envelope) {
	b.mu.Lock()
	t := b.transport
	closed := b.closed
	b.mu.Unlock()

	switch {
	case closed:
		metrics.IncBridgeDropped(metrics.DropClosed)
		return
	case t == nil:
		metrics.IncBridgeDropped(metrics.DropNoTransport)
		b.logger.Debug().
			Str(log.FieldEvent, "bridge.command_dropped").
			Str(log.FieldMessageType, env.Type).
			Msg("command dropped, no transport attached")
		return
	}

	if err := t.Send(ctx, env); err != nil {
		metrics.IncBridgeDropped(metrics.DropSendFailed)
		b.logger.Warn().
			Str(log.FieldEvent, "bridge.send_failed").
			Str(log.FieldMessageType, env.Type).
			Err(err).
			Msg("command send failed")
		return
	}

	metrics.IncBridgeCommand(env.Type)
	b.logger.Debug().
		Str(log.FieldEvent, "bridge.command_sent").
		Str(log.FieldMessageType, env.Type).
		Str(log.FieldDirection, "out").
		Msg("command sent")
}

// HandleRaw decodes one inbound wire message and dispatches it. Decoding is
// total, so a malformed message surfaces as an Unknown event rather than an
// error. Callers pump messages sequentially; dispatch order is call order.
func (b *Bridge) HandleRaw(data []byte) {
	b.Dispatch(DecodeEvent(data))
}

// Dispatch fans one event out to every subscriber. A subscriber whose buffer
// is full loses the event; the slowest reader must not stall the runtime.
func (b *Bridge) Dispatch(ev Event) {
	metrics.IncBridgeEvent(ev.EventType())
	if u, ok := ev.(Unknown); ok {
		b.logger.Debug().
			Str(log.FieldEvent, "bridge.unknown_event").
			Str(log.FieldMessageType, u.Type).
			Msg("unrecognized runtime event")
	} else {
		b.logger.Debug().
			Str(log.FieldEvent, "bridge.event_received").
			Str(log.FieldMessageType, ev.EventType()).
			Str(log.FieldDirection, "in").
			Msg("event received")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.IncBridgeDropped(metrics.DropSlowSubscriber)
			b.logger.Warn().
				Str(log.FieldEvent, "bridge.subscriber_dropped").
				Str(log.FieldMessageType, ev.EventType()).
				Msg("event dropped for slow subscriber")
		}
	}
}

// Subscribe returns a buffered stream of inbound events. The stop function
// removes the subscription and closes the channel; calling it twice is safe.
func (b *Bridge) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
	return ch, stop
}

// Close detaches the transport and closes every subscription. The bridge
// cannot be reused afterwards.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	had := b.transport != nil
	b.transport = nil
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan Event]struct{})
	b.mu.Unlock()

	if had {
		metrics.DecBridgeTransport()
	}
	b.logger.Debug().
		Str(log.FieldEvent, "bridge.closed").
		Msg("bridge closed")
}
