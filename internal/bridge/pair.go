// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"sync"
)

// Pair transport errors, surfaced to Send callers and counted as drops by
// the bridge.
var (
	ErrEndpointClosed = errors.New("bridge: endpoint closed")
	ErrEndpointFull   = errors.New("bridge: endpoint inbox full")
)

const endpointInboxSize = 64

// Endpoint is one side of an in-process message pair. It connects a host
// bridge to an embedded runtime living in the same process, with the same
// asynchronous, ordered, lossy-when-full semantics as a real transport.
type Endpoint struct {
	peer  *Endpoint
	inbox chan []byte
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	handler func([]byte)
}

// NewPair creates two connected endpoints. Messages sent on one side are
// delivered, in order, to the other side's handler.
func NewPair() (*Endpoint, *Endpoint) {
	a := newEndpoint()
	b := newEndpoint()
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func newEndpoint() *Endpoint {
	return &Endpoint{
		inbox: make(chan []byte, endpointInboxSize),
		done:  make(chan struct{}),
	}
}

// OnMessage sets the receive handler. Messages arriving while no handler is
// set are discarded.
func (e *Endpoint) OnMessage(fn func([]byte)) {
	e.mu.Lock()
	e.handler = fn
	e.mu.Unlock()
}

// Send implements Transport: it encodes the envelope and queues it for the
// peer. A full or closed peer is an error, not a block.
func (e *Endpoint) Send(_ context.Context, env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return e.peer.deliver(data)
}

// SendRaw queues pre-encoded bytes for the peer. The runtime side uses this
// for event envelopes it builds itself.
func (e *Endpoint) SendRaw(data []byte) error {
	return e.peer.deliver(data)
}

// Close shuts the endpoint down. Pending inbox messages are discarded.
func (e *Endpoint) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}

func (e *Endpoint) deliver(data []byte) error {
	select {
	case <-e.done:
		return ErrEndpointClosed
	default:
	}
	select {
	case e.inbox <- data:
		return nil
	case <-e.done:
		return ErrEndpointClosed
	default:
		return ErrEndpointFull
	}
}

func (e *Endpoint) pump() {
	for {
		select {
		case <-e.done:
			return
		case data := <-e.inbox:
			e.mu.Lock()
			fn := e.handler
			e.mu.Unlock()
			if fn != nil {
				fn(data)
			}
		}
	}
}
