// Package transport wires pair endpoints to concrete message channels.
//
// A transport does exactly two things with a pair: it installs an outbound
// send function via SetSend and feeds every received, decoded frame to
// Incoming. Each Connect* function returns a Disconnect handle that
// releases both directions: the send function becomes a silent no-op and
// further received frames are dropped.
//
// Available wirings:
// - ConnectStream: newline-delimited JSON over any io.ReadWriter
// - ConnectMsgpackStream: msgpack frames over any io.ReadWriter
// - ConnectWebSocket: JSON frames over a gorilla websocket connection
// - ChannelHub: in-process host/renderer style channel with sender
//   identity filtering
// - Link: direct in-memory coupling of two pairs (tests, demos)
package transport

import (
	"sync/atomic"

	"github.com/RecursiveLabsInc/rpcpair/internal/wire"
	"github.com/RecursiveLabsInc/rpcpair/public/pair"
)

// Disconnect releases a transport wiring. Safe to call more than once.
type Disconnect func()

// noopSend silently drops outgoing frames after disconnection.
func noopSend(*wire.Message) error { return nil }

// Link couples two pairs directly in memory. Frames are delivered on a
// fresh goroutine, preserving the property that a send never runs the
// peer's dispatch on the caller's stack.
func Link(a, b *pair.Pair) Disconnect {
	var closed atomic.Bool

	a.SetSend(func(msg *wire.Message) error {
		if closed.Load() {
			return nil
		}
		go b.Incoming(msg)
		return nil
	})
	b.SetSend(func(msg *wire.Message) error {
		if closed.Load() {
			return nil
		}
		go a.Incoming(msg)
		return nil
	})

	return func() {
		if closed.CompareAndSwap(false, true) {
			a.SetSend(noopSend)
			b.SetSend(noopSend)
		}
	}
}
