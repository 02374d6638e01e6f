package transport

import (
	"sync"

	"github.com/google/uuid"

	"github.com/RecursiveLabsInc/rpcpair/internal/wire"
	"github.com/RecursiveLabsInc/rpcpair/public/pair"
)

// ChannelHub is an in-process channel shared by several endpoints, in the
// shape of a host process talking to multiple renderer processes over one
// IPC channel. Every endpoint gets a unique identity and every posted frame
// carries its sender's identity; an endpoint only accepts frames from the
// peer it was joined to, so two renderers sharing the hub cannot
// cross-talk.
type ChannelHub struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

// Endpoint is one pair attached to a hub.
type Endpoint struct {
	hub  *ChannelHub
	id   string
	p    *pair.Pair
	peer string // identity whose frames are accepted; "" until joined
}

// NewChannelHub creates an empty hub.
func NewChannelHub() *ChannelHub {
	return &ChannelHub{endpoints: make(map[string]*Endpoint)}
}

// Attach registers p on the hub and returns its endpoint. The endpoint is
// inert until joined to a peer.
func (h *ChannelHub) Attach(p *pair.Pair) *Endpoint {
	ep := &Endpoint{hub: h, id: uuid.NewString(), p: p}
	h.mu.Lock()
	h.endpoints[ep.id] = ep
	h.mu.Unlock()
	return ep
}

// ID returns the endpoint's hub identity.
func (ep *Endpoint) ID() string { return ep.id }

// Join connects two endpoints of the hub: each accepts only the other's
// frames and each pair's send function posts onto the hub. The returned
// Disconnect detaches both sides.
func (h *ChannelHub) Join(a, b *Endpoint) Disconnect {
	h.mu.Lock()
	a.peer = b.id
	b.peer = a.id
	h.mu.Unlock()

	a.p.SetSend(func(msg *wire.Message) error {
		h.post(a.id, msg)
		return nil
	})
	b.p.SetSend(func(msg *wire.Message) error {
		h.post(b.id, msg)
		return nil
	})

	return func() {
		h.mu.Lock()
		joined := a.peer == b.id
		a.peer = ""
		b.peer = ""
		h.mu.Unlock()
		if joined {
			a.p.SetSend(noopSend)
			b.p.SetSend(noopSend)
		}
	}
}

// post delivers a frame to every endpoint that accepts the sender. Delivery
// happens on a fresh goroutine per receiver, mirroring the process boundary
// the hub stands in for.
func (h *ChannelHub) post(sender string, msg *wire.Message) {
	h.mu.Lock()
	var receivers []*Endpoint
	for _, ep := range h.endpoints {
		if ep.peer == sender {
			receivers = append(receivers, ep)
		}
	}
	h.mu.Unlock()

	for _, ep := range receivers {
		go ep.p.Incoming(msg)
	}
}
