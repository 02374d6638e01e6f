package actors

import (
	"github.com/RecursiveLabsInc/rpcpair/public/pair"
)

// Client is the caller-side surface of the actor overlay, granted by Mixin.
// It holds no state beyond the pair it wraps.
type Client struct {
	p *pair.Pair
}

// Mixin grants p the actor-calling surface. Unlike Registry.Expose this
// installs nothing on the pair; it only binds the reserved method names on
// the caller side, so a pair can be a pure actor client.
func Mixin(p *pair.Pair) *Client {
	return &Client{p: p}
}

// Pair returns the underlying pair.
func (c *Client) Pair() *pair.Pair { return c.p }

// CallActor invokes method on the peer-side actor registered under id.
func (c *Client) CallActor(id, method string, args ...any) (any, error) {
	return c.CallActorWithOptions(pair.CallOptions{}, id, method, args...)
}

// CallActorWithOptions is CallActor with a per-call timeout override. The
// timeout must cover the peer's registration wait when late binding is in
// play.
func (c *Client) CallActorWithOptions(opts pair.CallOptions, id, method string, args ...any) (any, error) {
	params := append([]any{id, method}, args...)
	return c.p.CallWithOptions(opts, MethodCallActor, params...)
}

// GetActor returns a handle bound to the actor id on the peer.
func (c *Client) GetActor(id string) *RemoteActor {
	return &RemoteActor{c: c, id: id}
}

// RemoteActor is a client-side view of a peer-hosted actor. It holds no
// state of its own; every operation reduces to a pair call or a
// subscription to the scoped event name on the pair's local emitter.
type RemoteActor struct {
	c  *Client
	id string
}

// ID returns the bound actor id.
func (a *RemoteActor) ID() string { return a.id }

// Call invokes an actor method.
func (a *RemoteActor) Call(method string, args ...any) (any, error) {
	return a.c.CallActor(a.id, method, args...)
}

// CallWithOptions is Call with a per-call timeout override.
func (a *RemoteActor) CallWithOptions(opts pair.CallOptions, method string, args ...any) (any, error) {
	return a.c.CallActorWithOptions(opts, a.id, method, args...)
}

// Get fetches an actor property by name.
func (a *RemoteActor) Get(name string) (any, error) {
	return a.c.p.Call(MethodGetActorProperty, a.id, name)
}

// On subscribes to an event of this actor. Only emissions of the bound
// actor arrive here; plain pair events of the same name never do.
func (a *RemoteActor) On(event string, fn pair.Listener) *pair.Subscription {
	return a.c.p.On(ScopedEvent(a.id, event), fn)
}

// Once subscribes for a single delivery.
func (a *RemoteActor) Once(event string, fn pair.Listener) *pair.Subscription {
	return a.c.p.Once(ScopedEvent(a.id, event), fn)
}

// Off removes a listener previously attached with On.
func (a *RemoteActor) Off(event string, fn pair.Listener) bool {
	return a.c.p.Off(ScopedEvent(a.id, event), fn)
}

// RemoveListener is an alias for Off.
func (a *RemoteActor) RemoveListener(event string, fn pair.Listener) bool {
	return a.Off(event, fn)
}
