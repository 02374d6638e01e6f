// Package actors overlays an actor registry on a pair endpoint. An actor is
// any Go value registered under a string id; once registered it is callable
// from the peer, its exported fields are readable, and — if it exposes an
// emitter — its events are forwarded to the peer under a scoped name.
//
// The overlay reserves two method names on the pair ("callActor" and
// "-getActorProperty-"); a registry attaching to a pair overwrites any user
// handlers under those names. At most one registry may attach per pair.
//
// Actor ids are late-bound: a call addressing an id that is not registered
// yet waits for registration up to a bounded window, so peers do not need
// to sequence startup. Expired ids stay burned for the registry's lifetime.
package actors

import (
	"fmt"
	"sync"
	"time"

	"github.com/RecursiveLabsInc/rpcpair/public/pair"
)

// Reserved method names installed on the pair by Expose.
const (
	MethodCallActor        = "callActor"
	MethodGetActorProperty = "-getActorProperty-"
)

// DefaultRegistrationTimeout bounds how long a call waits for its actor id
// to be registered.
const DefaultRegistrationTimeout = 500 * time.Millisecond

// DefaultCallTimeout bounds a single actor method invocation.
const DefaultCallTimeout = 500 * time.Millisecond

// expiredSlot is the tombstone written by ExpireActor. The id can never be
// re-bound within the registry's lifetime.
type expiredSlot struct{}

var expired = &expiredSlot{}

// Emitting is the optional event capability of an actor. The registry taps
// the returned emitter and forwards every event to the peer as
// "remote:<id>:<event>".
type Emitting interface {
	Events() *pair.Emitter
}

// Options configures a registry.
type Options struct {
	// RegistrationTimeout bounds the late-binding wait. Zero means
	// DefaultRegistrationTimeout.
	RegistrationTimeout time.Duration

	// CallTimeout bounds each actor method invocation. Zero means
	// DefaultCallTimeout.
	CallTimeout time.Duration

	// OnForwardError receives failures of actor-event forwarding (the
	// scoped emits are fire-and-forget, so there is no caller to reject).
	// Nil discards them.
	OnForwardError func(error)
}

// attached tracks which pairs already carry a registry. A registry's
// lifetime matches its pair's, so entries are never removed.
var attached sync.Map // *pair.Pair -> *Registry

// Registry maps actor ids to local actors and serves the reserved methods
// on behalf of the peer.
type Registry struct {
	regTimeout  time.Duration
	callTimeout time.Duration
	onForward   func(error)

	mu      sync.Mutex
	p       *pair.Pair
	actors  map[string]any
	waiters map[string][]chan any
	taps    map[string]*pair.Subscription
}

// NewRegistry creates a registry. Expose attaches it to a pair.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		regTimeout:  opts.RegistrationTimeout,
		callTimeout: opts.CallTimeout,
		onForward:   opts.OnForwardError,
		actors:      make(map[string]any),
		waiters:     make(map[string][]chan any),
		taps:        make(map[string]*pair.Subscription),
	}
	if r.regTimeout == 0 {
		r.regTimeout = DefaultRegistrationTimeout
	}
	if r.callTimeout == 0 {
		r.callTimeout = DefaultCallTimeout
	}
	if r.onForward == nil {
		r.onForward = func(error) {}
	}
	return r
}

// Expose attaches the registry to p, installing the reserved method
// handlers. A pair carries at most one registry; a second Expose on the
// same pair (by this or any registry) fails, as does exposing one registry
// on two pairs.
func (r *Registry) Expose(p *pair.Pair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.p != nil {
		return ErrTwoRegistries
	}
	if _, loaded := attached.LoadOrStore(p, r); loaded {
		return ErrTwoRegistries
	}
	r.p = p

	p.Expose(MethodCallActor, r.handleCallActor)
	p.Expose(MethodGetActorProperty, r.handleGetProperty)
	return nil
}

// ExposeActor registers actor under id and wakes any calls blocked on the
// id. The actor must be non-nil; duplicate ids — including ids that have
// been expired — are refused.
//
// If the actor implements Emitting, its emitter is tapped and every event
// it publishes is forwarded to the peer scoped as "remote:<id>:<event>".
// The tap is detached when the id expires; other subscribers on the actor's
// emitter are untouched.
func (r *Registry) ExposeActor(id string, actor any) error {
	if actor == nil {
		return fmt.Errorf("actor %q must be a non-nil value", id)
	}

	r.mu.Lock()
	if _, exists := r.actors[id]; exists {
		r.mu.Unlock()
		return &DuplicateActorError{ID: id}
	}
	r.actors[id] = actor
	waiters := r.waiters[id]
	delete(r.waiters, id)

	if em, ok := actor.(Emitting); ok && em.Events() != nil {
		r.taps[id] = em.Events().OnEvent("*", func(event string, args []any) {
			r.forward(id, event, args)
		})
	}
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- actor
	}
	return nil
}

// ExpireActor burns id: the slot becomes a tombstone, the event tap is
// detached and calls blocked on the id fail immediately. The id cannot be
// re-registered afterwards.
func (r *Registry) ExpireActor(id string) {
	r.mu.Lock()
	r.actors[id] = expired
	waiters := r.waiters[id]
	delete(r.waiters, id)
	tap := r.taps[id]
	delete(r.taps, id)
	r.mu.Unlock()

	if tap != nil {
		tap.Close()
	}
	for _, ch := range waiters {
		ch <- expired
	}
}

// LocalActor returns the live actor registered under id, if any.
func (r *Registry) LocalActor(id string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	actor, ok := r.actors[id]
	if !ok || actor == expired {
		return nil, false
	}
	return actor, true
}

// forward re-emits one actor event on the owning pair under the scoped
// name. Fire-and-forget: the acknowledgement is awaited off the publishing
// goroutine so a slow peer cannot stall the actor.
func (r *Registry) forward(id, event string, args []any) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p == nil {
		return
	}
	go func() {
		if err := p.Emit(ScopedEvent(id, event), args...); err != nil {
			r.onForward(fmt.Errorf("forward %s for actor %s: %w", event, id, err))
		}
	}()
}

// waitForActor resolves id, blocking up to the registration window when the
// id is not bound yet.
func (r *Registry) waitForActor(id string) (any, error) {
	r.mu.Lock()
	if actor, ok := r.actors[id]; ok {
		r.mu.Unlock()
		if actor == expired {
			return nil, &ExpiredError{ID: id}
		}
		return actor, nil
	}
	ch := make(chan any, 1)
	r.waiters[id] = append(r.waiters[id], ch)
	r.mu.Unlock()

	select {
	case actor := <-ch:
		if actor == expired {
			return nil, &ExpiredError{ID: id}
		}
		return actor, nil
	case <-time.After(r.regTimeout):
		r.dropWaiter(id, ch)
		return nil, &RegistrationTimeoutError{ID: id, Duration: r.regTimeout}
	}
}

func (r *Registry) dropWaiter(id string, ch chan any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	waiters := r.waiters[id]
	for i, w := range waiters {
		if w == ch {
			r.waiters[id] = append(waiters[:i:i], waiters[i+1:]...)
			break
		}
	}
	if len(r.waiters[id]) == 0 {
		delete(r.waiters, id)
	}
}

// handleCallActor serves the reserved "callActor" method: params are
// (id, method, args...).
func (r *Registry) handleCallActor(args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("callActor needs (id, method, args...), got %d params", len(args))
	}
	id, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("callActor: actor id must be a string, got %T", args[0])
	}
	method, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("callActor: method must be a string, got %T", args[1])
	}

	actor, err := r.waitForActor(id)
	if err != nil {
		return nil, err
	}
	return invoke(actor, id, method, args[2:], r.callTimeout)
}

// handleGetProperty serves the reserved property getter: params are
// (id, name). The value round-trips through the JSON codec like any result.
func (r *Registry) handleGetProperty(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("getActorProperty needs (id, name), got %d params", len(args))
	}
	id, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("getActorProperty: actor id must be a string, got %T", args[0])
	}
	name, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("getActorProperty: property name must be a string, got %T", args[1])
	}

	actor, err := r.waitForActor(id)
	if err != nil {
		return nil, err
	}
	return property(actor, name), nil
}

// ScopedEvent is the wire-level rewrite routing actor events without
// colliding with plain pair events: "remote:<id>:<event>".
func ScopedEvent(id, event string) string {
	return "remote:" + id + ":" + event
}
