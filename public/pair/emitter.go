package pair

import (
	"reflect"
	"strings"
	"sync"
)

// Listener receives the data payload of a delivered event.
type Listener func(args []any)

// EventListener additionally receives the concrete event name, which a
// wildcard subscriber needs to tell deliveries apart.
type EventListener func(event string, args []any)

// Emitter routes named events to subscribed listeners. Patterns are
// ":"-separated; a "*" segment matches any single segment and the bare
// pattern "*" matches every event. This lets a subscriber watch a whole
// scope (e.g. "remote:counter-1:*") without knowing the event names up
// front.
//
// All methods are safe for concurrent use. Listeners run synchronously on
// the emitting goroutine, in subscription order per pattern.
type Emitter struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
}

// Subscription represents one attached listener. Close detaches it; a
// closed subscription never fires again even if a delivery is in flight,
// which lets an owner stop a tap without disturbing other subscribers.
type Subscription struct {
	em      *Emitter
	pattern string
	fn      EventListener
	key     uintptr
	once    bool

	mu     sync.Mutex
	closed bool
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.em.remove(s)
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[string][]*Subscription)}
}

// On subscribes fn to events matching pattern.
func (e *Emitter) On(pattern string, fn Listener) *Subscription {
	return e.subscribe(pattern, func(_ string, args []any) { fn(args) }, keyOf(fn), false)
}

// Once subscribes fn for a single delivery.
func (e *Emitter) Once(pattern string, fn Listener) *Subscription {
	return e.subscribe(pattern, func(_ string, args []any) { fn(args) }, keyOf(fn), true)
}

// OnEvent subscribes a name-aware listener to events matching pattern.
// Wildcard taps (like the actor registry's) use this form to learn which
// event actually fired.
func (e *Emitter) OnEvent(pattern string, fn EventListener) *Subscription {
	return e.subscribe(pattern, fn, keyOf(fn), false)
}

func (e *Emitter) subscribe(pattern string, fn EventListener, key uintptr, once bool) *Subscription {
	sub := &Subscription{em: e, pattern: pattern, fn: fn, key: key, once: once}
	e.mu.Lock()
	e.subs[pattern] = append(e.subs[pattern], sub)
	e.mu.Unlock()
	return sub
}

// Off detaches the first subscription on pattern whose listener is fn.
// Listener identity is the function pointer, so the caller must pass the
// same function value it subscribed with. Closures created from the same
// function literal share that pointer, so Off cannot tell them apart.
// Reports whether a listener was removed.
func (e *Emitter) Off(pattern string, fn Listener) bool {
	return e.offKey(pattern, keyOf(fn))
}

// OffEvent is Off for name-aware listeners.
func (e *Emitter) OffEvent(pattern string, fn EventListener) bool {
	return e.offKey(pattern, keyOf(fn))
}

func (e *Emitter) offKey(pattern string, key uintptr) bool {
	e.mu.Lock()
	for _, sub := range e.subs[pattern] {
		if sub.key == key {
			e.mu.Unlock()
			sub.Close()
			return true
		}
	}
	e.mu.Unlock()
	return false
}

// Emit delivers the event to every matching listener. Once-listeners are
// consumed before their callback runs, so a re-entrant emit cannot
// double-deliver them.
func (e *Emitter) Emit(event string, args []any) {
	e.mu.Lock()
	var fire []*Subscription
	for pattern, subs := range e.subs {
		if !patternMatches(event, pattern) {
			continue
		}
		fire = append(fire, subs...)
	}
	for _, sub := range fire {
		if sub.once {
			e.removeLocked(sub)
		}
	}
	e.mu.Unlock()

	for _, sub := range fire {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		if sub.once {
			sub.closed = true
		}
		sub.mu.Unlock()
		sub.fn(event, args)
	}
}

func (e *Emitter) remove(sub *Subscription) {
	e.mu.Lock()
	e.removeLocked(sub)
	e.mu.Unlock()
}

func (e *Emitter) removeLocked(sub *Subscription) {
	subs := e.subs[sub.pattern]
	for i, s := range subs {
		if s == sub {
			e.subs[sub.pattern] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.subs[sub.pattern]) == 0 {
		delete(e.subs, sub.pattern)
	}
}

func keyOf(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// patternMatches checks an event name against a subscription pattern.
func patternMatches(event, pattern string) bool {
	if pattern == "*" || pattern == event {
		return true
	}
	eventParts := strings.Split(event, ":")
	patternParts := strings.Split(pattern, ":")
	if len(eventParts) != len(patternParts) {
		return false
	}
	for i := range eventParts {
		if patternParts[i] == "*" {
			continue
		}
		if eventParts[i] != patternParts[i] {
			return false
		}
	}
	return true
}
