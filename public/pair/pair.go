// Package pair implements one endpoint of a symmetric, transport-agnostic
// RPC connection. Two pairs joined by any full-duplex message channel can
// each expose methods, call methods on the partner, and deliver events to
// the partner's local emitter.
//
// Key features:
// - Request/response correlation by pair-unique message ids
// - Per-call and per-emit timeouts with pending-waiter cleanup
// - Acknowledged event delivery (an emit resolves once the peer got it)
// - Pluggable send function, installable and replaceable by transports
// - Injectable error sink for protocol-level (non-call) failures
//
// The pair never touches bytes: transports decode frames and hand them to
// Incoming, and install a send function via SetSend. See the transport
// package for concrete wirings.
package pair

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/RecursiveLabsInc/rpcpair/internal/ident"
	"github.com/RecursiveLabsInc/rpcpair/internal/wire"
)

// DefaultTimeout bounds a call's wait for its correlated result.
const DefaultTimeout = 500 * time.Millisecond

// DefaultEmitTimeout bounds an emit's wait for the peer's acknowledgement.
const DefaultEmitTimeout = 500 * time.Millisecond

// Handler is an exposed method. Arguments arrive JSON-decoded (numbers as
// float64, objects as map[string]any). The returned value is JSON-encoded
// into the result frame; a returned error rejects the remote caller.
type Handler func(args []any) (any, error)

// SendFunc delivers one outgoing frame to the peer. A returned error is
// treated as a synchronous transport failure.
type SendFunc func(msg *wire.Message) error

// Options configures a new Pair. Name and OnError are mandatory; everything
// else has a usable default.
type Options struct {
	// Name tags the pair. It prefixes outgoing message ids and debug logs.
	Name string

	// OnError receives unrecoverable protocol-level errors: unknown frame
	// types, malformed results, failed reply sends. Per-call failures are
	// returned to the caller instead and never reach the sink.
	OnError func(error)

	// Timeout is the default call timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// EmitTimeout is the default emit-acknowledgement timeout. Zero means
	// DefaultEmitTimeout.
	EmitTimeout time.Duration

	// WrapEffects, when set, is invoked with the closure that delivers an
	// inbound notification to local listeners. Hosts that need a
	// change-detection hook around event delivery install one here. The
	// closure must be invoked exactly once; the default calls it directly.
	WrapEffects func(func())

	// Logger receives debug traces. Defaults to the standard logger.
	Logger *log.Logger

	// Debug enables verbose tracing. The DEBUG environment variable
	// (any non-empty value) also enables it.
	Debug bool
}

// CallOptions adjusts a single call or emit.
type CallOptions struct {
	// Timeout overrides the pair default for this operation. Zero keeps
	// the default.
	Timeout time.Duration
}

// Pair is one endpoint of an RPC connection. All methods are safe for
// concurrent use; outgoing frames are serialized in invocation order.
type Pair struct {
	name        string
	timeout     time.Duration
	emitTimeout time.Duration
	onError     func(error)
	wrapEffects func(func())
	logger      *log.Logger
	debug       bool

	sendMux sync.Mutex
	send    SendFunc

	methodsMux sync.RWMutex
	methods    map[string]Handler

	waitersMux sync.Mutex
	waiters    map[string]chan *wire.Message

	events *Emitter
}

// New creates a pair endpoint.
//
// Returns ErrMissingName when opts.Name is empty and ErrMissingErrorHandler
// when opts.OnError is nil; both are required because the pair cannot report
// protocol anomalies without a name to tag them and a sink to receive them.
func New(opts Options) (*Pair, error) {
	if opts.Name == "" {
		return nil, ErrMissingName
	}
	if opts.OnError == nil {
		return nil, ErrMissingErrorHandler
	}

	p := &Pair{
		name:        opts.Name,
		timeout:     opts.Timeout,
		emitTimeout: opts.EmitTimeout,
		onError:     opts.OnError,
		wrapEffects: opts.WrapEffects,
		logger:      opts.Logger,
		debug:       opts.Debug || os.Getenv("DEBUG") != "",
		methods:     make(map[string]Handler),
		waiters:     make(map[string]chan *wire.Message),
		events:      NewEmitter(),
	}
	if p.timeout == 0 {
		p.timeout = DefaultTimeout
	}
	if p.emitTimeout == 0 {
		p.emitTimeout = DefaultEmitTimeout
	}
	if p.wrapEffects == nil {
		p.wrapEffects = func(f func()) { f() }
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p, nil
}

// Name returns the pair's name.
func (p *Pair) Name() string { return p.name }

// Expose registers a method handler under name. Re-registering a name
// silently overwrites the previous handler.
func (p *Pair) Expose(name string, fn Handler) {
	p.methodsMux.Lock()
	p.methods[name] = fn
	p.methodsMux.Unlock()
	p.debugf("pair %s: exposed %s", p.name, name)
}

// ExposeAll registers every handler in the map, as if by repeated Expose.
func (p *Pair) ExposeAll(methods map[string]Handler) {
	for name, fn := range methods {
		p.Expose(name, fn)
	}
}

// Exposed reports whether a handler is registered under name.
func (p *Pair) Exposed(name string) bool {
	p.methodsMux.RLock()
	defer p.methodsMux.RUnlock()
	_, ok := p.methods[name]
	return ok
}

// SetSend installs or replaces the outbound send function. Transports call
// this once per connection; replacing it mid-flight is allowed and pending
// waiters survive the swap (a new channel may deliver results for ids
// created under the old one).
func (p *Pair) SetSend(fn SendFunc) {
	p.sendMux.Lock()
	p.send = fn
	p.sendMux.Unlock()
}

// On subscribes fn to events delivered by the peer. The pattern may use
// ":"-separated "*" wildcards.
func (p *Pair) On(event string, fn Listener) *Subscription {
	return p.events.On(event, fn)
}

// Once subscribes fn for a single delivery.
func (p *Pair) Once(event string, fn Listener) *Subscription {
	return p.events.Once(event, fn)
}

// Off removes the first listener on event whose function is fn.
func (p *Pair) Off(event string, fn Listener) bool {
	return p.events.Off(event, fn)
}

// RemoveListener is an alias for Off.
func (p *Pair) RemoveListener(event string, fn Listener) bool {
	return p.Off(event, fn)
}

// Events returns the pair's local emitter, on which inbound notifications
// are delivered.
func (p *Pair) Events() *Emitter { return p.events }

// Call invokes a method on the peer with the pair's default timeout and
// blocks until the correlated result arrives.
//
// The error is a *TimeoutError when no result arrived in time, a
// *wire.RemoteError when the peer rejected (NoSuchMethod included), or the
// synchronous transport error when sending failed.
func (p *Pair) Call(method string, args ...any) (any, error) {
	return p.CallWithOptions(CallOptions{}, method, args...)
}

// CallWithOptions is Call with a per-operation timeout override.
func (p *Pair) CallWithOptions(opts CallOptions, method string, args ...any) (any, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = p.timeout
	}
	msg := wire.NewCall(ident.Next(p.name), method, args)
	res, err := p.await(msg, timeout)
	if err != nil {
		return nil, err
	}
	if res.Error != nil {
		return nil, wire.Reinflate(res.Error)
	}
	return res.DecodeResult()
}

// Emit delivers an event to the peer and blocks until the peer acknowledges
// receipt. The acknowledgement is sent by the peer before it runs its local
// listeners, so a resolved Emit confirms the peer is reachable and received
// the event, not that listeners finished.
func (p *Pair) Emit(event string, data ...any) error {
	return p.EmitWithOptions(CallOptions{}, event, data...)
}

// EmitWithOptions is Emit with a per-operation timeout override.
func (p *Pair) EmitWithOptions(opts CallOptions, event string, data ...any) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = p.emitTimeout
	}
	msg := wire.NewNotify(ident.Next(p.name), event, data)
	res, err := p.await(msg, timeout)
	if err != nil {
		return err
	}
	if res.Error != nil {
		return wire.Reinflate(res.Error)
	}
	return nil
}

// Pending is the handle of an asynchronous Call or Emit. Done receives the
// pending itself once Value and Err are settled.
type Pending struct {
	Value any
	Err   error
	Done  chan *Pending
}

// GoCall invokes a method asynchronously. The returned pending's Done
// channel fires once the call settles, so hosts with their own loops can
// select on several operations at once.
func (p *Pair) GoCall(method string, args ...any) *Pending {
	pd := &Pending{Done: make(chan *Pending, 1)}
	go func() {
		pd.Value, pd.Err = p.Call(method, args...)
		pd.Done <- pd
	}()
	return pd
}

// GoEmit delivers an event asynchronously.
func (p *Pair) GoEmit(event string, data ...any) *Pending {
	pd := &Pending{Done: make(chan *Pending, 1)}
	go func() {
		pd.Err = p.Emit(event, data...)
		pd.Done <- pd
	}()
	return pd
}

// await is the shared correlated-send primitive behind Call and Emit:
// register a one-shot waiter for the message id, send the frame, then race
// the waiter against the timeout.
//
// The waiter is removed on every exit path, so an expired operation leaks
// nothing; a result arriving after expiry finds no waiter and is dropped.
func (p *Pair) await(msg *wire.Message, timeout time.Duration) (*wire.Message, error) {
	ch := make(chan *wire.Message, 1)
	p.waitersMux.Lock()
	p.waiters[msg.ID] = ch
	p.waitersMux.Unlock()

	remove := func() {
		p.waitersMux.Lock()
		delete(p.waiters, msg.ID)
		p.waitersMux.Unlock()
	}

	if err := p.sendMessage(msg); err != nil {
		remove()
		return nil, err
	}

	select {
	case res := <-ch:
		remove()
		return res, nil
	case <-time.After(timeout):
		remove()
		return nil, &TimeoutError{ID: msg.ID, Type: msg.Type, Duration: timeout}
	}
}

// sendMessage writes one frame through the installed send function.
// Sends are serialized so frames leave in invocation order.
func (p *Pair) sendMessage(msg *wire.Message) error {
	p.sendMux.Lock()
	defer p.sendMux.Unlock()
	if p.send == nil {
		return ErrMissingSendFunction
	}
	p.debugf("pair %s: send %s %s %s%s", p.name, msg.Type, msg.ID, msg.Method, msg.Event)
	return p.send(msg)
}

// Incoming is the entry point for transports: every received, already
// decoded frame is handed here. Call handlers run on their own goroutine;
// notify listeners run synchronously inside Incoming, after the
// acknowledgement has been sent.
func (p *Pair) Incoming(msg *wire.Message) {
	if msg == nil {
		p.onError(fmt.Errorf("unknown message type: <nil message>"))
		return
	}
	p.debugf("pair %s: recv %s %s", p.name, msg.Type, msg.ID)

	if msg.Type == wire.TypeCall || msg.Type == wire.TypeNotify {
		// Frames handed over in memory skip the JSON codec; round-trip
		// their payloads so handlers and listeners always see JSON-decoded
		// values. Payloads that cannot be encoded pass through unchanged.
		shaped := *msg
		for _, vals := range []*[]any{&shaped.Params, &shaped.Data} {
			if raw, err := json.Marshal(*vals); err == nil {
				var decoded []any
				if json.Unmarshal(raw, &decoded) == nil {
					*vals = decoded
				}
			}
		}
		msg = &shaped
	}

	switch msg.Type {
	case wire.TypeCall:
		go p.handleCall(msg)
	case wire.TypeNotify:
		// Ack first: ack latency must reflect the transport, not
		// listener cost.
		p.reply(wire.NewAck(msg.ID))
		p.wrapEffects(func() {
			p.events.Emit(msg.Event, msg.Data)
		})
	case wire.TypeResult:
		p.settle(msg)
	default:
		p.onError(fmt.Errorf("unknown message type: %q (id %s)", msg.Type, msg.ID))
	}
}

// handleCall resolves and runs an exposed method, then replies with its
// result or error.
func (p *Pair) handleCall(msg *wire.Message) {
	p.methodsMux.RLock()
	fn, ok := p.methods[msg.Method]
	p.methodsMux.RUnlock()

	if !ok {
		p.replyError(msg.ID, &NoSuchMethodError{Method: msg.Method, Params: msg.Params})
		return
	}

	v, err := runHandler(msg.Method, fn, msg.Params)
	if err != nil {
		p.replyError(msg.ID, err)
		return
	}

	res, err := wire.NewResult(msg.ID, v)
	if err != nil {
		p.replyError(msg.ID, err)
		return
	}
	p.reply(res)
}

// runHandler invokes a handler, converting panics into ordinary errors so
// they reject the remote caller like any other failure.
func runHandler(method string, fn Handler, args []any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{Method: method, Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(args)
}

// reply sends a result or acknowledgement frame. Reply sends are
// fire-and-forget: a synchronous transport failure here has no caller to
// reject, so it is routed to the error sink.
func (p *Pair) reply(msg *wire.Message) {
	if err := p.sendMessage(msg); err != nil {
		p.onError(fmt.Errorf("pair %s: send reply %s: %w", p.name, msg.ID, err))
	}
}

func (p *Pair) replyError(id string, cause error) {
	p.reply(wire.NewErrorResult(id, wire.Normalize(cause)))
}

// settle routes a result frame to its waiter. Frames carrying both a result
// and an error are malformed and go to the sink; frames with no waiter
// (late results after a timeout, duplicate results) are dropped.
func (p *Pair) settle(msg *wire.Message) {
	if len(msg.Result) > 0 && msg.Error != nil {
		p.onError(fmt.Errorf("invalid result: %s carries both result and error", msg.ID))
		return
	}

	p.waitersMux.Lock()
	ch, ok := p.waiters[msg.ID]
	p.waitersMux.Unlock()
	if !ok {
		p.debugf("pair %s: dropping result %s (no waiter)", p.name, msg.ID)
		return
	}
	select {
	case ch <- msg:
	default:
		// A second result raced in before the waiter drained the
		// first; the law is first-result-wins, so drop it.
		p.debugf("pair %s: dropping duplicate result %s", p.name, msg.ID)
	}
}

func (p *Pair) debugf(format string, args ...any) {
	if p.debug {
		p.logger.Printf(format, args...)
	}
}
