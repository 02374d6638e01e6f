// Package wire defines the message frames exchanged between two pair
// endpoints and the error normalization applied at the JSON boundary.
//
// Three frame types exist: "call" (invoke a method on the peer), "notify"
// (deliver an event to the peer), and "result" (settle a call or acknowledge
// a notify). Every frame carries a correlation id; a result frame carries
// exactly one of a result value or a normalized error.
//
// Errors crossing the wire are flattened to {name, message, stack} plus any
// exported fields of the concrete error value, and re-inflated on the far
// side as a RemoteError so callers can distinguish local from remote
// failures.
package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Message types.
const (
	TypeCall   = "call"
	TypeNotify = "notify"
	TypeResult = "result"
)

// RejectedWithNonError is the synthetic message used when a peer rejects
// with a value that is not error-shaped.
const RejectedWithNonError = "RejectedWithNonError"

// Message is the single frame structure for all three message types.
// Method/Params are set on "call" frames, Event/Data on "notify" frames,
// Result/Error on "result" frames. Result stays a RawMessage so that an
// explicit JSON null result is distinguishable from an absent one (a bare
// acknowledgement has neither Result nor Error).
type Message struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Method string          `json:"method,omitempty"`
	Params []any           `json:"params,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   []any           `json:"data,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorValue     `json:"error,omitempty"`
}

// NewCall builds a call frame.
func NewCall(id, method string, params []any) *Message {
	return &Message{ID: id, Type: TypeCall, Method: method, Params: params}
}

// NewNotify builds a notify frame.
func NewNotify(id, event string, data []any) *Message {
	return &Message{ID: id, Type: TypeNotify, Event: event, Data: data}
}

// NewResult builds a result frame carrying v. A nil v produces an explicit
// JSON null result, which is a legitimate value distinct from an
// acknowledgement.
func NewResult(id string, v any) (*Message, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result for %s: %w", id, err)
	}
	return &Message{ID: id, Type: TypeResult, Result: raw}, nil
}

// NewAck builds an empty result frame acknowledging a notify.
func NewAck(id string) *Message {
	return &Message{ID: id, Type: TypeResult}
}

// NewErrorResult builds a result frame carrying a normalized error.
func NewErrorResult(id string, ev *ErrorValue) *Message {
	return &Message{ID: id, Type: TypeResult, Error: ev}
}

// DecodeResult unpacks a result frame's value into a plain Go value
// (numbers become float64, objects map[string]any). An absent result
// decodes to nil.
func (m *Message) DecodeResult() (any, error) {
	if len(m.Result) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(m.Result, &v); err != nil {
		return nil, fmt.Errorf("decode result for %s: %w", m.ID, err)
	}
	return v, nil
}

// ErrorValue is the normalized form of an error crossing the wire:
// name, message and stack, plus every exported field of the original
// error value flattened alongside them.
type ErrorValue struct {
	Name    string
	Message string
	Stack   string
	Fields  map[string]any
}

// reserved JSON keys of ErrorValue; extra fields never shadow them.
var reservedErrorKeys = map[string]bool{"name": true, "message": true, "stack": true}

// MarshalJSON flattens Fields next to name/message/stack.
func (e *ErrorValue) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		if !reservedErrorKeys[k] {
			out[k] = v
		}
	}
	out["name"] = e.Name
	out["message"] = e.Message
	if e.Stack != "" {
		out["stack"] = e.Stack
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits reserved keys from extra fields.
func (e *ErrorValue) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if s, ok := raw["name"].(string); ok {
		e.Name = s
	}
	if s, ok := raw["message"].(string); ok {
		e.Message = s
	}
	if s, ok := raw["stack"].(string); ok {
		e.Stack = s
	}
	for k, v := range raw {
		if reservedErrorKeys[k] {
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = v
	}
	return nil
}

// namer is implemented by errors that carry an explicit wire name
// (e.g. "NoSuchMethod") distinct from their message.
type namer interface {
	ErrorName() string
}

// stacker is implemented by errors that captured a stack trace.
type stacker interface {
	ErrorStack() string
}

// fielder is implemented by errors that expose extra payload fields to
// be flattened onto the wire form.
type fielder interface {
	ErrorFields() map[string]any
}

// Normalize renders an arbitrary rejection value into its wire form.
// Errors contribute name, message, stack and exported struct fields;
// anything else synthesizes a RejectedWithNonError with the value's
// fields copied onto the payload.
func Normalize(v any) *ErrorValue {
	ev := &ErrorValue{Name: "Error"}

	err, ok := v.(error)
	if !ok {
		ev.Message = RejectedWithNonError
		ev.Fields = fieldsOf(v)
		return ev
	}

	ev.Message = err.Error()
	if n, ok := err.(namer); ok {
		ev.Name = n.ErrorName()
	}
	if s, ok := err.(stacker); ok {
		ev.Stack = s.ErrorStack()
	}
	if f, ok := err.(fielder); ok {
		ev.Fields = f.ErrorFields()
	} else {
		ev.Fields = fieldsOf(err)
	}
	return ev
}

// fieldsOf copies the exported fields of a struct (or the entries of a
// string-keyed map) into a flat map. Other shapes contribute nothing.
func fieldsOf(v any) map[string]any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Struct:
		rt := rv.Type()
		var out map[string]any
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			if out == nil {
				out = make(map[string]any)
			}
			out[f.Name] = rv.Field(i).Interface()
		}
		return out
	default:
		return nil
	}
}

// RemoteError is an error that originated on the peer. Remote() always
// reports true so consumers can tell local failures from remote ones.
type RemoteError struct {
	Name    string
	Message string
	Stack   string
	Fields  map[string]any
}

func (e *RemoteError) Error() string { return e.Message }

// Remote marks the error as having crossed the wire.
func (e *RemoteError) Remote() bool { return true }

// ErrorName returns the wire name, so a remote error re-normalizes
// faithfully if it is forwarded over another pair.
func (e *RemoteError) ErrorName() string { return e.Name }

func (e *RemoteError) ErrorStack() string { return e.Stack }

func (e *RemoteError) ErrorFields() map[string]any { return e.Fields }

// Reinflate turns a received ErrorValue back into a native error carrying
// the remote marker. A nil or message-less payload yields a
// RejectedWithNonError.
func Reinflate(ev *ErrorValue) *RemoteError {
	if ev == nil {
		return &RemoteError{Name: "Error", Message: RejectedWithNonError}
	}
	re := &RemoteError{Name: ev.Name, Message: ev.Message, Stack: ev.Stack, Fields: ev.Fields}
	if re.Name == "" {
		re.Name = "Error"
	}
	if re.Message == "" {
		re.Message = RejectedWithNonError
	}
	return re
}

// IsRemote reports whether err (or anything it wraps) crossed the wire.
func IsRemote(err error) bool {
	for err != nil {
		if r, ok := err.(interface{ Remote() bool }); ok && r.Remote() {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
