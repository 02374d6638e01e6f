package actors

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"time"
	"unicode"
	"unicode/utf8"
)

// errorType is cached for method return-shape inspection.
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// invoke resolves method on actor by reflection and runs it under timeout.
// Accepted return shapes: none, (v), (error), (v, error). Panics inside the
// method surface as ordinary errors.
//
// Wire method names may be lower-cased ("increment"); resolution upper-cases
// the first rune so they bind to the exported Go method ("Increment").
func invoke(actor any, id, method string, args []any, timeout time.Duration) (any, error) {
	m := reflect.ValueOf(actor).MethodByName(exportedName(method))
	if !m.IsValid() {
		return nil, &NoSuchMethodError{ID: id, Method: method, Available: methodNames(actor)}
	}

	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := callReflected(method, m, args)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-time.After(timeout):
		// The method keeps running on its goroutine; only the caller
		// gives up, matching call-timeout semantics elsewhere.
		return nil, &CallTimeoutError{ID: id, Method: method, Duration: timeout}
	}
}

// callReflected converts the JSON-decoded args to the method's parameter
// types and interprets its return values.
func callReflected(method string, m reflect.Value, args []any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("actor method %s panicked: %v\n%s", method, r, debug.Stack())
		}
	}()

	mt := m.Type()
	in, err := convertArgs(mt, args)
	if err != nil {
		return nil, fmt.Errorf("actor method %s: %w", method, err)
	}

	out := m.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if mt.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		if mt.Out(1) != errorType {
			return nil, fmt.Errorf("actor method %s has unsupported return shape", method)
		}
		return out[0].Interface(), asError(out[1])
	default:
		return nil, fmt.Errorf("actor method %s has unsupported return shape", method)
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// convertArgs adapts JSON-decoded values (float64 numbers, map objects) to
// the method's declared parameter types: a value is used as-is when
// assignable, converted directly when a scalar conversion exists, and
// rebuilt through a JSON round-trip otherwise.
func convertArgs(mt reflect.Type, args []any) ([]reflect.Value, error) {
	numIn := mt.NumIn()
	if mt.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, fmt.Errorf("got %d args, want at least %d", len(args), numIn-1)
		}
	} else if len(args) != numIn {
		return nil, fmt.Errorf("got %d args, want %d", len(args), numIn)
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if mt.IsVariadic() && i >= numIn-1 {
			pt = mt.In(numIn - 1).Elem()
		} else {
			pt = mt.In(i)
		}
		cv, err := convertArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		in[i] = cv
	}
	return in, nil
}

func convertArg(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(pt), nil
	}
	av := reflect.ValueOf(arg)
	if av.Type().AssignableTo(pt) {
		return av, nil
	}
	if av.Type().ConvertibleTo(pt) && av.Kind() != reflect.Map && av.Kind() != reflect.Slice {
		return av.Convert(pt), nil
	}
	raw, err := json.Marshal(arg)
	if err != nil {
		return reflect.Value{}, err
	}
	pv := reflect.New(pt)
	if err := json.Unmarshal(raw, pv.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return pv.Elem(), nil
}

// methodNames lists the wire names of an actor's callable methods, sorted.
func methodNames(actor any) []string {
	rt := reflect.TypeOf(actor)
	names := make([]string, 0, rt.NumMethod())
	for i := 0; i < rt.NumMethod(); i++ {
		names = append(names, wireName(rt.Method(i).Name))
	}
	sort.Strings(names)
	return names
}

// exportedName upper-cases the first rune of a wire method name.
func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// wireName lower-cases the first rune of a Go method name.
func wireName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

// property reads an exported field (wire-named like methods) from the
// actor. A missing property reads as nil, which crosses the wire as JSON
// null.
func property(actor any, name string) any {
	rv := reflect.ValueOf(actor)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		fv := rv.FieldByName(exportedName(name))
		if !fv.IsValid() {
			return nil
		}
		return fv.Interface()
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		fv := rv.MapIndex(reflect.ValueOf(name))
		if !fv.IsValid() {
			return nil
		}
		return fv.Interface()
	default:
		return nil
	}
}
