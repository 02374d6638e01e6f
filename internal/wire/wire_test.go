package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCallFrameRoundTrip(t *testing.T) {
	msg := NewCall("a:1", "add", []any{float64(10), float64(5)})
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeCall || got.ID != "a:1" || got.Method != "add" {
		t.Fatalf("frame mangled: %+v", got)
	}
	if len(got.Params) != 2 || got.Params[0] != float64(10) {
		t.Fatalf("params mangled: %v", got.Params)
	}
}

func TestNullResultIsNotAnAck(t *testing.T) {
	res, err := NewResult("a:2", nil)
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}
	if len(res.Result) == 0 {
		t.Fatalf("explicit null result lost")
	}

	ack := NewAck("a:3")
	if len(ack.Result) != 0 {
		t.Fatalf("ack must carry no result payload")
	}

	data, _ := json.Marshal(res)
	if !strings.Contains(string(data), `"result":null`) {
		t.Fatalf("null result not on the wire: %s", data)
	}
}

func TestDecodeResult(t *testing.T) {
	res, err := NewResult("a:4", map[string]any{"n": 3})
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}
	v, err := res.DecodeResult()
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["n"] != float64(3) {
		t.Fatalf("decoded %v (%T)", v, v)
	}
}

type flakyError struct {
	Code int
	What string
}

func (e *flakyError) Error() string     { return e.What }
func (e *flakyError) ErrorName() string { return "Flaky" }

func TestNormalizeError(t *testing.T) {
	ev := Normalize(&flakyError{Code: 7, What: "went sideways"})
	if ev.Name != "Flaky" {
		t.Fatalf("name = %q", ev.Name)
	}
	if ev.Message != "went sideways" {
		t.Fatalf("message = %q", ev.Message)
	}
	if ev.Fields["Code"] != 7 {
		t.Fatalf("fields = %v", ev.Fields)
	}
}

func TestNormalizePlainError(t *testing.T) {
	ev := Normalize(errors.New("boom"))
	if ev.Name != "Error" || ev.Message != "boom" {
		t.Fatalf("normalized %+v", ev)
	}
}

func TestNormalizeNonError(t *testing.T) {
	ev := Normalize(map[string]any{"reason": "nope"})
	if ev.Message != RejectedWithNonError {
		t.Fatalf("message = %q", ev.Message)
	}
	if ev.Fields["reason"] != "nope" {
		t.Fatalf("fields = %v", ev.Fields)
	}
}

func TestErrorValueWireShape(t *testing.T) {
	ev := Normalize(&flakyError{Code: 7, What: "went sideways"})
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Extra fields sit flattened next to name/message.
	if raw["name"] != "Flaky" || raw["message"] != "went sideways" || raw["Code"] != float64(7) {
		t.Fatalf("wire shape: %v", raw)
	}

	var back ErrorValue
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal ErrorValue: %v", err)
	}
	if back.Name != "Flaky" || back.Fields["Code"] != float64(7) {
		t.Fatalf("round trip: %+v", back)
	}
}

func TestReinflateMarksRemote(t *testing.T) {
	re := Reinflate(Normalize(errors.New("boom")))
	if re.Error() != "boom" {
		t.Fatalf("message = %q", re.Error())
	}
	if !IsRemote(re) {
		t.Fatalf("remote marker lost")
	}
	if IsRemote(errors.New("local")) {
		t.Fatalf("local error reported remote")
	}
	if !IsRemote(fmt.Errorf("wrapped: %w", re)) {
		t.Fatalf("wrapping hides the remote marker")
	}
}

func TestReinflateNonErrorShapes(t *testing.T) {
	if got := Reinflate(nil); got.Message != RejectedWithNonError {
		t.Fatalf("nil payload: %q", got.Message)
	}
	if got := Reinflate(&ErrorValue{Fields: map[string]any{"x": 1}}); got.Message != RejectedWithNonError {
		t.Fatalf("message-less payload: %q", got.Message)
	}
}
