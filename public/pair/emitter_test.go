package pair

import (
	"testing"
)

func TestEmitterOnAndOff(t *testing.T) {
	em := NewEmitter()
	var got [][]any
	fn := func(args []any) { got = append(got, args) }

	em.On("tick", fn)
	em.Emit("tick", []any{1})
	em.Emit("tock", []any{2})
	if len(got) != 1 {
		t.Fatalf("delivered %d times", len(got))
	}

	if !em.Off("tick", fn) {
		t.Fatalf("Off missed the listener")
	}
	em.Emit("tick", []any{3})
	if len(got) != 1 {
		t.Fatalf("listener fired after Off")
	}
	if em.Off("tick", fn) {
		t.Fatalf("Off removed a listener twice")
	}
}

func TestEmitterOnce(t *testing.T) {
	em := NewEmitter()
	count := 0
	em.Once("tick", func(args []any) { count++ })
	em.Emit("tick", nil)
	em.Emit("tick", nil)
	if count != 1 {
		t.Fatalf("once-listener fired %d times", count)
	}
}

func TestEmitterOnceReentrant(t *testing.T) {
	em := NewEmitter()
	count := 0
	em.Once("tick", func(args []any) {
		count++
		if count == 1 {
			// A re-entrant emit must not double-deliver.
			em.Emit("tick", nil)
		}
	})
	em.Emit("tick", nil)
	if count != 1 {
		t.Fatalf("once-listener fired %d times", count)
	}
}

func TestEmitterSubscriptionClose(t *testing.T) {
	em := NewEmitter()
	count := 0
	sub := em.On("tick", func(args []any) { count++ })
	em.Emit("tick", nil)
	sub.Close()
	sub.Close() // idempotent
	em.Emit("tick", nil)
	if count != 1 {
		t.Fatalf("fired %d times", count)
	}
}

func TestEmitterWildcards(t *testing.T) {
	em := NewEmitter()
	var events []string
	em.OnEvent("remote:counter-1:*", func(event string, args []any) {
		events = append(events, event)
	})

	em.Emit("remote:counter-1:changed", nil)
	em.Emit("remote:counter-2:changed", nil)
	em.Emit("remote:counter-1:reset", nil)
	em.Emit("changed", nil)

	if len(events) != 2 || events[0] != "remote:counter-1:changed" || events[1] != "remote:counter-1:reset" {
		t.Fatalf("wildcard matched %v", events)
	}
}

func TestEmitterMatchAll(t *testing.T) {
	em := NewEmitter()
	count := 0
	em.OnEvent("*", func(event string, args []any) { count++ })
	em.Emit("a", nil)
	em.Emit("a:b:c", nil)
	if count != 2 {
		t.Fatalf("match-all fired %d times", count)
	}
}

func TestEmitterSegmentCountMustMatch(t *testing.T) {
	em := NewEmitter()
	count := 0
	em.OnEvent("a:*", func(event string, args []any) { count++ })
	em.Emit("a:b", nil)
	em.Emit("a:b:c", nil)
	em.Emit("a", nil)
	if count != 1 {
		t.Fatalf("segment wildcard fired %d times", count)
	}
}

func TestEmitterOffByIdentityOnly(t *testing.T) {
	em := NewEmitter()
	a := 0
	b := 0
	fnA := func(args []any) { a++ }
	fnB := func(args []any) { b++ }
	em.On("tick", fnA)
	em.On("tick", fnB)

	em.Off("tick", fnA)
	em.Emit("tick", nil)
	if a != 0 || b != 1 {
		t.Fatalf("identity removal broke: a=%d b=%d", a, b)
	}
}
