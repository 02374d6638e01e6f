// Package ident generates correlation identifiers for outgoing messages.
//
// A single process-wide counter backs every pair in the process. Each pair
// prefixes the counter with its own name, so ids stay unique across pairs
// and remain traceable in interleaved logs (e.g. "renderer:17", "host:18").
package ident

import (
	"fmt"
	"sync/atomic"
)

// counter is shared by all pairs in the process. Uniqueness is only required
// within a pair; the global counter is a deliberate trade for cross-pair
// traceability in logs.
var counter atomic.Uint64

// Next returns the next correlation id for the given prefix, in the form
// "<prefix>:<n>". Ids are never reused within a process lifetime.
func Next(prefix string) string {
	return fmt.Sprintf("%s:%d", prefix, counter.Add(1))
}
