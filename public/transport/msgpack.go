package transport

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/RecursiveLabsInc/rpcpair/internal/wire"
	"github.com/RecursiveLabsInc/rpcpair/public/pair"
)

// ConnectMsgpackStream wires p over rw with msgpack-encoded frames. The
// frame structure is identical to the JSON wiring; only the byte encoding
// differs, which makes this a compact alternative for host-internal links
// where both ends are this library.
//
// The read loop runs until rw reports an error, then fires opts.OnClose;
// after Disconnect it also ends, without firing OnClose, at the next frame
// it reads. opts.OnParseError never fires here (a frame that fails to
// decode ends a binary stream). Closing rw is the caller's job; the returned Disconnect
// only detaches the pair.
func ConnectMsgpackStream(p *pair.Pair, rw io.ReadWriter, opts StreamOptions) Disconnect {
	var closed atomic.Bool
	var writeMu sync.Mutex
	enc := msgpack.NewEncoder(rw)
	dec := msgpack.NewDecoder(rw)

	p.SetSend(func(msg *wire.Message) error {
		if closed.Load() {
			return nil
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode frame %s: %w", msg.ID, err)
		}
		return nil
	})

	go func() {
		for {
			var msg wire.Message
			if err := dec.Decode(&msg); err != nil {
				if opts.OnClose != nil {
					opts.OnClose(err)
				}
				return
			}
			if closed.Load() {
				return
			}
			msg.Params = normalizeValues(msg.Params)
			msg.Data = normalizeValues(msg.Data)
			p.Incoming(&msg)
		}
	}()

	return func() {
		if closed.CompareAndSwap(false, true) {
			p.SetSend(noopSend)
		}
	}
}

// normalizeValues maps msgpack's decoded shapes onto the JSON shapes
// handlers are written against: every number becomes float64 and maps get
// string keys. Handler code stays codec-independent that way.
func normalizeValues(args []any) []any {
	for i, arg := range args {
		args[i] = normalizeValue(arg)
	}
	return args
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		return normalizeValues(x)
	case map[string]any:
		for k, mv := range x {
			x[k] = normalizeValue(mv)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, mv := range x {
			out[fmt.Sprint(k)] = normalizeValue(mv)
		}
		return out
	default:
		return v
	}
}
